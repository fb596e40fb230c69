package monitor

import (
	"context"
	"errors"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/okatz/steamwatch/telemetry"
)

func TestMain(m *testing.M) {
	telemetry.Init()
	os.Exit(m.Run())
}

// fakeSource serves canned statuses; ids in errs fail instead.
type fakeSource struct {
	statuses map[string]AccountStatus
	errs     map[string]error
}

func (s *fakeSource) FetchStatus(_ context.Context, id string) (AccountStatus, error) {
	if err, ok := s.errs[id]; ok {
		return AccountStatus{}, err
	}
	st, ok := s.statuses[id]
	if !ok {
		return AccountStatus{}, errors.New("unknown account")
	}
	st.AccountID = id
	return st, nil
}

type fakeInventory struct {
	items map[string][]string
	errs  map[string]error
}

func (s *fakeInventory) FetchInventory(_ context.Context, id string) ([]string, error) {
	if err, ok := s.errs[id]; ok {
		return nil, err
	}
	return s.items[id], nil
}

// fakeStore is an in-memory StatusStore + InventoryStore.
type fakeStore struct {
	mu        sync.Mutex
	trackings map[string][]int64
	snaps     map[pairKey]AccountStatus
	inv       map[string]map[string]struct{}

	readErr error
}

func newFakeStore(trackings map[string][]int64) *fakeStore {
	return &fakeStore{
		trackings: trackings,
		snaps:     make(map[pairKey]AccountStatus),
		inv:       make(map[string]map[string]struct{}),
	}
}

func (s *fakeStore) Trackings(context.Context) (map[string][]int64, error) {
	return s.trackings, nil
}

func (s *fakeStore) ReadSnapshot(_ context.Context, chat int64, id string) (AccountStatus, bool, error) {
	if s.readErr != nil {
		return AccountStatus{}, false, s.readErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.snaps[pairKey{chat, id}]
	return st, ok, nil
}

func (s *fakeStore) WriteSnapshot(_ context.Context, chat int64, id string, st AccountStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[pairKey{chat, id}] = st
	return nil
}

func (s *fakeStore) ReadInventory(_ context.Context, id string) (map[string]struct{}, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.inv[id]
	return set, ok, nil
}

func (s *fakeStore) WriteInventory(_ context.Context, id string, items map[string]struct{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inv[id] = items
	return nil
}

type sentMessage struct {
	chat  int64
	lines []string
}

type fakeSender struct {
	mu    sync.Mutex
	sends []sentMessage
}

func (s *fakeSender) Send(_ context.Context, chat int64, lines []string, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, sentMessage{chat: chat, lines: lines})
	return nil
}

// faultySender fails sends for selected chats and records the rest.
type faultySender struct {
	fakeSender
	failFor map[int64]bool
}

func (s *faultySender) Send(ctx context.Context, chat int64, lines []string, artifact []byte) error {
	if s.failFor[chat] {
		return errors.New("gateway unavailable")
	}
	return s.fakeSender.Send(ctx, chat, lines, artifact)
}

func (s *fakeSender) byChat() map[int64][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64][]string)
	for _, m := range s.sends {
		out[m.chat] = append(out[m.chat], m.lines...)
	}
	return out
}

func newTestMonitor(store *fakeStore, src *fakeSource, inv *fakeInventory, meta *countingSource, sender *fakeSender, opts Options) *Monitor {
	if meta == nil {
		meta = &countingSource{data: map[string]GameDetails{}}
	}
	return New(src, inv, meta, store, store, nil, sender, opts)
}

func TestRunCycleNoChange(t *testing.T) {
	store := newFakeStore(map[string][]int64{"s1": {1}})
	started := time.Now().Add(-time.Hour)
	store.snaps[pairKey{1, "s1"}] = AccountStatus{
		AccountID: "s1", Presence: PresenceOnline, GameID: "730", GameStartedAt: started,
	}
	src := &fakeSource{statuses: map[string]AccountStatus{
		"s1": {Presence: PresenceOnline, GameID: "730"},
	}}
	sender := &fakeSender{}
	m := newTestMonitor(store, src, nil, nil, sender, Options{})

	if err := m.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(sender.sends) != 0 {
		t.Fatalf("sends = %d, want 0", len(sender.sends))
	}
	// The snapshot is refreshed and the start time carried forward.
	snap := store.snaps[pairKey{1, "s1"}]
	if !snap.GameStartedAt.Equal(started) {
		t.Errorf("start time = %v, want carried %v", snap.GameStartedAt, started)
	}
}

func TestRunCycleGameStarted(t *testing.T) {
	store := newFakeStore(map[string][]int64{"s1": {1}})
	store.snaps[pairKey{1, "s1"}] = AccountStatus{AccountID: "s1", Presence: PresenceOnline}
	src := &fakeSource{statuses: map[string]AccountStatus{
		"s1": {DisplayName: "alice", Presence: PresenceOnline, GameID: "730"},
	}}
	meta := &countingSource{data: map[string]GameDetails{"730": {Name: "Counter-Strike 2"}}}
	sender := &fakeSender{}
	m := newTestMonitor(store, src, nil, meta, sender, Options{})

	if err := m.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	got := sender.byChat()
	want := []string{"alice started playing Counter-Strike 2"}
	if !reflect.DeepEqual(got[1], want) {
		t.Fatalf("chat 1 lines = %v, want %v", got[1], want)
	}
	if snap := store.snaps[pairKey{1, "s1"}]; snap.GameStartedAt.IsZero() {
		t.Error("snapshot missing a game start time")
	}
	if stats := m.LastCycle(); stats.Changes != 1 || stats.Chats != 1 {
		t.Errorf("stats = %+v, want 1 change / 1 chat", stats)
	}
}

func TestRunCycleSwitchSuppressesSubState(t *testing.T) {
	store := newFakeStore(map[string][]int64{"s1": {1}})
	store.snaps[pairKey{1, "s1"}] = AccountStatus{
		AccountID: "s1", Presence: PresenceOnline, GameID: "100",
		GameStartedAt: time.Now().Add(-time.Hour),
	}
	// Game and persona change in the same poll: one switch line only.
	src := &fakeSource{statuses: map[string]AccountStatus{
		"s1": {DisplayName: "alice", Presence: PresenceAway, GameID: "200"},
	}}
	sender := &fakeSender{}
	m := newTestMonitor(store, src, nil, nil, sender, Options{})

	if err := m.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	got := sender.byChat()
	if len(got[1]) != 1 {
		t.Fatalf("chat 1 lines = %v, want exactly one", got[1])
	}
}

func TestRunCycleFanoutSharesOneLookup(t *testing.T) {
	// One account tracked in two chats: both get the change, the metadata
	// source sees a single batched call, and the elapsed time matches.
	store := newFakeStore(map[string][]int64{"s1": {1, 2}})
	started := time.Now().Add(-90 * time.Minute)
	for _, chat := range []int64{1, 2} {
		store.snaps[pairKey{chat, "s1"}] = AccountStatus{
			AccountID: "s1", Presence: PresenceOnline, GameID: "100", GameStartedAt: started,
		}
	}
	src := &fakeSource{statuses: map[string]AccountStatus{
		"s1": {DisplayName: "alice", Presence: PresenceOnline, GameID: "200"},
	}}
	meta := &countingSource{data: map[string]GameDetails{
		"100": {Name: "Old Game"},
		"200": {Name: "New Game"},
	}}
	sender := &fakeSender{}
	m := newTestMonitor(store, src, nil, meta, sender, Options{})

	if err := m.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	got := sender.byChat()
	if len(got[1]) != 1 || len(got[2]) != 1 {
		t.Fatalf("lines per chat = %d/%d, want 1/1", len(got[1]), len(got[2]))
	}
	if got[1][0] != got[2][0] {
		t.Errorf("chats diverged: %q vs %q", got[1][0], got[2][0])
	}
	if meta.calls != 1 {
		t.Errorf("metadata calls = %d, want 1 batched lookup", meta.calls)
	}
	if want := []string{"100", "200"}; !reflect.DeepEqual(meta.batches[0], want) {
		t.Errorf("lookup batch = %v, want %v", meta.batches[0], want)
	}
}

func TestRunCycleSendFailureIsolatedPerChat(t *testing.T) {
	// The same change fans out to two chats; the first chat's send fails.
	// The second chat still gets its notification and the cycle succeeds.
	store := newFakeStore(map[string][]int64{"s1": {1, 2}})
	for _, chat := range []int64{1, 2} {
		store.snaps[pairKey{chat, "s1"}] = AccountStatus{AccountID: "s1", Presence: PresenceOnline}
	}
	src := &fakeSource{statuses: map[string]AccountStatus{
		"s1": {DisplayName: "alice", Presence: PresenceOnline, GameID: "730"},
	}}
	sender := &faultySender{failFor: map[int64]bool{1: true}}
	m := New(src, nil, &countingSource{}, store, store, nil, sender, Options{})

	if err := m.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	got := sender.byChat()
	if len(got[1]) != 0 {
		t.Errorf("chat 1 received %v despite its send failing", got[1])
	}
	if want := []string{"alice started playing app 730"}; !reflect.DeepEqual(got[2], want) {
		t.Errorf("chat 2 lines = %v, want %v", got[2], want)
	}
}

func TestRunCycleInventoryColdStart(t *testing.T) {
	store := newFakeStore(map[string][]int64{"s1": {1}})
	src := &fakeSource{statuses: map[string]AccountStatus{
		"s1": {Presence: PresenceOffline},
	}}
	inv := &fakeInventory{items: map[string][]string{"s1": {"10", "20"}}}
	sender := &fakeSender{}
	m := newTestMonitor(store, src, inv, nil, sender, Options{InventoryInterval: time.Nanosecond})

	if err := m.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(sender.sends) != 0 {
		t.Fatalf("cold start produced sends: %v", sender.sends)
	}
	if set := store.inv["s1"]; len(set) != 2 {
		t.Fatalf("stored inventory = %v, want 2 items", set)
	}

	// Next cycle: one new item, exactly one notification.
	inv.items["s1"] = []string{"10", "20", "30"}
	if err := m.RunCycle(context.Background()); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	got := sender.byChat()
	if len(got[1]) != 1 {
		t.Fatalf("chat 1 lines = %v, want exactly one", got[1])
	}
	if got[1][0] != "s1 got a new game: app 30" {
		t.Errorf("line = %q, want %q", got[1][0], "s1 got a new game: app 30")
	}
	if set := store.inv["s1"]; len(set) != 3 {
		t.Errorf("stored inventory = %v, want 3 items", set)
	}
}

func TestRunCycleInventoryFetchFailureSkipsAccount(t *testing.T) {
	store := newFakeStore(map[string][]int64{"s1": {1}})
	store.inv["s1"] = map[string]struct{}{"10": {}}
	src := &fakeSource{statuses: map[string]AccountStatus{
		"s1": {Presence: PresenceOffline},
	}}
	inv := &fakeInventory{errs: map[string]error{"s1": errors.New("private profile")}}
	sender := &fakeSender{}
	m := newTestMonitor(store, src, inv, nil, sender, Options{InventoryInterval: time.Nanosecond})

	if err := m.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(sender.sends) != 0 {
		t.Fatalf("sends = %d, want 0", len(sender.sends))
	}
	// Old inventory snapshot untouched.
	if set := store.inv["s1"]; len(set) != 1 {
		t.Errorf("stored inventory = %v, want untouched single item", set)
	}
}

func TestRunCycleFetchFailureKeepsSnapshot(t *testing.T) {
	store := newFakeStore(map[string][]int64{"s1": {1}, "s2": {1}})
	started := time.Now().Add(-time.Hour)
	store.snaps[pairKey{1, "s1"}] = AccountStatus{
		AccountID: "s1", Presence: PresenceOnline, GameID: "730", GameStartedAt: started,
	}
	store.snaps[pairKey{1, "s2"}] = AccountStatus{AccountID: "s2", Presence: PresenceOnline}
	src := &fakeSource{
		statuses: map[string]AccountStatus{
			"s2": {DisplayName: "bob", Presence: PresenceOffline},
		},
		errs: map[string]error{"s1": errors.New("503")},
	}
	sender := &fakeSender{}
	m := newTestMonitor(store, src, nil, nil, sender, Options{})

	if err := m.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	// s1's failure neither aborts the cycle nor disturbs its snapshot;
	// s2's change still goes out.
	snap := store.snaps[pairKey{1, "s1"}]
	if snap.GameID != "730" || !snap.GameStartedAt.Equal(started) {
		t.Errorf("s1 snapshot disturbed: %+v", snap)
	}
	got := sender.byChat()
	if want := []string{"bob went offline"}; !reflect.DeepEqual(got[1], want) {
		t.Errorf("chat 1 lines = %v, want %v", got[1], want)
	}
}

func TestRunCycleStoreErrorAborts(t *testing.T) {
	store := newFakeStore(map[string][]int64{"s1": {1}})
	store.readErr = errors.New("connection refused")
	src := &fakeSource{statuses: map[string]AccountStatus{"s1": {}}}
	sender := &fakeSender{}
	m := newTestMonitor(store, src, nil, nil, sender, Options{})

	if err := m.RunCycle(context.Background()); err == nil {
		t.Fatal("expected an error from a failing store")
	}
	if stats := m.LastCycle(); stats.Err == "" {
		t.Error("stats should record the abort")
	}
}

func TestRunCycleEmptyTrackings(t *testing.T) {
	store := newFakeStore(map[string][]int64{})
	sender := &fakeSender{}
	m := newTestMonitor(store, &fakeSource{}, nil, nil, sender, Options{})
	if err := m.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(sender.sends) != 0 {
		t.Errorf("sends = %d, want 0", len(sender.sends))
	}
}

func TestAfterCycleHook(t *testing.T) {
	store := newFakeStore(map[string][]int64{})
	m := newTestMonitor(store, &fakeSource{}, nil, nil, &fakeSender{}, Options{})
	var got CycleStats
	ran := false
	m.AfterCycle = func(_ context.Context, stats CycleStats) {
		ran = true
		got = stats
	}
	if err := m.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if !ran {
		t.Fatal("AfterCycle did not run")
	}
	if got.At.IsZero() {
		t.Error("stats missing cycle timestamp")
	}
}
