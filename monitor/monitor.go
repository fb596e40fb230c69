package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/okatz/steamwatch/telemetry"
)

// Monitor owns one fetch→detect→aggregate→dispatch pipeline. All collaborators
// are injected so tests can run the pipeline against fakes.
type Monitor struct {
	status    StatusSource
	inventory InventorySource
	metadata  MetadataSource
	store     StatusStore
	invStore  InventoryStore
	renderer  Renderer
	sender    Sender

	batchSize      int
	inventoryEvery time.Duration

	// AfterCycle, when set, runs at the end of every completed cycle
	// (aborted cycles included). Used for the kv heartbeat.
	AfterCycle func(ctx context.Context, stats CycleStats)

	mu            sync.Mutex
	lastInventory time.Time
	last          CycleStats
}

// CycleStats summarizes the most recent cycle for the ops surface.
type CycleStats struct {
	At       time.Time     `json:"at"`
	Duration time.Duration `json:"duration"`
	Accounts int           `json:"accounts"`
	Fetched  int           `json:"fetched"`
	Changes  int           `json:"changes"`
	Chats    int           `json:"chats"`
	Err      string        `json:"err,omitempty"`
}

// Options tunes the pipeline.
type Options struct {
	BatchSize         int           // fetch batch size, default 5
	InventoryInterval time.Duration // 0 disables inventory polling
}

// New assembles a Monitor from its collaborators.
func New(status StatusSource, inventory InventorySource, metadata MetadataSource,
	store StatusStore, invStore InventoryStore, renderer Renderer, sender Sender, opts Options) *Monitor {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if renderer == nil {
		renderer = NopRenderer{}
	}
	return &Monitor{
		status:         status,
		inventory:      inventory,
		metadata:       metadata,
		store:          store,
		invStore:       invStore,
		renderer:       renderer,
		sender:         sender,
		batchSize:      opts.BatchSize,
		inventoryEvery: opts.InventoryInterval,
	}
}

// LastCycle returns stats for the most recent cycle.
func (m *Monitor) LastCycle() CycleStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

type pairKey struct {
	chat int64
	acct string
}

// RunCycle executes one full cycle. Snapshot reads happen before the fetch,
// the diff happens before any snapshot write, and writes cover only pairs the
// diff actually evaluated, so a concurrent unbind cannot resurrect state.
// Store I/O errors abort the cycle; everything else is recovered locally.
func (m *Monitor) RunCycle(ctx context.Context) error {
	started := time.Now()
	telemetry.CyclesTotal.Inc()
	ctx, span := telemetry.StartSpan(ctx, "steamwatch", "watch.cycle")
	defer span.End()

	stats := CycleStats{At: started}
	defer func() {
		stats.Duration = time.Since(started)
		telemetry.CycleDuration.Observe(stats.Duration.Seconds())
		m.mu.Lock()
		m.last = stats
		m.mu.Unlock()
		if m.AfterCycle != nil {
			m.AfterCycle(ctx, stats)
		}
	}()

	err := m.runCycle(ctx, started, &stats)
	if err != nil {
		stats.Err = err.Error()
		telemetry.CyclesAborted.Inc()
		telemetry.RecordError(span, err)
		return err
	}
	telemetry.SetSpanSuccess(span)
	return nil
}

func (m *Monitor) runCycle(ctx context.Context, now time.Time, stats *CycleStats) error {
	trackings, err := m.store.Trackings(ctx)
	if err != nil {
		return fmt.Errorf("read trackings: %w", err)
	}
	ids := make([]string, 0, len(trackings))
	for id := range trackings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	stats.Accounts = len(ids)
	telemetry.SetTrackedAccounts(len(ids))
	if len(ids) == 0 {
		return nil
	}

	// Previous state for every tracked pair, captured before the fetch.
	prev := make(map[pairKey]AccountStatus, len(ids))
	hadPrev := make(map[pairKey]bool, len(ids))
	for _, id := range ids {
		for _, chat := range trackings[id] {
			k := pairKey{chat, id}
			st, ok, err := m.store.ReadSnapshot(ctx, chat, id)
			if err != nil {
				return fmt.Errorf("read snapshot %d/%s: %w", chat, id, err)
			}
			prev[k] = st
			hadPrev[k] = ok
		}
	}

	var current map[string]AccountStatus
	telemetry.TimeFunc(telemetry.FetchDuration, func() {
		current = fetchAll(ctx, m.status, ids, m.batchSize)
	})
	stats.Fetched = len(current)

	// Diff. Writes are staged so the store is only touched once the whole
	// detection pass is done.
	var changes []Change
	writes := make(map[pairKey]AccountStatus)
	for _, id := range ids {
		curr, ok := current[id]
		if !ok {
			continue // fetch failed; account keeps its old snapshot
		}
		for _, chat := range trackings[id] {
			k := pairKey{chat, id}
			st := curr
			CarryGameStart(prev[k], hadPrev[k], &st, now)
			if hadPrev[k] {
				if ch, ok := Classify(chat, prev[k], st, now); ok {
					changes = append(changes, ch)
					telemetry.CountChange(ch.Kind.String())
				}
			}
			writes[k] = st
		}
	}

	if m.inventoryDue(now) {
		invChanges, err := m.runInventory(ctx, ids, trackings)
		if err != nil {
			return err
		}
		changes = append(changes, invChanges...)
	}

	for k, st := range writes {
		if err := m.store.WriteSnapshot(ctx, k.chat, k.acct, st); err != nil {
			return fmt.Errorf("write snapshot %d/%s: %w", k.chat, k.acct, err)
		}
	}
	stats.Changes = len(changes)
	if len(changes) == 0 {
		return nil
	}

	meta := m.lookupMetadata(ctx, changes)
	grouped := groupByChat(changes)
	chats := make([]int64, 0, len(grouped))
	for chat := range grouped {
		chats = append(chats, chat)
	}
	sort.Slice(chats, func(i, j int) bool { return chats[i] < chats[j] })
	stats.Chats = len(chats)
	for _, chat := range chats {
		m.dispatch(ctx, chat, grouped[chat], meta)
	}
	return nil
}

// inventoryDue reports whether the inventory sub-cycle should run now and
// advances the marker when it should.
func (m *Monitor) inventoryDue(now time.Time) bool {
	if m.inventory == nil || m.invStore == nil || m.inventoryEvery <= 0 {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.lastInventory.IsZero() && now.Sub(m.lastInventory) < m.inventoryEvery {
		return false
	}
	m.lastInventory = now
	return true
}

// runInventory diffs owned-item sets. The first snapshot for an account is
// stored silently so a freshly tracked account doesn't report its whole
// library as new.
func (m *Monitor) runInventory(ctx context.Context, ids []string, trackings map[string][]int64) ([]Change, error) {
	var changes []Change
	for _, id := range ids {
		items, err := m.inventory.FetchInventory(ctx, id)
		if err != nil {
			slog.Debug("inventory fetch failed; skipping account",
				slog.String("account", id), slog.Any("err", err), slog.String("component", "watch"))
			continue
		}
		prev, ok, err := m.invStore.ReadInventory(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("read inventory %s: %w", id, err)
		}
		set := make(map[string]struct{}, len(items))
		for _, it := range items {
			set[it] = struct{}{}
		}
		if ok {
			if added := DiffInventory(prev, items); len(added) > 0 {
				for _, chat := range trackings[id] {
					ch := Change{
						ChatID:    chat,
						AccountID: id,
						Kind:      ChangeInventoryAdded,
						NewItems:  added,
					}
					changes = append(changes, ch)
					telemetry.CountChange(ch.Kind.String())
				}
			}
		}
		if err := m.invStore.WriteInventory(ctx, id, set); err != nil {
			return nil, fmt.Errorf("write inventory %s: %w", id, err)
		}
	}
	return changes, nil
}
