// Package monitor implements the status-change detection and notification
// dispatch engine: it periodically fetches current Steam statuses and
// inventories for tracked accounts, diffs them against last-known snapshots,
// classifies each transition, aggregates changes per chat, and drives
// outbound notification.
package monitor

import (
	"context"
	"time"
)

// PresenceState is the Steam persona state. Values match the Web API's
// personastate field so the api fetch mode maps directly.
type PresenceState int

const (
	PresenceOffline PresenceState = iota
	PresenceOnline
	PresenceBusy
	PresenceAway
	PresenceSnooze
	PresenceLookingToTrade
	PresenceLookingToPlay
)

// String returns a human-readable name for the presence state.
func (p PresenceState) String() string {
	switch p {
	case PresenceOffline:
		return "offline"
	case PresenceOnline:
		return "online"
	case PresenceBusy:
		return "busy"
	case PresenceAway:
		return "away"
	case PresenceSnooze:
		return "snooze"
	case PresenceLookingToTrade:
		return "looking to trade"
	case PresenceLookingToPlay:
		return "looking to play"
	default:
		return "unknown"
	}
}

// AccountStatus is one tracked account's last-observed presence state.
// The persona sub-state (busy, away, ...) may coexist with an active game;
// InGame reports the display-level "is playing something" view.
type AccountStatus struct {
	AccountID   string
	DisplayName string
	Presence    PresenceState
	GameID      string // empty when not in a game
	GameName    string // best-effort, may be empty
	// GameStartedAt is set when GameID transitions from empty to set and
	// carried over across cycles while the game stays the same.
	GameStartedAt time.Time
}

// InGame reports whether the account has an active game.
func (s AccountStatus) InGame() bool { return s.GameID != "" }

// ChangeKind tags the nature of a detected transition.
type ChangeKind int

const (
	ChangeGameStarted ChangeKind = iota
	ChangeGameSwitched
	ChangeGameEnded
	ChangeSubStateChanged
	ChangePresenceChanged
	ChangeInventoryAdded
)

// String returns the metric/label name for the change kind.
func (k ChangeKind) String() string {
	switch k {
	case ChangeGameStarted:
		return "game_started"
	case ChangeGameSwitched:
		return "game_switched"
	case ChangeGameEnded:
		return "game_ended"
	case ChangeSubStateChanged:
		return "substate_changed"
	case ChangePresenceChanged:
		return "presence_changed"
	case ChangeInventoryAdded:
		return "inventory_added"
	default:
		return "unknown"
	}
}

// Change is a detected transition for one account within one chat context.
// The same underlying fetch produces one Change per chat tracking the account.
type Change struct {
	ChatID    int64
	AccountID string
	Previous  AccountStatus
	Current   AccountStatus
	Kind      ChangeKind
	// Elapsed is the time spent in the previous game; set for
	// ChangeGameSwitched and ChangeGameEnded, zero otherwise.
	Elapsed time.Duration
	// NewItems holds the added item ids for ChangeInventoryAdded.
	NewItems []string
}

// GameDetails is cycle-scoped display metadata for one game id.
type GameDetails struct {
	Name     string
	CoverURL string
}

// StatusSource fetches the current status of a single account. A failure must
// not mark the account offline; the caller skips the account this cycle.
type StatusSource interface {
	FetchStatus(ctx context.Context, accountID string) (AccountStatus, error)
}

// InventorySource fetches the current owned item ids of a single account.
type InventorySource interface {
	FetchInventory(ctx context.Context, accountID string) ([]string, error)
}

// MetadataSource performs the batched game metadata lookup. Partial results
// are acceptable; a missing entry falls back to the status object's own name.
type MetadataSource interface {
	FetchGameMetadata(ctx context.Context, gameIDs []string) (map[string]GameDetails, error)
}

// StatusStore persists last-known statuses per (chat, account) pair and knows
// which chats track which accounts. I/O errors abort the current cycle.
type StatusStore interface {
	Trackings(ctx context.Context) (map[string][]int64, error)
	ReadSnapshot(ctx context.Context, chatID int64, accountID string) (AccountStatus, bool, error)
	WriteSnapshot(ctx context.Context, chatID int64, accountID string, st AccountStatus) error
}

// InventoryStore persists last-known owned-item-id sets per account.
type InventoryStore interface {
	ReadInventory(ctx context.Context, accountID string) (map[string]struct{}, bool, error)
	WriteInventory(ctx context.Context, accountID string, items map[string]struct{}) error
}

// Renderer produces an opaque visual artifact for a chat's changes.
// Rendering is a collaborator concern; NopRenderer is the built-in default.
type Renderer interface {
	Render(ctx context.Context, chatID int64, changes []Change, meta map[string]GameDetails) ([]byte, error)
}

// NopRenderer renders nothing; notifications go out as text only.
type NopRenderer struct{}

func (NopRenderer) Render(context.Context, int64, []Change, map[string]GameDetails) ([]byte, error) {
	return nil, nil
}

// Sender forwards a rendered notification to a chat. Best-effort; failures
// are logged by the caller and do not affect other chats.
type Sender interface {
	Send(ctx context.Context, chatID int64, lines []string, artifact []byte) error
}
