package monitor

import (
	"fmt"
	"sort"
	"time"
)

// Classify compares a previous and current status for one (chat, account)
// pair and returns the resulting change, if any. Game transitions take
// precedence over presence transitions: a simultaneous game switch and
// persona change is reported only as the game switch.
func Classify(chatID int64, prev, curr AccountStatus, now time.Time) (Change, bool) {
	ch := Change{ChatID: chatID, AccountID: curr.AccountID, Previous: prev, Current: curr}
	switch {
	case !prev.InGame() && curr.InGame():
		ch.Kind = ChangeGameStarted
	case prev.InGame() && curr.InGame() && prev.GameID != curr.GameID:
		ch.Kind = ChangeGameSwitched
		ch.Elapsed = elapsedSince(prev.GameStartedAt, now)
	case prev.InGame() && !curr.InGame():
		ch.Kind = ChangeGameEnded
		ch.Elapsed = elapsedSince(prev.GameStartedAt, now)
	case prev.GameID == curr.GameID && prev.InGame() && prev.Presence != curr.Presence:
		ch.Kind = ChangeSubStateChanged
	case !prev.InGame() && !curr.InGame() && prev.Presence != curr.Presence:
		ch.Kind = ChangePresenceChanged
	default:
		return Change{}, false
	}
	return ch, true
}

func elapsedSince(start, now time.Time) time.Duration {
	if start.IsZero() || now.Before(start) {
		return 0
	}
	return now.Sub(start)
}

// CarryGameStart fixes up the current status's GameStartedAt against the
// previous snapshot: the timestamp is set on the empty→set transition and
// carried forward while the game id stays the same. Must run before the
// snapshot write so the next cycle diffs against a stable start time.
func CarryGameStart(prev AccountStatus, hadPrev bool, curr *AccountStatus, now time.Time) {
	if !curr.InGame() {
		curr.GameStartedAt = time.Time{}
		return
	}
	if hadPrev && prev.GameID == curr.GameID && !prev.GameStartedAt.IsZero() {
		curr.GameStartedAt = prev.GameStartedAt
		return
	}
	curr.GameStartedAt = now
}

// DiffInventory returns the item ids present in curr but not in prev, sorted.
// It computes a set difference: removed items produce nothing, and the
// result does not depend on set sizes.
func DiffInventory(prev map[string]struct{}, curr []string) []string {
	var added []string
	seen := make(map[string]struct{}, len(curr))
	for _, id := range curr {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := prev[id]; !ok {
			added = append(added, id)
		}
	}
	sort.Strings(added)
	return added
}

// FormatElapsed renders a duration as whole hours and minutes ("3h 7m",
// "42m"). Durations under a minute yield an empty string.
func FormatElapsed(d time.Duration) string {
	if d < time.Minute {
		return ""
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dm", m)
	}
}
