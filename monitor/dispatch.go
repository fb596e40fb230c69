package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/okatz/steamwatch/telemetry"
)

// displayGameName resolves a game id to a display name: batched metadata
// first, then whatever name the status object already carried, then a
// generic placeholder.
func displayGameName(id, fallback string, meta map[string]GameDetails) string {
	if gd, ok := meta[id]; ok && gd.Name != "" {
		return gd.Name
	}
	if fallback != "" {
		return fallback
	}
	return "app " + id
}

// FormatLine renders one change as a human-readable line. The second return
// is false for changes whose resulting state has no configured template
// (busy/away/snooze and friends); those yield no notification.
func FormatLine(ch Change, meta map[string]GameDetails) (string, bool) {
	name := ch.Current.DisplayName
	if name == "" {
		name = ch.AccountID
	}
	switch ch.Kind {
	case ChangeGameStarted:
		game := displayGameName(ch.Current.GameID, ch.Current.GameName, meta)
		return fmt.Sprintf("%s started playing %s", name, game), true
	case ChangeGameSwitched:
		oldGame := displayGameName(ch.Previous.GameID, ch.Previous.GameName, meta)
		newGame := displayGameName(ch.Current.GameID, ch.Current.GameName, meta)
		if el := FormatElapsed(ch.Elapsed); el != "" {
			return fmt.Sprintf("%s switched to %s after %s of %s", name, newGame, el, oldGame), true
		}
		return fmt.Sprintf("%s switched to %s", name, newGame), true
	case ChangeGameEnded:
		game := displayGameName(ch.Previous.GameID, ch.Previous.GameName, meta)
		if el := FormatElapsed(ch.Elapsed); el != "" {
			return fmt.Sprintf("%s stopped playing %s after %s", name, game, el), true
		}
		return fmt.Sprintf("%s stopped playing %s", name, game), true
	case ChangeSubStateChanged:
		// only the return-to-keyboard transition is worth a message
		if ch.Current.Presence == PresenceOnline {
			game := displayGameName(ch.Current.GameID, ch.Current.GameName, meta)
			return fmt.Sprintf("%s is back, still playing %s", name, game), true
		}
		return "", false
	case ChangePresenceChanged:
		switch ch.Current.Presence {
		case PresenceOnline:
			return fmt.Sprintf("%s is now online", name), true
		case PresenceOffline:
			return fmt.Sprintf("%s went offline", name), true
		default:
			return "", false
		}
	case ChangeInventoryAdded:
		games := make([]string, 0, len(ch.NewItems))
		for _, id := range ch.NewItems {
			games = append(games, displayGameName(id, "", meta))
		}
		if len(games) == 1 {
			return fmt.Sprintf("%s got a new game: %s", name, games[0]), true
		}
		return fmt.Sprintf("%s got %d new games: %s", name, len(games), strings.Join(games, ", ")), true
	}
	return "", false
}

// dispatch renders and sends one chat's changes. A failure for one chat is
// logged and does not affect the others; zero resulting lines means no send.
func (m *Monitor) dispatch(ctx context.Context, chatID int64, changes []Change, meta map[string]GameDetails) {
	lines := make([]string, 0, len(changes))
	for _, ch := range changes {
		if line, ok := FormatLine(ch, meta); ok {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return
	}
	artifact, err := m.renderer.Render(ctx, chatID, changes, meta)
	if err != nil {
		slog.Warn("render failed; sending text only",
			slog.Int64("chat", chatID), slog.Any("err", err), slog.String("component", "watch"))
		artifact = nil
	}
	if err := m.sender.Send(ctx, chatID, lines, artifact); err != nil {
		telemetry.NotificationsFailed.Inc()
		slog.Warn("notification send failed",
			slog.Int64("chat", chatID), slog.Int("lines", len(lines)), slog.Any("err", err), slog.String("component", "watch"))
		return
	}
	telemetry.NotificationsSent.Inc()
	slog.Info("notification sent",
		slog.Int64("chat", chatID), slog.Int("lines", len(lines)), slog.String("component", "watch"))
}
