package notify

import (
	"context"
	"log/slog"
	"strings"
)

// LogSender writes notifications to the log instead of a chat gateway. Used
// when no gateway is configured so detection keeps running and stays visible.
type LogSender struct{}

func (LogSender) Send(_ context.Context, chatID int64, lines []string, artifact []byte) error {
	slog.Info("notification (no gateway configured)",
		slog.Int64("chat_id", chatID),
		slog.String("text", strings.Join(lines, " | ")),
		slog.Int("artifact_bytes", len(artifact)),
		slog.String("component", "notify"))
	return nil
}
