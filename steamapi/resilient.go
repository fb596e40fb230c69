package steamapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/okatz/steamwatch/telemetry"
)

// getWithRotation issues a keyed GET, trying every key in the pool at most
// once in rotation order. A 429 rotates to the next key immediately with no
// backoff; any other failure is logged and rotates too. The first 2xx body
// wins. Exhausting the pool (or an empty pool) returns (nil, false),
// never an error: "no data this cycle" is an ordinary outcome here.
func (c *Client) getWithRotation(ctx context.Context, build func(key string) string) ([]byte, bool) {
	keys := c.Rotator.InRotationOrder()
	if len(keys) == 0 {
		return nil, false
	}
	for _, key := range keys {
		if ctx.Err() != nil {
			return nil, false
		}
		body, status, err := c.get(ctx, build(key))
		if err != nil {
			slog.Warn("steam api request failed; rotating key",
				slog.Any("err", err), slog.String("component", "steamapi"))
			continue
		}
		if status == http.StatusTooManyRequests {
			slog.Debug("steam api rate limited; rotating key", slog.String("component", "steamapi"))
			continue
		}
		if status < 200 || status >= 300 {
			slog.Warn("steam api request rejected; rotating key",
				slog.Int("status", status), slog.String("component", "steamapi"))
			continue
		}
		return body, true
	}
	telemetry.KeyPoolExhausted.Inc()
	slog.Warn("steam api request failed on every key", slog.Int("pool_size", len(keys)), slog.String("component", "steamapi"))
	return nil, false
}
