package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/okatz/steamwatch/cache"
	"github.com/okatz/steamwatch/telemetry"
)

// groupByChat splits a cycle's flat change list per destination chat,
// preserving detection order within each chat.
func groupByChat(changes []Change) map[int64][]Change {
	out := make(map[int64][]Change)
	for _, ch := range changes {
		out[ch.ChatID] = append(out[ch.ChatID], ch)
	}
	return out
}

// collectGameIDs gathers the distinct game ids referenced by game
// transitions across the entire cycle, previous and current alike, so a
// single batched lookup can cover every chat.
func collectGameIDs(changes []Change) []string {
	set := make(map[string]struct{})
	for _, ch := range changes {
		switch ch.Kind {
		case ChangeGameStarted, ChangeGameSwitched, ChangeGameEnded:
			if ch.Previous.GameID != "" {
				set[ch.Previous.GameID] = struct{}{}
			}
			if ch.Current.GameID != "" {
				set[ch.Current.GameID] = struct{}{}
			}
		case ChangeInventoryAdded:
			for _, id := range ch.NewItems {
				set[id] = struct{}{}
			}
		}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CachedMetadataSource fronts a MetadataSource with a cache so ids seen in
// earlier cycles skip the network. Lookups stay batched: one upstream call
// per cycle covering exactly the uncached ids.
type CachedMetadataSource struct {
	Source MetadataSource
	Cache  cache.Cache
	TTL    time.Duration
}

func (c *CachedMetadataSource) FetchGameMetadata(ctx context.Context, gameIDs []string) (map[string]GameDetails, error) {
	out := make(map[string]GameDetails, len(gameIDs))
	var missing []string
	for _, id := range gameIDs {
		raw, err := c.Cache.Get(ctx, "game:"+id)
		if err != nil {
			missing = append(missing, id)
			continue
		}
		var gd GameDetails
		if err := json.Unmarshal(raw, &gd); err != nil {
			missing = append(missing, id)
			continue
		}
		out[id] = gd
	}
	if len(missing) == 0 {
		return out, nil
	}
	fetched, err := c.Source.FetchGameMetadata(ctx, missing)
	if err != nil {
		// partial results are acceptable; cached entries still help
		return out, err
	}
	for id, gd := range fetched {
		out[id] = gd
		if raw, err := json.Marshal(gd); err == nil {
			if err := c.Cache.Set(ctx, "game:"+id, raw, c.TTL); err != nil {
				slog.Debug("metadata cache set failed", slog.String("game", id), slog.Any("err", err))
			}
		}
	}
	return out, nil
}

// lookupMetadata performs the one cycle-scoped batched lookup. Best-effort:
// on failure formatting falls back to names already on the status objects.
func (m *Monitor) lookupMetadata(ctx context.Context, changes []Change) map[string]GameDetails {
	ids := collectGameIDs(changes)
	if len(ids) == 0 {
		return nil
	}
	telemetry.MetadataLookups.Inc()
	meta, err := m.metadata.FetchGameMetadata(ctx, ids)
	if err != nil {
		slog.Warn("game metadata lookup failed; using fallback names",
			slog.Int("game_count", len(ids)), slog.Any("err", err), slog.String("component", "watch"))
	}
	return meta
}
