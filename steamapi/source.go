package steamapi

import (
	"context"
	"fmt"

	"github.com/okatz/steamwatch/config"
	"github.com/okatz/steamwatch/monitor"
)

// StatusSource adapts the Client to the watch engine's per-account status
// contract for the configured fetch mode.
type StatusSource struct {
	Client *Client
	Mode   string // config.FetchModeAPI | FetchModeXML | FetchModeHTML
}

func (s *StatusSource) FetchStatus(ctx context.Context, accountID string) (monitor.AccountStatus, error) {
	switch s.Mode {
	case config.FetchModeXML:
		p, err := s.Client.FetchProfileXML(ctx, accountID)
		if err != nil {
			return monitor.AccountStatus{}, err
		}
		return profileToStatus(accountID, p), nil
	case config.FetchModeHTML:
		p, err := s.Client.FetchProfileHTML(ctx, accountID)
		if err != nil {
			return monitor.AccountStatus{}, err
		}
		st := profileToStatus(accountID, p)
		// no numeric id on the page; the name stands in as the opaque game id
		if st.GameID == "" && st.GameName != "" {
			st.GameID = st.GameName
		}
		return st, nil
	default:
		sum, ok := s.Client.GetPlayerSummary(ctx, accountID)
		if !ok {
			return monitor.AccountStatus{}, fmt.Errorf("no player summary for %s", accountID)
		}
		return monitor.AccountStatus{
			AccountID:   accountID,
			DisplayName: sum.PersonaName,
			Presence:    monitor.PresenceState(sum.PersonaState),
			GameID:      sum.GameID,
			GameName:    sum.GameName,
		}, nil
	}
}

func profileToStatus(accountID string, p Profile) monitor.AccountStatus {
	st := monitor.AccountStatus{
		AccountID:   accountID,
		DisplayName: p.DisplayName,
		GameID:      p.GameID,
		GameName:    p.GameName,
	}
	switch p.State {
	case "online", "in-game":
		st.Presence = monitor.PresenceOnline
	case "busy":
		st.Presence = monitor.PresenceBusy
	case "away":
		st.Presence = monitor.PresenceAway
	case "snooze":
		st.Presence = monitor.PresenceSnooze
	default:
		st.Presence = monitor.PresenceOffline
	}
	if p.State != "in-game" && p.GameID == "" {
		st.GameName = ""
	}
	return st
}

// InventorySource adapts GetOwnedGames to the watch engine.
type InventorySource struct {
	Client *Client
}

func (s *InventorySource) FetchInventory(ctx context.Context, accountID string) ([]string, error) {
	ids, ok := s.Client.GetOwnedGames(ctx, accountID)
	if !ok {
		return nil, fmt.Errorf("no owned games data for %s", accountID)
	}
	return ids, nil
}

// MetadataSource adapts the batched GetApps lookup to the watch engine.
type MetadataSource struct {
	Client *Client
}

func (s *MetadataSource) FetchGameMetadata(ctx context.Context, gameIDs []string) (map[string]monitor.GameDetails, error) {
	apps, ok := s.Client.GetApps(ctx, gameIDs)
	if !ok {
		return nil, fmt.Errorf("no app metadata for %d ids", len(gameIDs))
	}
	out := make(map[string]monitor.GameDetails, len(apps))
	for id, app := range apps {
		out[id] = monitor.GameDetails{Name: app.Name, CoverURL: HeaderImageURL(id)}
	}
	return out, nil
}
