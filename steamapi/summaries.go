package steamapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// PlayerSummary is the subset of GetPlayerSummaries this service consumes.
type PlayerSummary struct {
	SteamID      string `json:"steamid"`
	PersonaName  string `json:"personaname"`
	PersonaState int    `json:"personastate"` // 0 offline .. 6 looking to play
	GameID       string `json:"gameid"`       // set while in a game
	GameName     string `json:"gameextrainfo"`
}

// GetPlayerSummary fetches the current persona state of one account via the
// official statistics endpoint, rotating API keys on failure. The boolean is
// false when no data could be obtained (pool exhausted, unknown account).
func (c *Client) GetPlayerSummary(ctx context.Context, steamID string) (PlayerSummary, bool) {
	if steamID == "" {
		return PlayerSummary{}, false
	}
	body, ok := c.getWithRotation(ctx, func(key string) string {
		q := url.Values{}
		q.Set("key", key)
		q.Set("steamids", steamID)
		return fmt.Sprintf("%s/ISteamUser/GetPlayerSummaries/v2/?%s", c.apiBase(), q.Encode())
	})
	if !ok {
		return PlayerSummary{}, false
	}
	var resp struct {
		Response struct {
			Players []PlayerSummary `json:"players"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Response.Players) == 0 {
		return PlayerSummary{}, false
	}
	return resp.Response.Players[0], true
}
