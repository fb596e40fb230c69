package steamapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// GetOwnedGames fetches the app ids an account owns, free games included.
// The boolean is false when no data could be obtained; private profiles
// return an empty response body rather than an error.
func (c *Client) GetOwnedGames(ctx context.Context, steamID string) ([]string, bool) {
	if steamID == "" {
		return nil, false
	}
	body, ok := c.getWithRotation(ctx, func(key string) string {
		q := url.Values{}
		q.Set("key", key)
		q.Set("steamid", steamID)
		q.Set("include_played_free_games", "1")
		return fmt.Sprintf("%s/IPlayerService/GetOwnedGames/v1/?%s", c.apiBase(), q.Encode())
	})
	if !ok {
		return nil, false
	}
	var resp struct {
		Response struct {
			GameCount int `json:"game_count"`
			Games     []struct {
				AppID int `json:"appid"`
			} `json:"games"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, false
	}
	ids := make([]string, 0, len(resp.Response.Games))
	for _, g := range resp.Response.Games {
		ids = append(ids, strconv.Itoa(g.AppID))
	}
	return ids, true
}
