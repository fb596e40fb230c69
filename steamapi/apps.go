package steamapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// AppInfo is display metadata for one app id.
type AppInfo struct {
	AppID int    `json:"appid"`
	Name  string `json:"name"`
	Icon  string `json:"icon"`
}

// HeaderImageURL returns the store header art for an app id.
func HeaderImageURL(appID string) string {
	return fmt.Sprintf("https://shared.fastly.steamstatic.com/store_item_assets/steam/apps/%s/header.jpg", appID)
}

// GetApps resolves a batch of app ids to names in a single request. Ids that
// are not numeric app ids (the html fetch mode produces name surrogates) are
// skipped. Partial results are acceptable; the boolean is false only when
// the request itself yielded no data.
func (c *Client) GetApps(ctx context.Context, appIDs []string) (map[string]AppInfo, bool) {
	numeric := make([]string, 0, len(appIDs))
	for _, id := range appIDs {
		if _, err := strconv.Atoi(id); err == nil {
			numeric = append(numeric, id)
		}
	}
	if len(numeric) == 0 {
		return map[string]AppInfo{}, true
	}
	body, ok := c.getWithRotation(ctx, func(key string) string {
		q := url.Values{}
		q.Set("key", key)
		for i, id := range numeric {
			q.Set(fmt.Sprintf("appids[%d]", i), id)
		}
		return fmt.Sprintf("%s/ICommunityService/GetApps/v1/?%s", c.apiBase(), q.Encode())
	})
	if !ok {
		return nil, false
	}
	var resp struct {
		Response struct {
			Apps []AppInfo `json:"apps"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, false
	}
	out := make(map[string]AppInfo, len(resp.Response.Apps))
	for _, app := range resp.Response.Apps {
		out[strconv.Itoa(app.AppID)] = app
	}
	return out, true
}
