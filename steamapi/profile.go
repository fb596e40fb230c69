package steamapi

import (
	"context"
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Profile is a persona state scraped from the public community profile,
// shared by the xml and html fetch modes. Neither mode needs an API key.
type Profile struct {
	DisplayName string
	State       string // offline | online | busy | away | snooze | in-game
	GameID      string // xml mode only; html mode leaves it empty
	GameName    string
}

// profileXML mirrors the community profile ?xml=1 document.
type profileXML struct {
	SteamID      string `xml:"steamID"`
	OnlineState  string `xml:"onlineState"`
	StateMessage string `xml:"stateMessage"`
	InGameInfo   struct {
		GameName string `xml:"gameName"`
		GameLink string `xml:"gameLink"`
	} `xml:"inGameInfo"`
}

var appLinkPattern = regexp.MustCompile(`/app/(\d+)`)

// FetchProfileXML fetches and parses the community XML feed for one account.
func (c *Client) FetchProfileXML(ctx context.Context, steamID string) (Profile, error) {
	body, status, err := c.get(ctx, fmt.Sprintf("%s/profiles/%s?xml=1", c.communityBase(), steamID))
	if err != nil {
		return Profile{}, fmt.Errorf("fetch profile xml: %w", err)
	}
	if status < 200 || status >= 300 {
		return Profile{}, fmt.Errorf("fetch profile xml: status %d", status)
	}
	var doc profileXML
	if err := xml.Unmarshal(body, &doc); err != nil {
		return Profile{}, fmt.Errorf("parse profile xml: %w", err)
	}
	p := Profile{
		DisplayName: doc.SteamID,
		State:       strings.ToLower(doc.OnlineState),
		GameName:    doc.InGameInfo.GameName,
	}
	// The onlineState element only distinguishes offline/online/in-game;
	// busy/away/snooze show up in the state message.
	switch msg := strings.ToLower(doc.StateMessage); {
	case strings.Contains(msg, "busy"):
		p.State = "busy"
	case strings.Contains(msg, "away"):
		p.State = "away"
	case strings.Contains(msg, "snooze"):
		p.State = "snooze"
	}
	if m := appLinkPattern.FindStringSubmatch(doc.InGameInfo.GameLink); m != nil {
		p.GameID = m[1]
	}
	return p, nil
}

// Lazily compiled patterns for the html mode scrape.
var (
	htmlPersonaName = sync.OnceValue(func() *regexp.Regexp {
		return regexp.MustCompile(`(?s)<span class="actual_persona_name">\s*(.*?)\s*</span>`)
	})
	htmlPersonaState = sync.OnceValue(func() *regexp.Regexp {
		return regexp.MustCompile(`profile_in_game persona ([a-z-]+)`)
	})
	htmlGameName = sync.OnceValue(func() *regexp.Regexp {
		return regexp.MustCompile(`(?s)<div class="profile_in_game_name">\s*(.*?)\s*</div>`)
	})
)

// FetchProfileHTML scrapes the public profile page for one account. The page
// carries no numeric app id, so GameID stays empty and callers fall back to
// the game name as the opaque identifier.
func (c *Client) FetchProfileHTML(ctx context.Context, steamID string) (Profile, error) {
	body, status, err := c.get(ctx, fmt.Sprintf("%s/profiles/%s", c.communityBase(), steamID))
	if err != nil {
		return Profile{}, fmt.Errorf("fetch profile html: %w", err)
	}
	if status < 200 || status >= 300 {
		return Profile{}, fmt.Errorf("fetch profile html: status %d", status)
	}
	page := string(body)
	var p Profile
	if m := htmlPersonaName().FindStringSubmatch(page); m != nil {
		p.DisplayName = m[1]
	}
	if m := htmlPersonaState().FindStringSubmatch(page); m != nil {
		p.State = m[1]
	}
	if m := htmlGameName().FindStringSubmatch(page); m != nil {
		p.GameName = m[1]
		p.State = "in-game"
	}
	if p.DisplayName == "" && p.State == "" {
		return Profile{}, fmt.Errorf("parse profile html: no persona markers found")
	}
	if p.State == "" {
		p.State = "offline"
	}
	return p, nil
}
