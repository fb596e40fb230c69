package monitor

import (
	"testing"
	"time"
)

func TestFormatLine(t *testing.T) {
	meta := map[string]GameDetails{
		"730": {Name: "Counter-Strike 2"},
		"440": {Name: "Team Fortress 2"},
	}
	tests := []struct {
		name   string
		ch     Change
		want   string
		wantOK bool
	}{
		{
			name: "game started",
			ch: Change{
				AccountID: "765", Kind: ChangeGameStarted,
				Current: AccountStatus{DisplayName: "alice", GameID: "730"},
			},
			want: "alice started playing Counter-Strike 2", wantOK: true,
		},
		{
			name: "game started falls back to status name",
			ch: Change{
				AccountID: "765", Kind: ChangeGameStarted,
				Current: AccountStatus{DisplayName: "alice", GameID: "999", GameName: "Obscure Title"},
			},
			want: "alice started playing Obscure Title", wantOK: true,
		},
		{
			name: "game started with no name at all",
			ch: Change{
				AccountID: "765", Kind: ChangeGameStarted,
				Current: AccountStatus{DisplayName: "alice", GameID: "999"},
			},
			want: "alice started playing app 999", wantOK: true,
		},
		{
			name: "game switched with elapsed",
			ch: Change{
				AccountID: "765", Kind: ChangeGameSwitched, Elapsed: 3*time.Hour + 7*time.Minute,
				Previous: AccountStatus{GameID: "730"},
				Current:  AccountStatus{DisplayName: "alice", GameID: "440"},
			},
			want: "alice switched to Team Fortress 2 after 3h 7m of Counter-Strike 2", wantOK: true,
		},
		{
			name: "game switched without elapsed",
			ch: Change{
				AccountID: "765", Kind: ChangeGameSwitched,
				Previous: AccountStatus{GameID: "730"},
				Current:  AccountStatus{DisplayName: "alice", GameID: "440"},
			},
			want: "alice switched to Team Fortress 2", wantOK: true,
		},
		{
			name: "game ended",
			ch: Change{
				AccountID: "765", Kind: ChangeGameEnded, Elapsed: 42 * time.Minute,
				Previous: AccountStatus{GameID: "730"},
				Current:  AccountStatus{DisplayName: "alice"},
			},
			want: "alice stopped playing Counter-Strike 2 after 42m", wantOK: true,
		},
		{
			name: "back from away",
			ch: Change{
				AccountID: "765", Kind: ChangeSubStateChanged,
				Previous: AccountStatus{Presence: PresenceAway, GameID: "730"},
				Current:  AccountStatus{DisplayName: "alice", Presence: PresenceOnline, GameID: "730"},
			},
			want: "alice is back, still playing Counter-Strike 2", wantOK: true,
		},
		{
			name: "drifting to away has no template",
			ch: Change{
				AccountID: "765", Kind: ChangeSubStateChanged,
				Previous: AccountStatus{Presence: PresenceOnline, GameID: "730"},
				Current:  AccountStatus{DisplayName: "alice", Presence: PresenceAway, GameID: "730"},
			},
			wantOK: false,
		},
		{
			name: "came online",
			ch: Change{
				AccountID: "765", Kind: ChangePresenceChanged,
				Current: AccountStatus{DisplayName: "alice", Presence: PresenceOnline},
			},
			want: "alice is now online", wantOK: true,
		},
		{
			name: "went offline",
			ch: Change{
				AccountID: "765", Kind: ChangePresenceChanged,
				Previous: AccountStatus{Presence: PresenceOnline},
				Current:  AccountStatus{DisplayName: "alice", Presence: PresenceOffline},
			},
			want: "alice went offline", wantOK: true,
		},
		{
			name: "went busy has no template",
			ch: Change{
				AccountID: "765", Kind: ChangePresenceChanged,
				Current: AccountStatus{DisplayName: "alice", Presence: PresenceBusy},
			},
			wantOK: false,
		},
		{
			name: "one new inventory item",
			ch: Change{
				AccountID: "765", Kind: ChangeInventoryAdded, NewItems: []string{"440"},
				Current: AccountStatus{DisplayName: "alice"},
			},
			want: "alice got a new game: Team Fortress 2", wantOK: true,
		},
		{
			name: "several new inventory items",
			ch: Change{
				AccountID: "765", Kind: ChangeInventoryAdded, NewItems: []string{"440", "730"},
				Current: AccountStatus{DisplayName: "alice"},
			},
			want: "alice got 2 new games: Team Fortress 2, Counter-Strike 2", wantOK: true,
		},
		{
			name: "account id stands in for a missing display name",
			ch: Change{
				AccountID: "765", Kind: ChangeGameStarted,
				Current: AccountStatus{GameID: "730"},
			},
			want: "765 started playing Counter-Strike 2", wantOK: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FormatLine(tt.ch, meta)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("line = %q, want %q", got, tt.want)
			}
		})
	}
}
