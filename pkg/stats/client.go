// Package stats is a thin wrapper around a third-party game-statistics API.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Profile is the subset of the upstream response the bot reports.
type Profile struct {
	Name    string  `json:"name"`
	Level   int     `json:"level"`
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	WinRate float64 `json:"win_rate"`
}

// Summary renders a profile for a chat reply.
func (p Profile) Summary() string {
	return fmt.Sprintf("%s｜等级 %d｜胜场 %d｜败场 %d｜胜率 %.1f%%",
		p.Name, p.Level, p.Wins, p.Losses, p.WinRate*100)
}

type Client struct {
	http *resty.Client
}

func NewClient(baseURL, apiKey string) *Client {
	c := resty.New().SetBaseURL(baseURL).SetTimeout(10 * time.Second)
	if apiKey != "" {
		c.SetHeader("X-Api-Key", apiKey)
	}
	return &Client{http: c}
}

// Lookup fetches the profile for a player name.
func (c *Client) Lookup(ctx context.Context, player string) (Profile, error) {
	var out Profile
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("player", player).
		SetResult(&out).
		Get("/v1/profile")
	if err != nil {
		return Profile{}, fmt.Errorf("stats: lookup %q: %w", player, err)
	}
	if resp.StatusCode() == 404 {
		return Profile{}, fmt.Errorf("stats: player %q not found", player)
	}
	if resp.StatusCode() != 200 {
		return Profile{}, fmt.Errorf("stats: lookup %q: status %d", player, resp.StatusCode())
	}
	return out, nil
}
