// Package music wraps an external NeteaseCloudMusicApi service for song
// search and playback URLs.
package music

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// Song is one search or detail result.
type Song struct {
	ID       int64
	Name     string
	Artists  string
	Album    string
	Duration time.Duration
	Cover    string
}

// Summary renders a song as a one-line chat reply.
func (s Song) Summary() string {
	return fmt.Sprintf("🎵 %s - %s [%s]（%s）", s.Name, s.Artists, s.Album, formatDuration(s.Duration))
}

type Client struct {
	http *resty.Client
}

// NewClient points at the API service base URL; cookie carries the logged-in
// session when VIP tracks are needed.
func NewClient(baseURL, cookie string) *Client {
	c := resty.New().SetBaseURL(baseURL).SetTimeout(10 * time.Second)
	if cookie != "" {
		c.SetHeader("Cookie", cookie)
	}
	return &Client{http: c}
}

type searchResponse struct {
	Code   int `json:"code"`
	Result struct {
		Songs []songJSON `json:"songs"`
	} `json:"result"`
}

type songURLResponse struct {
	Code int `json:"code"`
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

type songJSON struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Ar   []struct {
		Name string `json:"name"`
	} `json:"ar"`
	Al struct {
		Name   string `json:"name"`
		PicURL string `json:"picUrl"`
	} `json:"al"`
	Dt int64 `json:"dt"` // milliseconds
}

func (j songJSON) toSong() Song {
	artists := ""
	for i, a := range j.Ar {
		if i > 0 {
			artists += " / "
		}
		artists += a.Name
	}
	return Song{
		ID:       j.ID,
		Name:     j.Name,
		Artists:  artists,
		Album:    j.Al.Name,
		Duration: time.Duration(j.Dt) * time.Millisecond,
		Cover:    j.Al.PicURL,
	}
}

// Search returns the best match for keyword.
func (c *Client) Search(ctx context.Context, keyword string) (Song, error) {
	var out searchResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"keywords": keyword,
			"limit":    "1",
			"type":     "1",
		}).
		SetResult(&out).
		Get("/cloudsearch")
	if err != nil {
		return Song{}, fmt.Errorf("music: search: %w", err)
	}
	if resp.StatusCode() != 200 || out.Code != 200 {
		return Song{}, fmt.Errorf("music: search: upstream code %d", out.Code)
	}
	if len(out.Result.Songs) == 0 {
		return Song{}, fmt.Errorf("music: no result for %q", keyword)
	}
	return out.Result.Songs[0].toSong(), nil
}

// SongURL returns a playable URL for the song id.
func (c *Client) SongURL(ctx context.Context, id int64) (string, error) {
	var out songURLResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"id":    strconv.FormatInt(id, 10),
			"level": "standard",
		}).
		SetResult(&out).
		Get("/song/url/v1")
	if err != nil {
		return "", fmt.Errorf("music: song url: %w", err)
	}
	if resp.StatusCode() != 200 || out.Code != 200 {
		return "", fmt.Errorf("music: song url: upstream code %d", out.Code)
	}
	if len(out.Data) == 0 || out.Data[0].URL == "" {
		return "", fmt.Errorf("music: song %d has no playable url", id)
	}
	return out.Data[0].URL, nil
}

func formatDuration(d time.Duration) string {
	total := int(d.Round(time.Second).Seconds())
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
