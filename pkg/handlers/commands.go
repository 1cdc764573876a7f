package handlers

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/oopzlab/oopzbot/pkg/ai"
	"github.com/oopzlab/oopzbot/pkg/events"
	"github.com/oopzlab/oopzbot/pkg/music"
	"github.com/oopzlab/oopzbot/pkg/router"
	"github.com/oopzlab/oopzbot/pkg/stats"
)

// Help lists the commands the caller may use.
type Help struct {
	Router *router.Router
}

func (h *Help) Name() string        { return "help" }
func (h *Help) Description() string { return "显示可用命令" }
func (h *Help) AdminOnly() bool     { return false }

func (h *Help) Handle(_ context.Context, req router.Request) (string, error) {
	lines := h.Router.Describe(req.IsAdmin)
	if len(lines) == 0 {
		return "暂无可用命令", nil
	}
	return "可用命令：\n" + strings.Join(lines, "\n"), nil
}

// Play searches a song and replies with its summary and playback URL.
type Play struct {
	Music *music.Client
}

func (h *Play) Name() string        { return "play" }
func (h *Play) Description() string { return "点歌：/play 歌名" }
func (h *Play) AdminOnly() bool     { return false }

func (h *Play) Handle(ctx context.Context, req router.Request) (string, error) {
	keyword := strings.TrimSpace(req.Args)
	if keyword == "" {
		return "用法：/play 歌名", nil
	}
	song, err := h.Music.Search(ctx, keyword)
	if err != nil {
		return "", err
	}
	url, err := h.Music.SongURL(ctx, song.ID)
	if err != nil {
		return song.Summary() + "\n该歌曲暂无可播放链接", nil
	}
	return song.Summary() + "\n" + url, nil
}

// Image generates an image from a prompt.
type Image struct {
	Generator ai.ImageGenerator
}

func (h *Image) Name() string        { return "img" }
func (h *Image) Description() string { return "生成图片：/img 描述" }
func (h *Image) AdminOnly() bool     { return false }

func (h *Image) Handle(ctx context.Context, req router.Request) (string, error) {
	prompt := strings.TrimSpace(req.Args)
	if prompt == "" {
		return "用法：/img 描述", nil
	}
	url, err := h.Generator.GenerateImage(ctx, prompt)
	if err != nil {
		return "", err
	}
	return url, nil
}

// Stats looks up a player profile.
type Stats struct {
	Client *stats.Client
}

func (h *Stats) Name() string        { return "stats" }
func (h *Stats) Description() string { return "查询战绩：/stats 玩家名" }
func (h *Stats) AdminOnly() bool     { return false }

func (h *Stats) Handle(ctx context.Context, req router.Request) (string, error) {
	player := strings.TrimSpace(req.Args)
	if player == "" {
		return "用法：/stats 玩家名", nil
	}
	p, err := h.Client.Lookup(ctx, player)
	if err != nil {
		return "", err
	}
	return p.Summary(), nil
}

// Keywords manages the auto-reply table at runtime (admin only).
type Keywords struct {
	Store *KeywordStore
}

func (h *Keywords) Name() string        { return "kw" }
func (h *Keywords) Description() string { return "关键词管理：/kw add|del|list" }
func (h *Keywords) AdminOnly() bool     { return true }

func (h *Keywords) Handle(_ context.Context, req router.Request) (string, error) {
	sub, rest, _ := strings.Cut(strings.TrimSpace(req.Args), " ")
	switch sub {
	case "add":
		keyword, reply, ok := strings.Cut(strings.TrimSpace(rest), " ")
		if !ok || keyword == "" || strings.TrimSpace(reply) == "" {
			return "用法：/kw add 关键词 回复内容", nil
		}
		if err := h.Store.Add(keyword, strings.TrimSpace(reply)); err != nil {
			return "", err
		}
		return fmt.Sprintf("已添加关键词「%s」", keyword), nil
	case "del":
		keyword := strings.TrimSpace(rest)
		if keyword == "" {
			return "用法：/kw del 关键词", nil
		}
		removed, err := h.Store.Remove(keyword)
		if err != nil {
			return "", err
		}
		if !removed {
			return fmt.Sprintf("关键词「%s」不存在", keyword), nil
		}
		return fmt.Sprintf("已删除关键词「%s」", keyword), nil
	case "list":
		kws := h.Store.List()
		if len(kws) == 0 {
			return "暂无关键词", nil
		}
		return "关键词：" + strings.Join(kws, "、"), nil
	default:
		return "用法：/kw add|del|list", nil
	}
}

// NameLookup resolves a user id so a mute target can be named.
type NameLookup interface {
	FindUID(name string) (string, bool)
}

// Mute mutes a user for one of the allowed durations (admin only).
type Mute struct {
	Sender      router.Sender
	Names       NameLookup
	TierSeconds []int
}

func (h *Mute) Name() string        { return "mute" }
func (h *Mute) Description() string { return "禁言：/mute 用户 秒数" }
func (h *Mute) AdminOnly() bool     { return true }

func (h *Mute) Handle(ctx context.Context, req router.Request) (string, error) {
	target, secsArg, ok := strings.Cut(strings.TrimSpace(req.Args), " ")
	if !ok || target == "" {
		return "用法：/mute 用户 秒数", nil
	}
	secs, err := strconv.Atoi(strings.TrimSpace(secsArg))
	if err != nil {
		return "用法：/mute 用户 秒数", nil
	}
	if !slices.Contains(h.TierSeconds, secs) {
		return fmt.Sprintf("无效时长，可选：%s", tierList(h.TierSeconds)), nil
	}

	uid := target
	if h.Names != nil {
		if found, ok := h.Names.FindUID(target); ok {
			uid = found
		}
	}

	d := time.Duration(secs) * time.Second
	if err := h.Sender.Submit(ctx, events.Mute(req.Event.ChannelID, uid, d)); err != nil {
		return "", err
	}
	return fmt.Sprintf("@%s 已被禁言 %s", target, d), nil
}

func tierList(tiers []int) string {
	parts := make([]string, len(tiers))
	for i, t := range tiers {
		parts[i] = strconv.Itoa(t)
	}
	return strings.Join(parts, "/")
}
