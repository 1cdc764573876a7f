// Package router extracts commands from chat messages and dispatches them
// to registered handlers. Messages that are neither a command nor a bot
// mention pass through untouched.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/oopzlab/oopzbot/pkg/config"
	"github.com/oopzlab/oopzbot/pkg/events"
	"github.com/oopzlab/oopzbot/pkg/metrics"
)

// Request is one parsed command invocation.
type Request struct {
	Event   events.InboundEvent
	Command string
	Args    string
	IsAdmin bool
}

// Handler executes one command. The returned string, when non-empty, is
// posted back to the originating channel.
type Handler interface {
	Name() string
	Description() string
	AdminOnly() bool
	Handle(ctx context.Context, req Request) (string, error)
}

// Fallback receives mention messages that are not commands; typically the
// AI chat responder.
type Fallback interface {
	Reply(ctx context.Context, ev events.InboundEvent) (string, error)
}

// Passive receives plain chat messages that are neither commands nor
// mentions, for opt-in reactions like keyword auto-replies. A false return
// means the message was left alone.
type Passive interface {
	React(ctx context.Context, ev events.InboundEvent) (string, bool)
}

// Sender posts replies back through the gateway send path.
type Sender interface {
	Submit(ctx context.Context, act events.OutboundAction) error
}

type Router struct {
	cfg      config.CommandsConfig
	admins   func() []string
	sender   Sender
	fallback Fallback
	passive  Passive
	handlers map[string]Handler
	log      *slog.Logger
}

func New(cfg config.CommandsConfig, admins func() []string, sender Sender, log *slog.Logger) *Router {
	return &Router{
		cfg:      cfg,
		admins:   admins,
		sender:   sender,
		handlers: make(map[string]Handler),
		log:      log,
	}
}

// Register adds a handler; the last registration for a name wins.
func (r *Router) Register(h Handler) {
	r.handlers[h.Name()] = h
}

// SetFallback installs the responder for mention messages that carry no
// command.
func (r *Router) SetFallback(f Fallback) { r.fallback = f }

// SetPassive installs the reaction for plain, unaddressed chat messages.
func (r *Router) SetPassive(p Passive) { r.passive = p }

// Commands lists registered command names in sorted order.
func (r *Router) Commands() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns "name — description" lines for every registered command
// the author may use.
func (r *Router) Describe(isAdmin bool) []string {
	var lines []string
	for _, name := range r.Commands() {
		h := r.handlers[name]
		if h.AdminOnly() && !isAdmin {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s%s — %s", r.cfg.Prefix, name, h.Description()))
	}
	return lines
}

// IsAdmin reports whether id may run admin commands. An empty allow-list
// means open mode: everyone is an admin. Membership is recomputed on every
// call so a config reload takes effect immediately.
func (r *Router) IsAdmin(id string) bool {
	admins := r.admins()
	if len(admins) == 0 {
		return true
	}
	for _, a := range admins {
		if a == id {
			return true
		}
	}
	return false
}

// OpenMode reports whether the admin allow-list is empty.
func (r *Router) OpenMode() bool { return len(r.admins()) == 0 }

// Dispatch parses ev and runs the matching handler. Handler errors and
// panics are reported in-channel; they never propagate to the caller.
func (r *Router) Dispatch(ctx context.Context, ev events.InboundEvent) {
	if ev.Kind != events.KindChatMessage {
		return
	}

	content, mentioned := r.stripMention(ev.Content)
	name, args, isCommand := r.splitCommand(content)

	switch {
	case isCommand:
	case mentioned && r.fallback != nil:
		r.runFallback(ctx, ev)
		return
	default:
		if r.passive != nil {
			if out, ok := r.passive.React(ctx, ev); ok && out != "" {
				r.reply(ctx, ev.ChannelID, out)
			}
		}
		return
	}

	req := Request{Event: ev, Command: name, Args: args, IsAdmin: r.IsAdmin(ev.AuthorID)}

	h, ok := r.handlers[name]
	if !ok {
		r.reply(ctx, ev.ChannelID, fmt.Sprintf("未知命令 %s%s，发送 %shelp 查看可用命令", r.cfg.Prefix, name, r.cfg.Prefix))
		return
	}
	if h.AdminOnly() && !req.IsAdmin {
		r.reply(ctx, ev.ChannelID, fmt.Sprintf("@%s 权限不足，%s%s 仅限管理员", ev.AuthorID, r.cfg.Prefix, name))
		return
	}

	if metrics.CommandsDispatched != nil {
		metrics.CommandsDispatched.WithLabelValues(name).Inc()
	}
	r.run(ctx, h, req)
}

func (r *Router) run(ctx context.Context, h Handler, req Request) {
	defer func() {
		if rec := recover(); rec != nil {
			r.commandFailed(ctx, req, fmt.Errorf("panic: %v", rec))
		}
	}()

	out, err := h.Handle(ctx, req)
	if err != nil {
		r.commandFailed(ctx, req, err)
		return
	}
	if out != "" {
		r.reply(ctx, req.Event.ChannelID, out)
	}
}

func (r *Router) runFallback(ctx context.Context, ev events.InboundEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("fallback panicked", "channel", ev.ChannelID, "panic", rec)
		}
	}()

	out, err := r.fallback.Reply(ctx, ev)
	if err != nil {
		r.log.Warn("fallback reply failed", "channel", ev.ChannelID, "error", err)
		return
	}
	if out != "" {
		r.reply(ctx, ev.ChannelID, out)
	}
}

func (r *Router) commandFailed(ctx context.Context, req Request, err error) {
	if metrics.CommandErrors != nil {
		metrics.CommandErrors.Inc()
	}
	r.log.Error("command failed",
		"command", req.Command, "channel", req.Event.ChannelID,
		"author", req.Event.AuthorID, "error", err)
	r.reply(ctx, req.Event.ChannelID, fmt.Sprintf("命令 %s%s 执行失败，请稍后重试", r.cfg.Prefix, req.Command))
}

func (r *Router) reply(ctx context.Context, channelID, content string) {
	if err := r.sender.Submit(ctx, events.SendReply(channelID, content)); err != nil {
		r.log.Warn("reply submission failed", "channel", channelID, "error", err)
	}
}

// stripMention removes a leading bot mention and reports whether one was
// present. The mention token comes from config (e.g. "@bot" or the bot's
// uid form the platform injects).
func (r *Router) stripMention(content string) (string, bool) {
	s := strings.TrimSpace(content)
	if r.cfg.Mention == "" {
		return s, false
	}
	if rest, ok := strings.CutPrefix(s, r.cfg.Mention); ok {
		return strings.TrimSpace(rest), true
	}
	return s, false
}

// splitCommand splits "/name args..." into its parts. Content without the
// sigil is not a command.
func (r *Router) splitCommand(content string) (name, args string, ok bool) {
	prefix := r.cfg.Prefix
	if prefix == "" {
		prefix = "/"
	}
	rest, found := strings.CutPrefix(content, prefix)
	if !found || rest == "" {
		return "", "", false
	}
	name, args, _ = strings.Cut(rest, " ")
	if name == "" {
		return "", "", false
	}
	return strings.ToLower(name), strings.TrimSpace(args), true
}
