package router

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oopzlab/oopzbot/pkg/config"
	"github.com/oopzlab/oopzbot/pkg/events"
)

type recordingSender struct {
	mu      sync.Mutex
	actions []events.OutboundAction
}

func (r *recordingSender) Submit(_ context.Context, act events.OutboundAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, act)
	return nil
}

func (r *recordingSender) replies() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, a := range r.actions {
		if a.Type == events.ActionSendMessage {
			out = append(out, a.Content)
		}
	}
	return out
}

type stubHandler struct {
	name      string
	adminOnly bool
	out       string
	err       error
	panicMsg  string
	gotArgs   string
	calls     int
}

func (h *stubHandler) Name() string        { return h.name }
func (h *stubHandler) Description() string { return "stub" }
func (h *stubHandler) AdminOnly() bool     { return h.adminOnly }

func (h *stubHandler) Handle(_ context.Context, req Request) (string, error) {
	h.calls++
	h.gotArgs = req.Args
	if h.panicMsg != "" {
		panic(h.panicMsg)
	}
	return h.out, h.err
}

type stubFallback struct {
	out   string
	calls int
}

func (f *stubFallback) Reply(_ context.Context, _ events.InboundEvent) (string, error) {
	f.calls++
	return f.out, nil
}

func newTestRouter(admins []string, sender Sender) *Router {
	cfg := config.CommandsConfig{Prefix: "/", Mention: "@bot"}
	return New(cfg, func() []string { return admins }, sender, slog.New(slog.DiscardHandler))
}

func msg(content string) events.InboundEvent {
	return events.InboundEvent{
		ID: "m1", Kind: events.KindChatMessage,
		ChannelID: "ch", AuthorID: "alice", Content: content,
	}
}

func TestDispatch_RunsHandlerAndReplies(t *testing.T) {
	sender := &recordingSender{}
	r := newTestRouter(nil, sender)
	h := &stubHandler{name: "ping", out: "pong"}
	r.Register(h)

	r.Dispatch(context.Background(), msg("/ping extra args"))

	assert.Equal(t, 1, h.calls)
	assert.Equal(t, "extra args", h.gotArgs)
	require.Equal(t, []string{"pong"}, sender.replies())
}

func TestDispatch_MentionPrefixAlsoCarriesCommands(t *testing.T) {
	sender := &recordingSender{}
	r := newTestRouter(nil, sender)
	h := &stubHandler{name: "ping", out: "pong"}
	r.Register(h)

	r.Dispatch(context.Background(), msg("@bot /ping"))
	assert.Equal(t, 1, h.calls)
}

func TestDispatch_NonCommandPassesThrough(t *testing.T) {
	sender := &recordingSender{}
	r := newTestRouter(nil, sender)
	r.Register(&stubHandler{name: "ping"})

	r.Dispatch(context.Background(), msg("just chatting about /proc filesystems later"))
	r.Dispatch(context.Background(), msg("hello"))
	assert.Empty(t, sender.actions)
}

func TestDispatch_UnknownCommandGetsVisibleReply(t *testing.T) {
	sender := &recordingSender{}
	r := newTestRouter(nil, sender)

	r.Dispatch(context.Background(), msg("/nosuch"))
	replies := sender.replies()
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "/nosuch")
	assert.Contains(t, replies[0], "未知命令")
}

func TestDispatch_HandlerErrorIsVisibleAndContained(t *testing.T) {
	sender := &recordingSender{}
	r := newTestRouter(nil, sender)
	r.Register(&stubHandler{name: "broken", err: errors.New("boom")})

	r.Dispatch(context.Background(), msg("/broken"))
	replies := sender.replies()
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "执行失败")
}

func TestDispatch_HandlerPanicIsContained(t *testing.T) {
	sender := &recordingSender{}
	r := newTestRouter(nil, sender)
	r.Register(&stubHandler{name: "crash", panicMsg: "nil deref"})

	require.NotPanics(t, func() {
		r.Dispatch(context.Background(), msg("/crash"))
	})
	require.Len(t, sender.replies(), 1)

	// router keeps working afterwards
	h := &stubHandler{name: "ping", out: "pong"}
	r.Register(h)
	r.Dispatch(context.Background(), msg("/ping"))
	assert.Equal(t, 1, h.calls)
}

func TestDispatch_AdminOnlyDeniedForNonAdmin(t *testing.T) {
	sender := &recordingSender{}
	r := newTestRouter([]string{"root"}, sender)
	h := &stubHandler{name: "mute", adminOnly: true}
	r.Register(h)

	r.Dispatch(context.Background(), msg("/mute bob"))
	assert.Equal(t, 0, h.calls)
	replies := sender.replies()
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "权限不足")
}

func TestDispatch_AdminAllowed(t *testing.T) {
	sender := &recordingSender{}
	r := newTestRouter([]string{"alice"}, sender)
	h := &stubHandler{name: "mute", adminOnly: true, out: "done"}
	r.Register(h)

	r.Dispatch(context.Background(), msg("/mute bob"))
	assert.Equal(t, 1, h.calls)
}

func TestDispatch_EmptyAllowListIsOpenMode(t *testing.T) {
	sender := &recordingSender{}
	r := newTestRouter(nil, sender)
	h := &stubHandler{name: "mute", adminOnly: true, out: "done"}
	r.Register(h)

	assert.True(t, r.OpenMode())
	r.Dispatch(context.Background(), msg("/mute bob"))
	assert.Equal(t, 1, h.calls)
}

func TestDispatch_AdminLookupIsFreshPerCommand(t *testing.T) {
	sender := &recordingSender{}
	admins := []string{"root"}
	var mu sync.Mutex
	r := New(config.CommandsConfig{Prefix: "/"}, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return admins
	}, sender, slog.New(slog.DiscardHandler))
	h := &stubHandler{name: "mute", adminOnly: true, out: "done"}
	r.Register(h)

	r.Dispatch(context.Background(), msg("/mute bob"))
	assert.Equal(t, 0, h.calls)

	mu.Lock()
	admins = []string{"root", "alice"}
	mu.Unlock()

	r.Dispatch(context.Background(), msg("/mute bob"))
	assert.Equal(t, 1, h.calls)
}

func TestDispatch_MentionWithoutCommandUsesFallback(t *testing.T) {
	sender := &recordingSender{}
	r := newTestRouter(nil, sender)
	f := &stubFallback{out: "hello back"}
	r.SetFallback(f)

	r.Dispatch(context.Background(), msg("@bot 你好"))
	assert.Equal(t, 1, f.calls)
	require.Equal(t, []string{"hello back"}, sender.replies())

	// without a mention the fallback stays quiet
	r.Dispatch(context.Background(), msg("你好"))
	assert.Equal(t, 1, f.calls)
}

type stubPassive struct {
	out   string
	ok    bool
	calls int
}

func (p *stubPassive) React(_ context.Context, _ events.InboundEvent) (string, bool) {
	p.calls++
	return p.out, p.ok
}

func TestDispatch_PassiveReactsToPlainMessages(t *testing.T) {
	sender := &recordingSender{}
	r := newTestRouter(nil, sender)
	r.Register(&stubHandler{name: "ping", out: "pong"})
	p := &stubPassive{out: "auto", ok: true}
	r.SetPassive(p)

	r.Dispatch(context.Background(), msg("some trigger word"))
	assert.Equal(t, 1, p.calls)
	require.Equal(t, []string{"auto"}, sender.replies())

	// commands never reach the passive hook
	r.Dispatch(context.Background(), msg("/ping"))
	assert.Equal(t, 1, p.calls)
}

func TestDispatch_PassiveDeclineIsSilent(t *testing.T) {
	sender := &recordingSender{}
	r := newTestRouter(nil, sender)
	p := &stubPassive{ok: false}
	r.SetPassive(p)

	r.Dispatch(context.Background(), msg("nothing interesting"))
	assert.Equal(t, 1, p.calls)
	assert.Empty(t, sender.actions)
}

func TestDispatch_IgnoresNonChatKinds(t *testing.T) {
	sender := &recordingSender{}
	r := newTestRouter(nil, sender)
	h := &stubHandler{name: "ping", out: "pong"}
	r.Register(h)

	ev := msg("/ping")
	ev.Kind = events.KindPresence
	r.Dispatch(context.Background(), ev)
	assert.Equal(t, 0, h.calls)
}

func TestDescribe_FiltersAdminCommands(t *testing.T) {
	r := newTestRouter([]string{"root"}, &recordingSender{})
	r.Register(&stubHandler{name: "ping"})
	r.Register(&stubHandler{name: "mute", adminOnly: true})

	assert.Len(t, r.Describe(false), 1)
	assert.Len(t, r.Describe(true), 2)
	assert.Equal(t, []string{"mute", "ping"}, r.Commands())
}
