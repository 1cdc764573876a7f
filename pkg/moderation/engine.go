// Package moderation inspects every chat message for policy violations and
// executes enforcement. Detection runs cheapest-first: direct keyword match,
// then context reconstruction against the author's recent messages, then an
// optional AI classifier.
package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/oopzlab/oopzbot/pkg/config"
	"github.com/oopzlab/oopzbot/pkg/events"
	"github.com/oopzlab/oopzbot/pkg/metrics"
)

// Stage names the detection step that produced a violation.
type Stage string

const (
	StageDirect  Stage = "direct"
	StageContext Stage = "context"
	StageAI      Stage = "ai"
)

// Verdict is the outcome of inspecting one message.
type Verdict struct {
	Violation  bool
	Stage      Stage
	Reason     string
	MessageIDs []string // every message responsible for the match, for recall
}

// Classifier is the optional AI detection step. A non-empty reason with
// flagged=true marks the message as violating.
type Classifier interface {
	Classify(ctx context.Context, content string, recent []string) (reason string, flagged bool, err error)
}

// Sender submits signed enforcement actions; satisfied by the gateway.
type Sender interface {
	Submit(ctx context.Context, act events.OutboundAction) error
}

// ErrInvalidMuteTier rejects a mute duration outside the allowed tier set
// before any request is built.
var ErrInvalidMuteTier = fmt.Errorf("moderation: mute duration is not an allowed tier")

type Engine struct {
	cfg        config.ModerationConfig
	admins     func() []string
	classifier Classifier
	sender     Sender
	windows    *windowMap
	clock      clockwork.Clock
	log        *slog.Logger
}

func NewEngine(cfg config.ModerationConfig, admins func() []string, classifier Classifier, sender Sender, log *slog.Logger) (*Engine, error) {
	if cfg.Enabled {
		if len(cfg.MuteTierSeconds) == 0 || !slices.Contains(cfg.MuteTierSeconds, cfg.MuteSeconds) {
			return nil, fmt.Errorf("%w: %ds not in %v", ErrInvalidMuteTier, cfg.MuteSeconds, cfg.MuteTierSeconds)
		}
	}
	return &Engine{
		cfg:        cfg,
		admins:     admins,
		classifier: classifier,
		sender:     sender,
		windows:    newWindowMap(),
		clock:      clockwork.NewRealClock(),
		log:        log,
	}, nil
}

// SetClock swaps the clock; used by tests.
func (e *Engine) SetClock(c clockwork.Clock) { e.clock = c }

// Process inspects ev and, on a violation, executes enforcement. It reports
// whether the message violated policy so the caller can suppress command
// dispatch for it.
func (e *Engine) Process(ctx context.Context, ev events.InboundEvent) bool {
	if !e.cfg.Enabled || ev.Kind != events.KindChatMessage {
		return false
	}
	if e.cfg.ExemptAdmins && e.isAdmin(ev.AuthorID) {
		return false
	}

	v := e.inspect(ctx, ev)
	if !v.Violation {
		return false
	}

	if metrics.Violations != nil {
		metrics.Violations.WithLabelValues(string(v.Stage)).Inc()
	}
	e.log.Info("policy violation",
		"channel", ev.ChannelID, "author", ev.AuthorID,
		"stage", string(v.Stage), "reason", v.Reason)

	if err := e.enforce(ctx, ev, v); err != nil {
		if metrics.EnforcementFailures != nil {
			metrics.EnforcementFailures.Inc()
		}
		e.log.Error("enforcement submission failed",
			"channel", ev.ChannelID, "author", ev.AuthorID, "error", err)
	}
	return true
}

// inspect runs the detection pipeline for one message and maintains the
// author's window. Evaluation for a given (channel, author) is sequential;
// the per-channel dispatcher guarantees no two messages from one author in
// one channel are inspected concurrently.
func (e *Engine) inspect(ctx context.Context, ev events.InboundEvent) Verdict {
	now := e.clock.Now()
	normalized := normalize(ev.Content)

	// Step 1: direct match on the single message.
	if kw := matchKeyword(normalized, e.cfg.Keywords); kw != "" {
		return Verdict{Violation: true, Stage: StageDirect, Reason: kw, MessageIDs: []string{ev.ID}}
	}

	key := windowKey{channel: ev.ChannelID, author: ev.AuthorID}
	var verdict Verdict
	var recent []string

	e.windows.withWindow(key, func(w *window) {
		w.prune(now, e.cfg.Window())

		// Step 2: context reconstruction — concatenate the buffered messages
		// with the current one and re-run the match. Defeats splitting a
		// banned term across consecutive messages.
		if e.cfg.ContextDetection && len(w.entries) > 0 {
			var joined string
			ids := make([]string, 0, len(w.entries)+1)
			for _, en := range w.entries {
				joined += normalize(en.Content)
				ids = append(ids, en.MessageID)
			}
			joined += normalized
			ids = append(ids, ev.ID)
			if kw := matchKeyword(joined, e.cfg.Keywords); kw != "" {
				verdict = Verdict{Violation: true, Stage: StageContext, Reason: kw, MessageIDs: ids}
				return
			}
		}

		for _, en := range w.entries {
			recent = append(recent, en.Content)
		}
	})
	if verdict.Violation {
		return verdict
	}

	// Step 3: AI classification, last because it is the most expensive and
	// least deterministic check. Short messages are not worth the cost.
	if e.cfg.AIDetection && e.classifier != nil && len([]rune(ev.Content)) >= e.cfg.AIMinLength {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.AITimeout())
		reason, flagged, err := e.classifier.Classify(callCtx, ev.Content, recent)
		cancel()
		if err != nil {
			e.log.Warn("ai classification failed", "error", err)
		} else if flagged {
			return Verdict{Violation: true, Stage: StageAI, Reason: reason, MessageIDs: []string{ev.ID}}
		}
	}

	// Non-violating messages join the window.
	e.windows.withWindow(key, func(w *window) {
		w.add(entry{MessageID: ev.ID, Content: ev.Content, At: now}, e.cfg.WindowSize)
	})
	return Verdict{}
}

// enforce recalls the responsible messages and applies a warning or a mute.
// Actions ride the gateway's normal send path; a dropped request is
// resubmitted transparently when the connection recovers.
func (e *Engine) enforce(ctx context.Context, ev events.InboundEvent, v Verdict) error {
	if e.cfg.Recall {
		for _, id := range v.MessageIDs {
			if err := e.sender.Submit(ctx, events.Recall(ev.ChannelID, id)); err != nil {
				return fmt.Errorf("recall %s: %w", id, err)
			}
		}
	}

	// The responsible messages are consumed by enforcement either way.
	e.clearWindow(ev)

	now := e.clock.Now()
	if e.cfg.WarnFirst && !e.warned(ev, now) {
		e.markWarned(ev, now)
		warning := fmt.Sprintf("@%s 请文明发言（%s）", ev.AuthorID, v.Reason)
		if err := e.sender.Submit(ctx, events.SendReply(ev.ChannelID, warning)); err != nil {
			return fmt.Errorf("warn: %w", err)
		}
		return nil
	}

	d := time.Duration(e.cfg.MuteSeconds) * time.Second
	if !slices.Contains(e.cfg.MuteTierSeconds, e.cfg.MuteSeconds) {
		return ErrInvalidMuteTier
	}
	if err := e.sender.Submit(ctx, events.Mute(ev.ChannelID, ev.AuthorID, d)); err != nil {
		return fmt.Errorf("mute: %w", err)
	}
	notice := fmt.Sprintf("@%s 已被禁言 %s（%s）", ev.AuthorID, d, v.Reason)
	return e.sender.Submit(ctx, events.SendReply(ev.ChannelID, notice))
}

func (e *Engine) clearWindow(ev events.InboundEvent) {
	e.windows.withWindow(windowKey{channel: ev.ChannelID, author: ev.AuthorID}, func(w *window) {
		w.entries = w.entries[:0]
	})
}

func (e *Engine) warned(ev events.InboundEvent, now time.Time) bool {
	var warned bool
	e.windows.withWindow(windowKey{channel: ev.ChannelID, author: ev.AuthorID}, func(w *window) {
		warned = w.warnedInWindow(now, e.cfg.Window())
	})
	return warned
}

func (e *Engine) markWarned(ev events.InboundEvent, now time.Time) {
	e.windows.withWindow(windowKey{channel: ev.ChannelID, author: ev.AuthorID}, func(w *window) {
		w.warnedAt = now
	})
}

func (e *Engine) isAdmin(id string) bool {
	for _, a := range e.admins() {
		if a == id {
			return true
		}
	}
	return false
}
