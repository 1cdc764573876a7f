// Package gateway owns the single authenticated streaming session to the
// platform: handshake, liveness, reconnection with backoff, and ordered
// delivery of decoded events onto the bus.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/oopzlab/oopzbot/pkg/bus"
	"github.com/oopzlab/oopzbot/pkg/events"
	"github.com/oopzlab/oopzbot/pkg/metrics"
	"github.com/oopzlab/oopzbot/pkg/signer"
)

var (
	// ErrAuthRejected means the platform refused our credentials. Retrying
	// with the same credentials cannot succeed, so this is terminal and must
	// reach the operator.
	ErrAuthRejected = errors.New("gateway: authentication rejected")
	// ErrClosed is returned from Submit after the gateway has shut down.
	ErrClosed = errors.New("gateway: closed")

	errLivenessTimeout = errors.New("gateway: liveness timeout, session declared dead")
)

// Config tunes the managed connection.
type Config struct {
	URL                string
	Heartbeat          time.Duration
	LivenessMultiplier int
	ConnectTimeout     time.Duration
	DedupeSize         int
}

// Gateway maintains exactly one live session at a time. The session is
// replaced wholesale on reconnect; no other component ever holds a
// reference to it.
type Gateway struct {
	cfg    Config
	signer *signer.Signer
	bus    *bus.EventBus
	log    *slog.Logger
	clock  clockwork.Clock
	dialer *websocket.Dialer

	state        atomic.Int32
	lastActivity atomic.Int64 // unix nanos
	seen         *dedupeRing
}

// session is one live websocket connection. Created by connect, torn down
// whole on any error.
type session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (s *session) writeFrame(f frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(f)
}

func New(cfg Config, sig *signer.Signer, eventBus *bus.EventBus, log *slog.Logger) *Gateway {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 30 * time.Second
	}
	if cfg.LivenessMultiplier < 2 {
		cfg.LivenessMultiplier = 3
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}
	g := &Gateway{
		cfg:    cfg,
		signer: sig,
		bus:    eventBus,
		log:    log,
		clock:  clockwork.NewRealClock(),
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.ConnectTimeout},
		seen:   newDedupeRing(cfg.DedupeSize),
	}
	g.state.Store(int32(StateDisconnected))
	return g
}

// SetClock swaps the clock; used by tests.
func (g *Gateway) SetClock(c clockwork.Clock) { g.clock = c }

// State reports the current connection state.
func (g *Gateway) State() State {
	return State(g.state.Load())
}

func (g *Gateway) setState(s State) {
	old := State(g.state.Swap(int32(s)))
	if old != s {
		g.log.Info("gateway state changed", "from", old.String(), "to", s.String())
	}
}

// Submit queues a signed outbound action. Fire-and-confirm: the caller does
// not block past submission; any delivery confirmation arrives later as an
// inbound event.
func (g *Gateway) Submit(ctx context.Context, act events.OutboundAction) error {
	if g.State() == StateClosed {
		return ErrClosed
	}
	if err := g.bus.PublishAction(ctx, act); err != nil {
		return err
	}
	if metrics.ActionsSubmitted != nil {
		metrics.ActionsSubmitted.WithLabelValues(string(act.Type)).Inc()
	}
	return nil
}

// Run connects and keeps the session alive until ctx is canceled or the
// platform rejects our credentials. Transport errors are always recovered
// by reconnecting with exponential backoff; there is no attempt limit.
func (g *Gateway) Run(ctx context.Context) error {
	bo := newReconnectBackoff()

	for {
		sess, err := g.connect(ctx)
		if err == nil {
			bo.Reset()
			err = g.runSession(ctx, sess)
		}

		if errors.Is(err, ErrAuthRejected) {
			g.setState(StateClosed)
			return err
		}
		if ctx.Err() != nil {
			g.setState(StateClosed)
			return ctx.Err()
		}

		g.setState(StateReconnecting)
		if metrics.Reconnects != nil {
			metrics.Reconnects.Inc()
		}
		delay := bo.NextBackOff()
		g.log.Warn("gateway connection lost, reconnecting",
			"error", err, "backoff", delay.String())

		select {
		case <-g.clock.After(delay):
		case <-ctx.Done():
			g.setState(StateClosed)
			return ctx.Err()
		}
	}
}

// connect dials the platform and performs the authenticated handshake.
func (g *Gateway) connect(ctx context.Context) (*session, error) {
	g.setState(StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, g.cfg.ConnectTimeout)
	defer cancel()
	conn, _, err := g.dialer.DialContext(dialCtx, g.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	g.setState(StateAuthenticating)
	if err := conn.SetReadDeadline(g.clock.Now().Add(g.cfg.ConnectTimeout)); err != nil {
		conn.Close()
		return nil, err
	}

	var hello frame
	if err := conn.ReadJSON(&hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading hello: %w", err)
	}
	var hd helloData
	if hello.Op != opHello || json.Unmarshal(hello.Data, &hd) != nil {
		conn.Close()
		return nil, fmt.Errorf("unexpected handshake frame %q", hello.Op)
	}

	creds := g.signer.Credentials()
	ts := g.clock.Now().UnixMilli()
	// Proof-of-possession: the handshake nonce and timestamp are signed with
	// the private key so a stolen bearer token alone is not enough.
	sig, err := g.signer.SignBase64([]byte(hd.Nonce + strconv.FormatInt(ts, 10)))
	if err != nil {
		conn.Close()
		return nil, err
	}
	auth, err := json.Marshal(authData{
		Person:    creds.PersonUID,
		DeviceID:  creds.DeviceID,
		Token:     creds.Token,
		Timestamp: ts,
		Signature: sig,
	})
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.WriteJSON(frame{Op: opAuth, Data: auth}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sending auth: %w", err)
	}

	var reply frame
	if err := conn.ReadJSON(&reply); err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading auth reply: %w", err)
	}
	switch reply.Op {
	case opAuthOK:
	case opAuthErr:
		var ae authErrData
		_ = json.Unmarshal(reply.Data, &ae)
		conn.Close()
		return nil, fmt.Errorf("%w: %d %s", ErrAuthRejected, ae.Code, ae.Message)
	default:
		conn.Close()
		return nil, fmt.Errorf("unexpected auth reply %q", reply.Op)
	}

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		conn.Close()
		return nil, err
	}
	return &session{conn: conn}, nil
}

// runSession pumps the session until the first error. The read loop only
// suspends on transport I/O; decoded events go onto the bus and are never
// handled inline.
func (g *Gateway) runSession(ctx context.Context, sess *session) error {
	g.setState(StateConnected)
	metrics.SetConnected(true)
	defer metrics.SetConnected(false)
	defer sess.conn.Close()

	g.touch()

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 3)

	go g.writeLoop(sessCtx, sess, errCh)
	go g.heartbeatLoop(sessCtx, sess, errCh)
	go g.readLoop(sessCtx, sess, errCh)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) readLoop(ctx context.Context, sess *session, errCh chan<- error) {
	for {
		var f frame
		if err := sess.conn.ReadJSON(&f); err != nil {
			select {
			case errCh <- fmt.Errorf("read: %w", err):
			default:
			}
			return
		}
		g.touch()

		switch f.Op {
		case opPong, opAck:
			continue
		case opEvent:
		default:
			// Unknown opcodes are dropped at the smallest possible scope.
			continue
		}

		if metrics.FramesReceived != nil {
			metrics.FramesReceived.Inc()
		}

		ev, err := decodeEvent(f)
		if err != nil {
			if metrics.FramesDropped != nil {
				metrics.FramesDropped.Inc()
			}
			g.log.Warn("dropping malformed frame", "error", err)
			continue
		}

		if !g.seen.remember(ev.ID) {
			if metrics.FramesDeduplicated != nil {
				metrics.FramesDeduplicated.Inc()
			}
			continue
		}

		if err := g.bus.PublishEvent(ctx, ev); err != nil {
			return
		}
	}
}

// writeLoop drains the outbound side of the bus onto the socket. Actions
// that fail mid-write are re-queued so they are resubmitted transparently
// once the connection recovers.
func (g *Gateway) writeLoop(ctx context.Context, sess *session, errCh chan<- error) {
	for {
		act, ok := g.bus.ConsumeAction(ctx)
		if !ok {
			return
		}

		f, err := g.signAction(act)
		if err != nil {
			g.log.Error("signing outbound action failed", "type", act.Type, "error", err)
			continue
		}
		if err := sess.writeFrame(f); err != nil {
			if pubErr := g.bus.PublishAction(context.Background(), act); pubErr != nil {
				g.log.Error("outbound action lost", "type", act.Type, "error", pubErr)
			}
			select {
			case errCh <- fmt.Errorf("write: %w", err):
			default:
			}
			return
		}
	}
}

func (g *Gateway) heartbeatLoop(ctx context.Context, sess *session, errCh chan<- error) {
	ticker := g.clock.NewTicker(g.cfg.Heartbeat)
	defer ticker.Stop()

	deadline := g.cfg.Heartbeat * time.Duration(g.cfg.LivenessMultiplier)
	for {
		select {
		case <-ticker.Chan():
			if g.clock.Now().UnixNano()-g.lastActivity.Load() > int64(deadline) {
				select {
				case errCh <- errLivenessTimeout:
				default:
				}
				return
			}
			if err := sess.writeFrame(frame{Op: opPing}); err != nil {
				select {
				case errCh <- fmt.Errorf("heartbeat: %w", err):
				default:
				}
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// signAction marshals and signs an outbound action for the wire.
func (g *Gateway) signAction(act events.OutboundAction) (frame, error) {
	ts := g.clock.Now().UnixMilli()
	d := actionData{
		Type:      string(act.Type),
		Channel:   act.ChannelID,
		Target:    act.TargetID,
		Content:   act.Content,
		Seconds:   int64(act.Duration / time.Second),
		Timestamp: ts,
	}
	unsigned, err := json.Marshal(d)
	if err != nil {
		return frame{}, err
	}
	sig, err := g.signer.SignBase64(unsigned)
	if err != nil {
		return frame{}, err
	}
	d.Signature = sig
	signed, err := json.Marshal(d)
	if err != nil {
		return frame{}, err
	}
	return frame{Op: opAction, ID: strconv.FormatInt(ts, 10), Data: signed}, nil
}

func (g *Gateway) touch() {
	g.lastActivity.Store(g.clock.Now().UnixNano())
}
