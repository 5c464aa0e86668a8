package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"paintboard/internal/board"
	"paintboard/internal/hub"
	"paintboard/internal/monitoring"
)

// Terminal conditions. Any of these ends every activity of the connection.
var (
	errPeerClosed  = errors.New("peer closed connection")
	errTrash       = errors.New("protocol misuse")
	errQuickPaint  = errors.New("too many quick paints")
	errDupSnapshot = errors.New("duplicate snapshot request")
	errPongTimeout = errors.New("pong timeout")
)

// conn is the per-connection protocol state machine.
//
// States: Unauth (uid unset) → Auth (token verified) → Live (snapshot
// sent, deltas forwarded). A connection is served by four cooperating
// activities (read, delta collection, batch flush, heartbeat), any of
// which terminates all the others through the shared errgroup context.
type conn struct {
	id   int64
	srv  *Server
	sock net.Conn

	// writeMu serializes frame writes (read replies, batch flush, pings).
	writeMu sync.Mutex

	// mu guards the fields shared across activities. The logger is under
	// it too: auth rebinds it with the uid while the heartbeat and flush
	// activities are already logging.
	mu           sync.Mutex
	logger       zerolog.Logger
	authed       bool
	snapshotSent bool
	pongPending  bool

	// Touched only by the read activity.
	uid          int32
	fastStrikes  int
	trashStrikes int

	// Delta accumulator, emptied atomically by the flush tick.
	pendingMu sync.Mutex
	pending   []board.Pixel

	sub *hub.Subscriber
}

// serveConn runs the connection to completion and releases its resources.
func (s *Server) serveConn(parent context.Context, sock net.Conn) {
	id := atomic.AddInt64(&s.clientSeq, 1)
	c := &conn{
		id:   id,
		srv:  s,
		sock: sock,
		logger: s.logger.With().
			Int64("conn_id", id).
			Str("remote", sock.RemoteAddr().String()).
			Logger(),
	}

	monitoring.ConnectionsTotal.Inc()
	monitoring.ConnectionsActive.Inc()
	atomic.AddInt64(&s.activeConns, 1)
	defer func() {
		monitoring.ConnectionsActive.Dec()
		atomic.AddInt64(&s.activeConns, -1)
	}()

	c.sub = s.hub.Subscribe()
	defer s.hub.Unsubscribe(c.sub)

	g, ctx := errgroup.WithContext(parent)

	// Watchdog: closing the socket is what unblocks the read activity
	// once any sibling fails or the server shuts down.
	g.Go(func() error {
		<-ctx.Done()
		sock.Close()
		return nil
	})
	g.Go(c.readLoop)
	g.Go(func() error { return c.collectDeltas(ctx) })
	g.Go(func() error { return c.flushLoop(ctx) })
	g.Go(func() error { return c.heartbeat(ctx) })

	err := g.Wait()
	sock.Close()

	if err == nil || errors.Is(err, errPeerClosed) || errors.Is(err, context.Canceled) {
		c.log().Info().Int64("lagged", c.sub.Lagged()).Msg("Connection closed")
	} else {
		c.log().Warn().Err(err).Int64("lagged", c.sub.Lagged()).Msg("Connection closed")
	}
}

// send writes one application frame, serialized against concurrent
// writers. Any write error is terminal for the connection.
func (c *conn) send(op byte, payload []byte) error {
	frame := make([]byte, 0, 1+len(payload))
	frame = append(frame, op)
	frame = append(frame, payload...)
	return c.sendFrame(frame)
}

func (c *conn) sendFrame(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.sock.SetWriteDeadline(time.Now().Add(writeWait))
	return wsutil.WriteServerBinary(c.sock, frame)
}

// readLoop reads and dispatches inbound frames until a terminal condition.
func (c *conn) readLoop() error {
	for {
		data, op, err := wsutil.ReadClientData(c.sock)
		if err != nil {
			var closed wsutil.ClosedError
			if errors.As(err, &closed) {
				return errPeerClosed
			}
			return err
		}

		if op != ws.OpBinary || len(data) == 0 {
			c.strikeTrash("unframed message")
		} else if err := c.handleFrame(data[0], data[1:]); err != nil {
			return err
		}

		if c.trashStrikes > 0 {
			c.log().Warn().Msg("Closed due to trash pack")
			return errTrash
		}
		if c.fastStrikes > 3 {
			c.log().Warn().Msg("Closed due to quick paint")
			return errQuickPaint
		}
	}
}

// handleFrame dispatches one opcode. A non-nil return closes the
// connection; mere misbehavior goes through the strike counters instead.
func (c *conn) handleFrame(op byte, payload []byte) error {
	switch op {
	case OpAuth:
		return c.handleAuth(payload)

	case OpPaint:
		if !c.isAuthed() {
			monitoring.PaintsRejected.WithLabelValues(monitoring.RejectUnauth).Inc()
			c.strikeTrash("paint without auth")
			return nil
		}
		c.handlePaint(payload)
		return nil

	case OpSnapshotReq:
		return c.handleSnapshotRequest()

	case OpPong:
		if !c.isAuthed() {
			c.strikeTrash("pong without auth")
			return nil
		}
		c.mu.Lock()
		c.pongPending = false
		c.mu.Unlock()
		c.log().Debug().Msg("Pong")
		return nil

	default:
		c.strikeTrash("unknown opcode")
		return nil
	}
}

func (c *conn) handleAuth(payload []byte) error {
	if c.isAuthed() {
		c.strikeTrash("duplicated auth")
		return nil
	}

	uid, err := c.srv.verifier.Verify(string(payload))
	if err != nil {
		monitoring.AuthResults.WithLabelValues("fail").Inc()
		c.log().Warn().Err(err).Msg("Auth failed")
		if err := c.send(OpAuthFail, nil); err != nil {
			return err
		}
		c.strikeTrash("invalid token")
		return nil
	}

	c.uid = uid
	c.mu.Lock()
	c.authed = true
	c.logger = c.logger.With().Int32("uid", uid).Logger()
	c.mu.Unlock()

	if err := c.send(OpAuthOK, nil); err != nil {
		return err
	}
	monitoring.AuthResults.WithLabelValues("ok").Inc()
	c.log().Info().Msg("Authenticated")
	return nil
}

func (c *conn) handleSnapshotRequest() error {
	if !c.isAuthed() {
		c.strikeTrash("snapshot request without auth")
		return nil
	}

	c.mu.Lock()
	if c.snapshotSent {
		c.mu.Unlock()
		// One snapshot per connection; a second request is terminal.
		c.log().Warn().Msg("Duplicate snapshot request, closing")
		return errDupSnapshot
	}
	// Mark live before sending so deltas racing with the (possibly slow)
	// snapshot write are accumulated rather than lost.
	c.snapshotSent = true
	c.mu.Unlock()

	body, err := c.srv.board.Snapshot(c.srv.cfg.SnapshotLevel)
	if err != nil {
		c.log().Error().Err(err).Msg("Snapshot encoding failed")
		return err
	}

	if err := c.send(OpSnapshot, body); err != nil {
		return err
	}
	monitoring.SnapshotsSent.Inc()
	monitoring.SnapshotBytes.Observe(float64(len(body) + 1))
	c.log().Info().Int("compressed_bytes", len(body)).Msg("Sent snapshot")
	return nil
}

// handlePaint runs the admission pipeline: validate, paint window, pace,
// canvas write, action log, broadcast on change.
func (c *conn) handlePaint(payload []byte) {
	px, err := board.DecodePixel(payload)
	if err != nil {
		monitoring.PaintsRejected.WithLabelValues(monitoring.RejectInvalid).Inc()
		c.strikeTrash("invalid paint payload")
		return
	}
	b := c.srv.board
	if int(px.X) >= b.Width() || int(px.Y) >= b.Height() {
		monitoring.PaintsRejected.WithLabelValues(monitoring.RejectInvalid).Inc()
		c.strikeTrash("paint out of bounds")
		return
	}

	now := time.Now()

	if !c.srv.cfg.InPaintWindow(now) {
		monitoring.PaintsRejected.WithLabelValues(monitoring.RejectWindow).Inc()
		c.strikeTrash("paint outside window")
		return
	}

	if !c.srv.pace.Allow(c.uid, now) {
		c.fastStrikes++
		monitoring.PaintsRejected.WithLabelValues(monitoring.RejectTooFast).Inc()
		monitoring.Strikes.WithLabelValues(monitoring.StrikeFastPaint).Inc()
		c.log().Debug().Int("strikes", c.fastStrikes).Msg("Quick paint")
		return
	}
	c.fastStrikes = 0

	// Canvas and action log are updated before publish: a subscriber that
	// sees the delta is guaranteed a subsequent cell read is at least as
	// new.
	prev := b.Set(int(px.X), int(px.Y), board.Cell{
		Color: px.Color,
		UID:   c.uid,
		Time:  now,
	})
	c.srv.actions.Append(board.Action{
		X: int(px.X), Y: int(px.Y),
		Color: board.ColorToHex(px.Color),
		UID:   c.uid,
		Time:  now,
	})
	monitoring.PaintsAccepted.Inc()

	if prev.Color != px.Color {
		c.srv.hub.Publish(px)
		monitoring.DeltasPublished.Inc()
	}
}

// collectDeltas accumulates hub deltas once the connection is live.
func (c *conn) collectDeltas(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case px := <-c.sub.C:
			if !c.isLive() {
				continue
			}
			c.pendingMu.Lock()
			c.pending = append(c.pending, px)
			c.pendingMu.Unlock()
		}
	}
}

// flushLoop sends accumulated deltas as one PaintBatch frame per tick.
// Ticks with nothing pending send nothing.
func (c *conn) flushLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.srv.cfg.DeltaFlush)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.pendingMu.Lock()
			batch := c.pending
			c.pending = nil
			c.pendingMu.Unlock()

			if len(batch) == 0 {
				continue
			}

			frame := make([]byte, 1, 1+len(batch)*board.PixelBytes)
			frame[0] = OpPaintBatch
			for _, px := range batch {
				frame = px.AppendBytes(frame)
			}

			if err := c.sendFrame(frame); err != nil {
				c.log().Warn().Err(err).Msg("Failed to send pixel batch")
				return err
			}
		}
	}
}

// heartbeat pings on every interval and closes the connection when the
// pong does not arrive within the grace window.
func (c *conn) heartbeat(ctx context.Context) error {
	ticker := time.NewTicker(c.srv.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		c.mu.Lock()
		c.pongPending = true
		c.mu.Unlock()

		if err := c.send(OpPing, nil); err != nil {
			c.log().Warn().Err(err).Msg("Failed to send ping")
			return err
		}
		c.log().Debug().Msg("Ping")

		timer := time.NewTimer(c.srv.cfg.PongTimeout)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		c.mu.Lock()
		missed := c.pongPending
		c.mu.Unlock()
		if missed {
			c.log().Warn().Msg("Closed without pong")
			return errPongTimeout
		}
	}
}

// log returns the current connection logger. A copy is taken under the
// lock because auth rebinds the logger while other activities log.
func (c *conn) log() *zerolog.Logger {
	c.mu.Lock()
	l := c.logger
	c.mu.Unlock()
	return &l
}

func (c *conn) isAuthed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authed
}

func (c *conn) isLive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authed && c.snapshotSent
}

func (c *conn) strikeTrash(reason string) {
	c.trashStrikes++
	monitoring.Strikes.WithLabelValues(monitoring.StrikeTrash).Inc()
	c.log().Warn().Str("reason", reason).Msg("Trash strike")
}
