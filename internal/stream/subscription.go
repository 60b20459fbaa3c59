package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"servisca-quickmatch/internal/log"
)

// Subscription owns one connection, its keep-alive ticker and the event log
// for a single topic. Nothing here is shared with other Subscriptions
type Subscription struct {
	topic  string
	url    string
	cfg    *Subscriber
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}

	// writeMu serializes pings against Close so no frame is sent after
	// Close returns
	writeMu sync.Mutex

	mu        sync.Mutex
	conn      *websocket.Conn
	keepAlive *time.Ticker
	stopPing  chan struct{}
	events    []json.RawMessage
	status    Status
	closed    bool
}

var errNotOpen = errors.New("subscription not open")

func (s *Subscription) Topic() string {
	return s.topic
}

// URL is the endpoint this Subscription dialed
func (s *Subscription) URL() string {
	return s.url
}

// Events returns the log as of now. The slice is never written to again,
// and its capacity is clipped so appending to it cannot reach the live log
func (s *Subscription) Events() []json.RawMessage {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.events)
	return s.events[:n:n]
}

func (s *Subscription) Status() Status {
	if s == nil {
		return Status{State: Idle}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Done is closed once the background dial/read goroutine has exited
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close tears the Subscription down: the keep-alive stops, a dial in
// flight is cancelled and the connection is closed. Safe to call more than
// once and on a Subscription that never opened
func (s *Subscription) Close() error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.stopKeepAliveLocked()
	conn := s.conn
	s.status = Status{State: Closed, At: time.Now()}
	s.mu.Unlock()

	s.cancel()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if conn != nil {
		if err := conn.Close(); err != nil {
			s.logger.Debug("close failed, ignoring", log.Error(err))
		}
	}
	return nil
}

func (s *Subscription) run(ctx context.Context) {
	defer close(s.done)
	defer s.cancel()

	dialer := newDialer(s.cfg.handshakeTimeout)
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		s.logger.Debug("dial failed", log.URL(s.url), log.Error(err))
		s.finish(err)
		return
	}
	conn.SetReadLimit(s.cfg.readLimit)

	defer func() { _ = conn.Close() }()
	if !s.attach(conn) {
		return
	}
	s.logger.Debug("stream open", log.URL(s.url))

	// ReadMessage only unblocks when the socket closes
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			s.finish(err)
			return
		}
		if kind != websocket.TextMessage {
			s.logger.Debug("dropping non-text frame", slog.Int("kind", kind))
			continue
		}
		ev, err := Decode(data)
		if err != nil {
			s.logger.Debug("dropping event", log.Error(err))
			continue
		}
		s.append(ev)
	}
}

func (s *Subscription) attach(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conn = conn
	s.status = Status{State: Open, At: time.Now()}

	s.keepAlive = time.NewTicker(s.cfg.pingInterval)
	s.stopPing = make(chan struct{})
	go s.pingLoop(s.keepAlive.C, s.stopPing)
	return true
}

func (s *Subscription) pingLoop(tick <-chan time.Time, stop <-chan struct{}) {
	for {
		select {
		case <-tick:
			if err := s.ping(); err != nil {
				s.logger.Debug("keep-alive send failed, ignoring", log.Error(err))
			}
		case <-stop:
			return
		}
	}
}

func (s *Subscription) ping() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	conn := s.conn
	open := !s.closed && s.status.State == Open
	s.mu.Unlock()
	if !open || conn == nil {
		return errNotOpen
	}

	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.writeWait))
	return conn.WriteMessage(websocket.TextMessage, []byte(pingPayload))
}

func (s *Subscription) append(ev json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events = append(s.events, ev)
}

// finish records a transport-side end of the stream. No reconnect is made
func (s *Subscription) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopKeepAliveLocked()
	if s.closed {
		return
	}
	s.closed = true
	s.status = Status{State: Closed, At: time.Now(), Err: err}
	s.logger.Debug("stream closed", log.Error(err))
}

func (s *Subscription) stopKeepAliveLocked() {
	if s.keepAlive == nil {
		return
	}
	s.keepAlive.Stop()
	close(s.stopPing)
	s.keepAlive = nil
	s.stopPing = nil
}
