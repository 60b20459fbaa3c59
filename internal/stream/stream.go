// Package stream subscribes to backend topics over WebSocket and keeps an
// append-only log of the decoded JSON events received on each topic.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"servisca-quickmatch/internal/log"
)

type (
	// Subscriber opens Subscriptions against one backend origin
	Subscriber struct {
		baseURL          string
		pingInterval     time.Duration
		handshakeTimeout time.Duration
		writeWait        time.Duration
		readLimit        int64
		logger           *slog.Logger
	}

	Option func(*Subscriber)

	State int

	// Status describes the connection behind a Subscription. Err is the
	// terminal transport error, nil when the close was requested locally
	Status struct {
		State State
		At    time.Time
		Err   error
	}
)

const (
	Idle State = iota
	Connecting
	Open
	Closed
)

const (
	DefaultPingInterval     = 15 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultReadLimit        = 4 << 20

	pingPayload = "ping"
	writeWait   = 5 * time.Second
)

var (
	ErrEmptyTopic       = errors.New("empty topic")
	ErrMalformedPayload = errors.New("malformed payload")
)

func WithPingInterval(d time.Duration) Option {
	return func(s *Subscriber) {
		if d > 0 {
			s.pingInterval = d
		}
	}
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(s *Subscriber) {
		if d > 0 {
			s.handshakeTimeout = d
		}
	}
}

func WithReadLimit(n int64) Option {
	return func(s *Subscriber) {
		if n > 0 {
			s.readLimit = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Subscriber) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewSubscriber(baseURL string, opts ...Option) *Subscriber {
	s := &Subscriber{
		baseURL:          baseURL,
		pingInterval:     DefaultPingInterval,
		handshakeTimeout: DefaultHandshakeTimeout,
		writeWait:        writeWait,
		readLimit:        DefaultReadLimit,
		logger:           log.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe starts exactly one connection to the event endpoint for topic.
// The dial happens in the background; the returned Subscription starts in
// the Connecting state with an empty log
func (s *Subscriber) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	endpoint, err := EndpointURL(s.baseURL, topic)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		topic:  topic,
		url:    endpoint,
		cfg:    s,
		logger: s.logger.With(log.Topic(topic)),
		cancel: cancel,
		done:   make(chan struct{}),
		status: Status{State: Connecting, At: time.Now()},
	}
	go sub.run(runCtx)
	return sub, nil
}

// Decode validates one inbound frame as JSON
func Decode(data []byte) (json.RawMessage, error) {
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedPayload, len(data))
	}
	return json.RawMessage(data), nil
}

func (st State) String() string {
	switch st {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}
