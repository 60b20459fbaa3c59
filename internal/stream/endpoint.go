package stream

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

var ErrInvalidBaseURL = errors.New("invalid base url")

// EndpointURL resolves the absolute path /ws against baseURL (dropping any
// base path), switches http(s) to ws(s) and attaches topic as a query
// parameter
func EndpointURL(baseURL, topic string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidBaseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}

	u := base.ResolveReference(&url.URL{Path: "/ws"})
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidBaseURL, u.Scheme)
	}

	q := url.Values{}
	q.Set("topic", topic)
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String(), nil
}

func newDialer(handshakeTimeout time.Duration) *websocket.Dialer {
	return &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
}
