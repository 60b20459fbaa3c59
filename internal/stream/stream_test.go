package stream_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"servisca-quickmatch/internal/stream"
)

type (
	testServer struct {
		*httptest.Server
		conns chan *serverConn

		mu       sync.Mutex
		requests []string
	}

	serverConn struct {
		*websocket.Conn
		topic string
		gone  chan struct{}

		mu    sync.Mutex
		texts []string
	}
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{conns: make(chan *serverConn, 16)}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		topic := r.URL.Query().Get("topic")
		ts.mu.Lock()
		ts.requests = append(ts.requests, topic)
		ts.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sc := &serverConn{Conn: conn, topic: topic, gone: make(chan struct{})}
		ts.conns <- sc

		defer close(sc.gone)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			sc.mu.Lock()
			sc.texts = append(sc.texts, string(data))
			sc.mu.Unlock()
		}
	})
	ts.Server = httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) Requests() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]string(nil), ts.requests...)
}

func (ts *testServer) accept(t *testing.T) *serverConn {
	t.Helper()
	select {
	case sc := <-ts.conns:
		return sc
	case <-time.After(waitFor):
		t.Fatal("no connection received")
		return nil
	}
}

func (sc *serverConn) send(t *testing.T, payload string) {
	t.Helper()
	require.NoError(t, sc.WriteMessage(websocket.TextMessage, []byte(payload)))
}

func (sc *serverConn) Texts() []string {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return append([]string(nil), sc.texts...)
}

func waitOpen(t *testing.T, s *stream.Subscription) {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.Status().State == stream.Open
	}, waitFor, tick)
}

func eventStrings(evs []json.RawMessage) []string {
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = string(ev)
	}
	return out
}

func TestSubscribeOpensOneConnection(t *testing.T) {
	ts := newTestServer(t)
	sub := stream.NewSubscriber(ts.URL)

	s, err := sub.Subscribe(context.Background(), "task:tsk1")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	sc := ts.accept(t)
	assert.Equal(t, "task:tsk1", sc.topic)
	waitOpen(t, s)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"task:tsk1"}, ts.Requests())
	assert.True(t, strings.HasPrefix(s.URL(), "ws://"))
	assert.True(t, strings.HasSuffix(s.URL(), "/ws?topic=task%3Atsk1"))
}

func TestSubscribeEmptyTopic(t *testing.T) {
	ts := newTestServer(t)
	sub := stream.NewSubscriber(ts.URL)

	s, err := sub.Subscribe(context.Background(), "")
	assert.ErrorIs(t, err, stream.ErrEmptyTopic)
	assert.Nil(t, s)
	assert.Empty(t, s.Events())
	assert.Equal(t, stream.Idle, s.Status().State)

	w := stream.NewWatcher(context.Background(), sub)
	require.NoError(t, w.SetTopic(""))
	assert.Empty(t, w.Events())
	assert.Equal(t, stream.Idle, w.Status().State)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, ts.Requests())
}

func TestSubscribeBadBaseURL(t *testing.T) {
	sub := stream.NewSubscriber("ftp://example.com")
	_, err := sub.Subscribe(context.Background(), "user:u1")
	assert.ErrorIs(t, err, stream.ErrInvalidBaseURL)
}

func TestWatcherReportsSubscribeFailure(t *testing.T) {
	sub := stream.NewSubscriber("ftp://example.com")
	w := stream.NewWatcher(context.Background(), sub)

	err := w.SetTopic("user:u1")
	assert.ErrorIs(t, err, stream.ErrInvalidBaseURL)
	assert.Equal(t, "user:u1", w.Topic())
	assert.Nil(t, w.Subscription())

	st := w.Status()
	assert.Equal(t, stream.Closed, st.State)
	assert.ErrorIs(t, st.Err, stream.ErrInvalidBaseURL)

	require.NoError(t, w.SetTopic(""))
	assert.Equal(t, stream.Idle, w.Status().State)
	assert.NoError(t, w.Status().Err)
}

func TestEventsKeepArrivalOrder(t *testing.T) {
	ts := newTestServer(t)
	sub := stream.NewSubscriber(ts.URL)

	s, err := sub.Subscribe(context.Background(), "user:u123")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	sc := ts.accept(t)
	waitOpen(t, s)

	sc.send(t, `{"n":1}`)
	sc.send(t, `not json`)
	sc.send(t, `{"n":2}`)
	require.NoError(t, sc.WriteMessage(websocket.BinaryMessage, []byte(`{"n":99}`)))
	sc.send(t, `{"n":3}`)

	require.Eventually(t, func() bool {
		return len(s.Events()) == 3
	}, waitFor, tick)
	assert.Equal(t,
		[]string{`{"n":1}`, `{"n":2}`, `{"n":3}`},
		eventStrings(s.Events()),
	)
}

func TestEventsSnapshotIsStable(t *testing.T) {
	ts := newTestServer(t)
	sub := stream.NewSubscriber(ts.URL)

	s, err := sub.Subscribe(context.Background(), "user:u123")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	sc := ts.accept(t)
	waitOpen(t, s)

	sc.send(t, `{"n":1}`)
	require.Eventually(t, func() bool {
		return len(s.Events()) == 1
	}, waitFor, tick)

	snap := s.Events()
	_ = append(snap, json.RawMessage(`{"local":true}`))

	sc.send(t, `{"n":2}`)
	require.Eventually(t, func() bool {
		return len(s.Events()) == 2
	}, waitFor, tick)

	assert.Len(t, snap, 1)
	assert.Equal(t, []string{`{"n":1}`, `{"n":2}`}, eventStrings(s.Events()))
}

func TestWatcherTopicChangeDiscardsLog(t *testing.T) {
	ts := newTestServer(t)
	sub := stream.NewSubscriber(ts.URL)
	w := stream.NewWatcher(context.Background(), sub)
	defer func() { _ = w.Close() }()

	require.NoError(t, w.SetTopic("tasker:tsk1"))
	first := ts.accept(t)
	waitOpen(t, w.Subscription())

	first.send(t, `{"offer":1}`)
	first.send(t, `{"offer":2}`)
	require.Eventually(t, func() bool {
		return len(w.Events()) == 2
	}, waitFor, tick)

	require.NoError(t, w.SetTopic("tasker:tsk1"))
	assert.Len(t, w.Events(), 2)

	require.NoError(t, w.SetTopic("tasker:tsk2"))
	assert.Equal(t, "tasker:tsk2", w.Topic())
	assert.Empty(t, w.Events())

	select {
	case <-first.gone:
	case <-time.After(waitFor):
		t.Fatal("previous connection was not closed")
	}

	second := ts.accept(t)
	assert.Equal(t, "tasker:tsk2", second.topic)
	waitOpen(t, w.Subscription())

	second.send(t, `{"offer":3}`)
	require.Eventually(t, func() bool {
		return len(w.Events()) == 1
	}, waitFor, tick)
	assert.Equal(t, []string{`{"offer":3}`}, eventStrings(w.Events()))
	assert.Equal(t, []string{"tasker:tsk1", "tasker:tsk2"}, ts.Requests())
}

func TestKeepAliveStopsOnClose(t *testing.T) {
	ts := newTestServer(t)
	sub := stream.NewSubscriber(ts.URL,
		stream.WithPingInterval(10*time.Millisecond),
	)

	s, err := sub.Subscribe(context.Background(), "user:u123")
	require.NoError(t, err)

	sc := ts.accept(t)
	require.Eventually(t, func() bool {
		return len(sc.Texts()) >= 2
	}, waitFor, tick)
	for _, txt := range sc.Texts() {
		assert.Equal(t, "ping", txt)
	}

	require.NoError(t, s.Close())
	assert.Equal(t, stream.Closed, s.Status().State)
	assert.NoError(t, s.Status().Err)

	select {
	case <-sc.gone:
	case <-time.After(waitFor):
		t.Fatal("connection not closed")
	}
	count := len(sc.Texts())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, count, len(sc.Texts()))

	select {
	case <-s.Done():
	case <-time.After(waitFor):
		t.Fatal("subscription goroutine did not exit")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	ts := newTestServer(t)
	sub := stream.NewSubscriber(ts.URL)

	s, err := sub.Subscribe(context.Background(), "user:u123")
	require.NoError(t, err)
	ts.accept(t)
	waitOpen(t, s)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())

	var never *stream.Subscription
	assert.NoError(t, never.Close())
}

func TestDialFailureEndsClosed(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	sub := stream.NewSubscriber(url)
	s, err := sub.Subscribe(context.Background(), "user:u123")
	require.NoError(t, err)

	<-s.Done()
	st := s.Status()
	assert.Equal(t, stream.Closed, st.State)
	assert.Error(t, st.Err)
	assert.NoError(t, s.Close())
	assert.Empty(t, s.Events())
}

func TestNoReconnectAfterServerClose(t *testing.T) {
	ts := newTestServer(t)
	sub := stream.NewSubscriber(ts.URL)

	s, err := sub.Subscribe(context.Background(), "task:tsk1")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	sc := ts.accept(t)
	waitOpen(t, s)
	sc.send(t, `{"status":"searching"}`)
	require.Eventually(t, func() bool {
		return len(s.Events()) == 1
	}, waitFor, tick)

	_ = sc.Close()
	require.Eventually(t, func() bool {
		return s.Status().State == stream.Closed
	}, waitFor, tick)
	assert.Error(t, s.Status().Err)

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, ts.Requests(), 1)
	assert.Len(t, s.Events(), 1)
}

func TestKeepAliveStopsOnServerClose(t *testing.T) {
	ts := newTestServer(t)
	sub := stream.NewSubscriber(ts.URL,
		stream.WithPingInterval(10*time.Millisecond),
	)

	s, err := sub.Subscribe(context.Background(), "user:u123")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	sc := ts.accept(t)
	require.Eventually(t, func() bool {
		return len(sc.Texts()) >= 2
	}, waitFor, tick)

	_ = sc.Close()
	select {
	case <-s.Done():
	case <-time.After(waitFor):
		t.Fatal("subscription goroutine did not exit")
	}
	st := s.Status()
	assert.Equal(t, stream.Closed, st.State)
	assert.Error(t, st.Err)

	<-sc.gone
	count := len(sc.Texts())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, count, len(sc.Texts()))
	assert.Len(t, ts.Requests(), 1)
}

func TestContextCancelClosesStream(t *testing.T) {
	ts := newTestServer(t)
	sub := stream.NewSubscriber(ts.URL)

	ctx, cancel := context.WithCancel(context.Background())
	s, err := sub.Subscribe(ctx, "task:tsk1")
	require.NoError(t, err)

	sc := ts.accept(t)
	waitOpen(t, s)
	cancel()

	select {
	case <-sc.gone:
	case <-time.After(waitFor):
		t.Fatal("connection not closed on cancel")
	}
	<-s.Done()
	assert.Equal(t, stream.Closed, s.Status().State)
}

func TestEndpointURL(t *testing.T) {
	cases := []struct {
		base, topic, want string
	}{
		{"http://localhost:8080", "task:tsk1", "ws://localhost:8080/ws?topic=task%3Atsk1"},
		{"https://api.example.com/v1/", "user:u1", "wss://api.example.com/ws?topic=user%3Au1"},
		{"ws://127.0.0.1:9000", "tasker:t 1", "ws://127.0.0.1:9000/ws?topic=tasker%3At+1"},
	}
	for _, tc := range cases {
		got, err := stream.EndpointURL(tc.base, tc.topic)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	for _, bad := range []string{"", "localhost:8080", "ftp://example.com", "::"} {
		_, err := stream.EndpointURL(bad, "x")
		assert.ErrorIs(t, err, stream.ErrInvalidBaseURL, bad)
	}
}

func TestDecode(t *testing.T) {
	ev, err := stream.Decode([]byte(`{"status":"searching"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"searching"}`, string(ev))

	ev, err = stream.Decode([]byte(`"pong"`))
	require.NoError(t, err)
	assert.Equal(t, `"pong"`, string(ev))

	_, err = stream.Decode([]byte(`pong`))
	assert.ErrorIs(t, err, stream.ErrMalformedPayload)
}
