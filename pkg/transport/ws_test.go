package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskboardhq/boardsync.go/pkg/entity"
)

// changesServer is a minimal changes endpoint: it answers subscribe and
// unsubscribe RPCs with counter-based subscription ids and lets the test push
// notification frames.
type changesServer struct {
	t   *testing.T
	srv *httptest.Server

	mu      sync.Mutex
	conns   []*gorilla.Conn
	subN    int
	lastSub string
	subs    map[string]string // subscription id -> kind
}

func newChangesServer(t *testing.T) *changesServer {
	s := &changesServer{t: t, subs: make(map[string]string)}

	upgrader := gorilla.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}

	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/changes" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		go s.serve(conn)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *changesServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *changesServer) serve(conn *gorilla.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var req request
		if err := cbor.Unmarshal(data, &req); err != nil {
			continue
		}

		switch req.Method {
		case methodSubscribe:
			s.mu.Lock()
			s.subN++
			id := "sub-" + strconv.Itoa(s.subN)
			kind, _ := req.Params[0].(string)
			s.subs[id] = kind
			s.lastSub = id
			s.mu.Unlock()

			result, err := cbor.Marshal(id)
			require.NoError(s.t, err)
			s.reply(conn, frame{ID: req.ID, Result: result})
		case methodUnsubscribe:
			s.mu.Lock()
			if id, ok := req.Params[0].(string); ok {
				delete(s.subs, id)
			}
			s.mu.Unlock()
			s.reply(conn, frame{ID: req.ID})
		}
	}
}

func (s *changesServer) reply(conn *gorilla.Conn, f frame) {
	data, err := cbor.Marshal(f)
	require.NoError(s.t, err)

	s.mu.Lock()
	defer s.mu.Unlock()
	_ = conn.WriteMessage(gorilla.BinaryMessage, data)
}

// push sends a notification frame on the most recent connection.
func (s *changesServer) push(subscriptionID string, n entity.ChangeNotification) {
	data, err := cbor.Marshal(frame{Subscription: subscriptionID, Event: &n})
	require.NoError(s.t, err)

	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conns[len(s.conns)-1].WriteMessage(gorilla.BinaryMessage, data)
}

// dropConnection severs the current connection server-side.
func (s *changesServer) dropConnection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conns[len(s.conns)-1].Close()
}

func (s *changesServer) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *changesServer) currentSubID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSub
}

func strp(v string) *string { return &v }

func newTestWebSocket(t *testing.T, s *changesServer) *WebSocket {
	ws := NewWebSocket(Config{
		BaseURL:       s.url(),
		Timeout:       2 * time.Second,
		CheckInterval: 20 * time.Millisecond,
		Retryer:       NewFixedDelay(10*time.Millisecond, 0),
	})
	require.NoError(t, ws.Connect(context.Background()))
	t.Cleanup(func() {
		require.NoError(t, ws.Close(context.Background()))
	})
	return ws
}

func TestWebSocketSubscribeAndReceive(t *testing.T) {
	s := newChangesServer(t)
	ws := newTestWebSocket(t, s)

	feed, err := ws.Subscribe(context.Background(), entity.KindTask)
	require.NoError(t, err)

	s.push(s.currentSubID(), entity.ChangeNotification{
		Kind:      entity.KindTask,
		EventType: entity.EventInsert,
		Next:      entity.PartialEntity{ID: strp("T1"), Body: strp("hello")},
	})

	select {
	case n := <-feed:
		assert.Equal(t, "T1", n.EntityID())
		require.NotNil(t, n.Next.Body)
		assert.Equal(t, "hello", *n.Next.Body)
	case <-time.After(2 * time.Second):
		t.Fatal("notification never delivered")
	}
}

func TestWebSocketRejectsDuplicateSubscription(t *testing.T) {
	s := newChangesServer(t)
	ws := newTestWebSocket(t, s)

	_, err := ws.Subscribe(context.Background(), entity.KindTask)
	require.NoError(t, err)

	_, err = ws.Subscribe(context.Background(), entity.KindTask)
	assert.Error(t, err)
}

func TestWebSocketUnsubscribeClosesFeed(t *testing.T) {
	s := newChangesServer(t)
	ws := newTestWebSocket(t, s)

	feed, err := ws.Subscribe(context.Background(), entity.KindTask)
	require.NoError(t, err)

	require.NoError(t, ws.Unsubscribe(context.Background(), entity.KindTask))

	select {
	case _, open := <-feed:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("feed not closed")
	}

	// Unsubscribing a kind that is not subscribed is a no-op.
	assert.NoError(t, ws.Unsubscribe(context.Background(), entity.KindTemplate))
}

func TestWebSocketReconnectKeepsConsumerChannel(t *testing.T) {
	s := newChangesServer(t)
	ws := newTestWebSocket(t, s)

	feed, err := ws.Subscribe(context.Background(), entity.KindTask)
	require.NoError(t, err)
	firstSubID := s.currentSubID()

	s.dropConnection()

	// The reconnection loop redials and resubscribes under a fresh
	// subscription id.
	require.Eventually(t, func() bool {
		return s.connCount() >= 2 && s.currentSubID() != "" && s.currentSubID() != firstSubID
	}, 5*time.Second, 10*time.Millisecond, "never resubscribed after reconnect")

	s.push(s.currentSubID(), entity.ChangeNotification{
		Kind:      entity.KindTask,
		EventType: entity.EventInsert,
		Next:      entity.PartialEntity{ID: strp("T2")},
	})

	// Same consumer channel, no re-subscribe needed by the caller.
	select {
	case n := <-feed:
		assert.Equal(t, "T2", n.EntityID())
	case <-time.After(2 * time.Second):
		t.Fatal("notification never delivered after reconnect")
	}
}

// Teardown closes the consumer channel while the read loop may still be
// dispatching onto it; the dispatch send and the close must be mutually
// excluded or the read loop panics on a closed channel.
func TestWebSocketDispatchRacesUnsubscribe(t *testing.T) {
	for round := 0; round < 50; round++ {
		ws := NewWebSocket(Config{BaseURL: "ws://unused"})

		sub := &subscription{
			kind:     entity.KindTask,
			serverID: "sub-race",
			ch:       make(chan entity.ChangeNotification, 1),
		}
		ws.subsMu.Lock()
		ws.subs[sub.kind] = sub
		ws.routes[sub.serverID] = sub
		ws.subsMu.Unlock()

		f := frame{
			Subscription: "sub-race",
			Event: &entity.ChangeNotification{
				Kind:      entity.KindTask,
				EventType: entity.EventInsert,
				Next:      entity.PartialEntity{ID: strp("T1")},
			},
		}

		start := make(chan struct{})
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for j := 0; j < 500; j++ {
					ws.dispatch(f)
				}
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			// Disconnected, so the wire unsubscribe is skipped and only the
			// local teardown races the dispatchers.
			assert.NoError(t, ws.Unsubscribe(context.Background(), entity.KindTask))
		}()

		close(start)
		wg.Wait()
	}
}

func TestWebSocketSendWhileDisconnected(t *testing.T) {
	s := newChangesServer(t)
	ws := NewWebSocket(Config{BaseURL: s.url()})

	_, err := ws.Subscribe(context.Background(), entity.KindTask)
	assert.ErrorIs(t, err, ErrDisconnected)
}
