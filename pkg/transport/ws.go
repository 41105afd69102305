package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"

	"github.com/taskboardhq/boardsync.go/internal/codec"
	"github.com/taskboardhq/boardsync.go/pkg/entity"
	"github.com/taskboardhq/boardsync.go/pkg/logger"
)

var (
	// ErrDisconnected reports a request attempted while the connection is
	// down. The reconnection loop will restore subscriptions; plain requests
	// are the caller's to retry.
	ErrDisconnected = errors.New("transport: not connected")

	// ErrTimeout reports a request whose response did not arrive in time.
	ErrTimeout = errors.New("transport: request timed out")
)

// DefaultDialer is the gorilla dialer used unless Config.Dialer overrides
// it. It differs from gorilla's default by enabling compression and
// declaring the cbor subprotocol.
var DefaultDialer = &gorilla.Dialer{
	Proxy:             gorilla.DefaultDialer.Proxy,
	HandshakeTimeout:  gorilla.DefaultDialer.HandshakeTimeout,
	EnableCompression: true,
	Subprotocols:      []string{"cbor"},
}

// Config configures a WebSocket channel.
type Config struct {
	// BaseURL is the websocket endpoint, e.g. "ws://localhost:8080".
	// The changes endpoint is derived from it.
	BaseURL string

	// Dialer overrides DefaultDialer.
	Dialer *gorilla.Dialer

	// Timeout bounds the wait for an RPC response. Defaults to 30s.
	Timeout time.Duration

	// CheckInterval is how often the reconnection loop looks for a lost
	// connection. Defaults to 5s.
	CheckInterval time.Duration

	// Retryer spaces redial attempts within one reconnection.
	// Defaults to NewExponentialBackoff().
	Retryer Retryer

	// Marshaler and Unmarshaler encode the wire frames.
	// Default to the CBOR codec.
	Marshaler   codec.Marshaler
	Unmarshaler codec.Unmarshaler

	// Logger receives structured transport logs. Defaults to logger.Nop.
	Logger logger.Logger
}

// subscription is one per-kind feed. ch is the stable consumer side;
// serverID is the rotating server side and changes on every resubscribe.
type subscription struct {
	kind     entity.Kind
	serverID string
	ch       chan entity.ChangeNotification
}

// WebSocket is the production Channel implementation.
type WebSocket struct {
	cfg Config
	log logger.Logger

	marshaler   codec.Marshaler
	unmarshaler codec.Unmarshaler
	retryer     Retryer

	conn        *gorilla.Conn
	connMu      sync.Mutex
	loopStarted bool

	responses   map[string]chan frame
	responsesMu sync.Mutex

	// subs is keyed by kind (consumer view), routes by the current server
	// subscription id (wire view). Both point at the same subscriptions.
	subs   map[entity.Kind]*subscription
	routes map[string]*subscription
	subsMu sync.RWMutex

	closeCh        chan struct{}
	reconnLoopDone chan struct{}
	closeOnce      sync.Once
}

// NewWebSocket returns an unconnected channel. Call Connect before
// subscribing.
func NewWebSocket(cfg Config) *WebSocket {
	if cfg.Dialer == nil {
		cfg.Dialer = DefaultDialer
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 5 * time.Second
	}
	if cfg.Retryer == nil {
		cfg.Retryer = NewExponentialBackoff()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop
	}
	c := codec.NewCBOR()
	if cfg.Marshaler == nil {
		cfg.Marshaler = c
	}
	if cfg.Unmarshaler == nil {
		cfg.Unmarshaler = c
	}

	return &WebSocket{
		cfg:            cfg,
		log:            cfg.Logger,
		marshaler:      cfg.Marshaler,
		unmarshaler:    cfg.Unmarshaler,
		retryer:        cfg.Retryer,
		responses:      make(map[string]chan frame),
		subs:           make(map[entity.Kind]*subscription),
		routes:         make(map[string]*subscription),
		closeCh:        make(chan struct{}),
		reconnLoopDone: make(chan struct{}),
	}
}

// Connect dials the changes endpoint and starts the read and reconnection
// loops. It returns an error if the initial dial fails; deciding what to do
// about a misconfigured endpoint is the caller's call, not a retry loop's.
func (t *WebSocket) Connect(ctx context.Context) error {
	if err := t.dial(ctx); err != nil {
		return err
	}

	t.connMu.Lock()
	if !t.loopStarted {
		t.loopStarted = true
		go t.reconnectionLoop()
	}
	t.connMu.Unlock()

	return nil
}

func (t *WebSocket) dial(ctx context.Context) error {
	if t.cfg.BaseURL == "" {
		return errors.New("transport: Config.BaseURL is required")
	}

	conn, res, err := t.cfg.Dialer.DialContext(ctx, fmt.Sprintf("%s/changes", t.cfg.BaseURL), nil)
	if err != nil {
		return fmt.Errorf("transport: dial: %w", err)
	}
	defer res.Body.Close()

	t.connMu.Lock()
	t.conn = conn
	t.connMu.Unlock()

	go t.readLoop(conn)

	t.log.Debug("transport connected", "url", t.cfg.BaseURL)
	return nil
}

// readLoop drains one connection until it fails, dispatching frames.
func (t *WebSocket) readLoop(conn *gorilla.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-t.closeCh:
			default:
				t.log.Warn("transport read failed; connection lost", "error", err)
			}
			t.markDisconnected(conn)
			return
		}

		var f frame
		if err := t.unmarshaler.Unmarshal(data, &f); err != nil {
			t.log.Error("transport received undecodable frame", "error", err)
			continue
		}
		t.dispatch(f)
	}
}

func (t *WebSocket) dispatch(f frame) {
	if f.ID != "" {
		t.responsesMu.Lock()
		ch, ok := t.responses[f.ID]
		t.responsesMu.Unlock()
		if !ok {
			t.log.Warn("transport response for unknown request", "request_id", f.ID)
			return
		}
		select {
		case ch <- f:
		default:
		}
		return
	}

	if f.Subscription == "" || f.Event == nil {
		t.log.Warn("transport frame is neither response nor notification")
		return
	}

	// The send must happen under the same lock as the route lookup: teardown
	// closes sub.ch under the write lock, so a send outside the read lock
	// could race the close and panic. The send is non-blocking, so the read
	// lock is held only for an instant.
	t.subsMu.RLock()
	defer t.subsMu.RUnlock()

	sub, ok := t.routes[f.Subscription]
	if !ok {
		// A push for a subscription id we no longer route: either it raced
		// an unsubscribe or it predates a resubscribe. Safe to drop; the
		// feed is at-least-once.
		t.log.Debug("transport dropping notification for unknown subscription", "subscription", f.Subscription)
		return
	}

	select {
	case sub.ch <- *f.Event:
	default:
		t.log.Warn("transport consumer is slow; notification dropped", "kind", sub.kind)
	}
}

func (t *WebSocket) markDisconnected(conn *gorilla.Conn) {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.conn == conn {
		t.conn = nil
	}
}

// send performs one RPC and waits for its response.
func (t *WebSocket) send(ctx context.Context, method string, params ...any) (result []byte, err error) {
	reqID := uuid.NewString()

	ch := make(chan frame, 1)
	t.responsesMu.Lock()
	t.responses[reqID] = ch
	t.responsesMu.Unlock()
	defer func() {
		t.responsesMu.Lock()
		delete(t.responses, reqID)
		t.responsesMu.Unlock()
	}()

	data, err := t.marshaler.Marshal(request{ID: reqID, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("transport: marshal %s: %w", method, err)
	}

	t.connMu.Lock()
	conn := t.conn
	if conn == nil {
		t.connMu.Unlock()
		return nil, ErrDisconnected
	}
	err = conn.WriteMessage(gorilla.BinaryMessage, data)
	t.connMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("transport: write %s: %w", method, err)
	}

	select {
	case f := <-ch:
		if f.Error != nil {
			return nil, f.Error
		}
		return f.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(t.cfg.Timeout):
		return nil, fmt.Errorf("%w: %s", ErrTimeout, method)
	}
}

// Subscribe opens the change feed for one kind. The returned channel keeps
// its identity across reconnects; only the server-side subscription id
// rotates.
func (t *WebSocket) Subscribe(ctx context.Context, kind entity.Kind) (<-chan entity.ChangeNotification, error) {
	t.subsMu.Lock()
	if _, ok := t.subs[kind]; ok {
		t.subsMu.Unlock()
		return nil, fmt.Errorf("transport: already subscribed to %s", kind)
	}
	t.subsMu.Unlock()

	serverID, err := t.subscribeWire(ctx, kind)
	if err != nil {
		return nil, err
	}

	sub := &subscription{
		kind:     kind,
		serverID: serverID,
		ch:       make(chan entity.ChangeNotification, 64),
	}

	t.subsMu.Lock()
	t.subs[kind] = sub
	t.routes[serverID] = sub
	t.subsMu.Unlock()

	t.log.Debug("subscribed", "kind", kind, "subscription", serverID)
	return sub.ch, nil
}

func (t *WebSocket) subscribeWire(ctx context.Context, kind entity.Kind) (string, error) {
	result, err := t.send(ctx, methodSubscribe, string(kind))
	if err != nil {
		return "", fmt.Errorf("transport: subscribe %s: %w", kind, err)
	}
	var serverID string
	if err := t.unmarshaler.Unmarshal(result, &serverID); err != nil {
		return "", fmt.Errorf("transport: subscribe %s: decode subscription id: %w", kind, err)
	}
	if serverID == "" {
		return "", fmt.Errorf("transport: subscribe %s: empty subscription id", kind)
	}
	return serverID, nil
}

// Unsubscribe closes the feed for one kind. The wire unsubscribe is
// best-effort: the local feed is torn down even when the connection is
// gone, which is exactly the teardown path after a session ends.
func (t *WebSocket) Unsubscribe(ctx context.Context, kind entity.Kind) error {
	t.subsMu.Lock()
	sub, ok := t.subs[kind]
	if !ok {
		t.subsMu.Unlock()
		return nil
	}
	delete(t.subs, kind)
	delete(t.routes, sub.serverID)
	// Closed under the write lock so no dispatch is mid-send on it.
	close(sub.ch)
	t.subsMu.Unlock()

	if _, err := t.send(ctx, methodUnsubscribe, sub.serverID); err != nil {
		if errors.Is(err, ErrDisconnected) {
			return nil
		}
		return fmt.Errorf("transport: unsubscribe %s: %w", kind, err)
	}
	return nil
}

// Close stops the reconnection loop and closes the connection. Remaining
// subscriptions are torn down locally.
func (t *WebSocket) Close(ctx context.Context) error {
	t.closeOnce.Do(func() {
		close(t.closeCh)

		t.connMu.Lock()
		started := t.loopStarted
		t.connMu.Unlock()
		if started {
			<-t.reconnLoopDone
		}

		t.connMu.Lock()
		if t.conn != nil {
			if err := t.conn.Close(); err != nil {
				t.log.Warn("transport close", "error", err)
			}
			t.conn = nil
		}
		t.connMu.Unlock()

		t.subsMu.Lock()
		for kind, sub := range t.subs {
			close(sub.ch)
			delete(t.subs, kind)
			delete(t.routes, sub.serverID)
		}
		t.subsMu.Unlock()
	})
	return nil
}

// reconnectionLoop watches for a lost connection and restores it, then the
// subscriptions on it.
func (t *WebSocket) reconnectionLoop() {
	defer close(t.reconnLoopDone)

	for {
		select {
		case <-t.closeCh:
			return
		case <-time.After(t.cfg.CheckInterval):
		}

		t.connMu.Lock()
		down := t.conn == nil
		t.connMu.Unlock()
		if !down {
			continue
		}

		t.log.Info("transport reconnecting")
		if !t.reconnect() {
			return
		}
	}
}

// reconnect redials under the retry strategy and resubscribes. It returns
// false only when the channel is closing or the retryer gave up.
func (t *WebSocket) reconnect() bool {
	for attempt := 0; ; attempt++ {
		select {
		case <-t.closeCh:
			return false
		default:
		}

		err := t.dial(context.Background())
		if err == nil {
			t.retryer.Reset()
			t.resubscribe()
			return true
		}

		delay, retry := t.retryer.NextDelay(attempt, err)
		if !retry {
			t.log.Error("transport giving up on reconnection", "attempts", attempt+1, "error", err)
			return false
		}
		t.log.Debug("transport redial failed; backing off", "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-t.closeCh:
			return false
		case <-time.After(delay):
		}
	}
}

// resubscribe re-opens every feed on the fresh connection and repoints the
// route table at the new server-side ids. Consumers notice nothing: their
// channels are untouched. Notifications missed while disconnected are gone;
// the consumer operates on a stale snapshot until it resyncs.
func (t *WebSocket) resubscribe() {
	t.subsMu.Lock()
	subs := make([]*subscription, 0, len(t.subs))
	for _, sub := range t.subs {
		subs = append(subs, sub)
	}
	t.subsMu.Unlock()

	for _, sub := range subs {
		ctx, cancel := context.WithTimeout(context.Background(), t.cfg.Timeout)
		serverID, err := t.subscribeWire(ctx, sub.kind)
		cancel()
		if err != nil {
			t.log.Error("transport failed to restore subscription", "kind", sub.kind, "error", err)
			continue
		}

		t.subsMu.Lock()
		delete(t.routes, sub.serverID)
		sub.serverID = serverID
		t.routes[serverID] = sub
		t.subsMu.Unlock()

		t.log.Debug("subscription restored", "kind", sub.kind, "subscription", serverID)
	}
}
