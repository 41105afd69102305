package boardsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/taskboardhq/boardsync.go/pkg/access"
	"github.com/taskboardhq/boardsync.go/pkg/entity"
	"github.com/taskboardhq/boardsync.go/pkg/ledger"
	"github.com/taskboardhq/boardsync.go/pkg/logger"
	"github.com/taskboardhq/boardsync.go/pkg/store"
)

// Channel delivers change notifications for a board collection. It is an
// external collaborator: delivery is at-least-once, ordered per entity id
// only, with partial payloads. The engine subscribes and unsubscribes but
// does not control delivery semantics.
type Channel interface {
	Subscribe(ctx context.Context, kind entity.Kind) (<-chan entity.ChangeNotification, error)
	Unsubscribe(ctx context.Context, kind entity.Kind) error
}

// WriteAPI issues entity creation requests against the server. The engine
// needs only the authoritative id from a successful create to confirm the
// matching optimistic entry.
type WriteAPI interface {
	Create(ctx context.Context, e entity.Entity) (serverID string, err error)
}

// Config configures an Engine. Channel and Access are required; the rest
// have working defaults.
type Config struct {
	// Channel is the change-notification feed to subscribe to.
	Channel Channel

	// Access is the session's access scope, supplied once and read-only.
	Access access.Context

	// Resolver looks up a client's company for restricted internal users.
	// May be nil, in which case unresolved clients fail closed.
	Resolver access.CompanyResolver

	// Writes is the write API used by CreateTask and CreateTemplate.
	// May be nil for read-only sessions.
	Writes WriteAPI

	// Kinds are the collections to subscribe to. Defaults to tasks and
	// templates.
	Kinds []entity.Kind

	// QueueSize bounds the internal mutation queue. Defaults to 64.
	QueueSize int

	// Logger receives structured engine logs. Defaults to logger.Nop.
	Logger logger.Logger
}

// Engine keeps the local collection reconciled against the server's change
// feed while absorbing the client's own optimistic writes.
//
// One goroutine owns all mutation: remote notifications and local writes
// funnel through the same queue and each is applied run-to-completion. The
// only suspension points are the channel receives; company lookups run as
// independent goroutines whose results are joined back in as queued
// mutations, never as blocking calls inside the loop.
type Engine struct {
	cfg   Config
	log   logger.Logger
	kinds []entity.Kind

	store  *store.Store
	ledger *ledger.Ledger

	// col is the loop-owned working collection; the store adopts each new
	// version as one unit. Only the run loop touches it.
	col store.Collection

	// companies is the resolved client-to-company directory. An empty value
	// records a failed lookup (fail closed). Loop-owned.
	companies access.Companies

	// inflight marks client ids with a lookup goroutine running; parked
	// queues notifications per client id awaiting that lookup; waiting maps
	// an entity id to the client id it is queued behind, so later
	// notifications for the same entity keep their arrival order. Loop-owned.
	inflight map[string]bool
	parked   map[string][]entity.ChangeNotification
	waiting  map[string]string

	notifications chan entity.ChangeNotification
	mutations     chan func()

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// Open subscribes to the configured change feeds and starts the
// reconciliation loop. The returned engine mutates nothing after Close
// returns; ctx cancellation tears the engine down the same way Close does.
//
// Subscription lifetime is explicit: it begins here and ends at Close, not
// with object construction.
func Open(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.Channel == nil {
		return nil, errors.New("boardsync: Config.Channel is required")
	}
	if cfg.Access.WorkspaceID == "" {
		return nil, errors.New("boardsync: Config.Access.WorkspaceID is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop
	}
	if len(cfg.Kinds) == 0 {
		cfg.Kinds = []entity.Kind{entity.KindTask, entity.KindTemplate}
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}

	ectx, cancel := context.WithCancel(ctx)
	e := &Engine{
		cfg:           cfg,
		log:           cfg.Logger,
		kinds:         cfg.Kinds,
		store:         store.New(),
		ledger:        ledger.New(),
		col:           make(store.Collection),
		companies:     make(access.Companies),
		inflight:      make(map[string]bool),
		parked:        make(map[string][]entity.ChangeNotification),
		waiting:       make(map[string]string),
		notifications: make(chan entity.ChangeNotification, cfg.QueueSize),
		mutations:     make(chan func(), cfg.QueueSize),
		ctx:           ectx,
		cancel:        cancel,
	}

	for i, kind := range e.kinds {
		feed, err := cfg.Channel.Subscribe(ctx, kind)
		if err != nil {
			for _, k := range e.kinds[:i] {
				if uerr := cfg.Channel.Unsubscribe(ctx, k); uerr != nil {
					e.log.Warn("unsubscribe during failed open", "kind", k, "error", uerr)
				}
			}
			cancel()
			return nil, fmt.Errorf("boardsync: subscribe %s: %w", kind, err)
		}
		e.wg.Add(1)
		go e.forward(feed)
	}

	e.wg.Add(1)
	go e.run()

	e.log.Debug("engine opened", "workspace", cfg.Access.WorkspaceID, "kinds", e.kinds)
	return e, nil
}

// Close unsubscribes from the change feeds, discards in-flight lookups and
// stops the reconciliation loop. Once it returns, the local store is no
// longer mutated. Close is idempotent.
func (e *Engine) Close(ctx context.Context) error {
	e.closeOnce.Do(func() {
		for _, kind := range e.kinds {
			if err := e.cfg.Channel.Unsubscribe(ctx, kind); err != nil {
				e.log.Warn("unsubscribe failed", "kind", kind, "error", err)
				e.closeErr = errors.Join(e.closeErr, err)
			}
		}
		e.cancel()
		e.wg.Wait()
		e.log.Debug("engine closed")
	})
	return e.closeErr
}

// forward moves one feed's notifications onto the loop's single inbox.
func (e *Engine) forward(feed <-chan entity.ChangeNotification) {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case n, ok := <-feed:
			if !ok {
				return
			}
			select {
			case e.notifications <- n:
			case <-e.ctx.Done():
				return
			}
		}
	}
}

// run is the single consumer: one notification or mutation at a time,
// run-to-completion.
func (e *Engine) run() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case n := <-e.notifications:
			e.apply(n)
		case fn := <-e.mutations:
			fn()
		}
	}
}

// apply routes one notification: directly into the reducer when its
// visibility can be decided now, or parked behind a company lookup when not.
func (e *Engine) apply(n entity.ChangeNotification) {
	id := n.EntityID()
	if id == "" {
		e.log.Warn("dropping notification without id", "kind", n.Kind, "event", n.EventType)
		return
	}
	if entity.IsTempID(id) {
		// The server never assigns ids in the temp namespace; this would
		// alias a notification onto a pending optimistic entity.
		e.log.Error("rejecting notification with temp-namespace id", "id", id, "error", ErrIdentityConflict)
		return
	}

	// An earlier notification for this entity is parked: queue behind it so
	// per-entity arrival order holds.
	if clientID, ok := e.waiting[id]; ok {
		e.parked[clientID] = append(e.parked[clientID], n)
		return
	}

	if clientID := e.unresolvedClient(n, id); clientID != "" {
		e.park(clientID, id, n)
		return
	}

	e.reduce(n)
}

// unresolvedClient returns the client id whose company must be resolved
// before this notification's visibility can be decided, or "".
func (e *Engine) unresolvedClient(n entity.ChangeNotification, id string) string {
	if !e.cfg.Access.Restricted() {
		return ""
	}

	assigneeType := entity.AssigneeType("")
	assigneeID := ""
	if old, ok := e.col[id]; ok {
		assigneeType = old.AssigneeType
		assigneeID = old.AssigneeID
	}
	if n.Next.AssigneeType != nil {
		assigneeType = *n.Next.AssigneeType
	}
	if n.Next.AssigneeID != nil {
		assigneeID = *n.Next.AssigneeID
	}
	if assigneeType != entity.AssigneeClient || assigneeID == "" {
		return ""
	}
	if _, known := e.companies[assigneeID]; known {
		return ""
	}
	if e.cfg.Resolver == nil {
		// Nothing can resolve it; record the failure so visibility fails
		// closed from here on.
		e.log.Warn("no company resolver; treating client as unresolved", "client_id", assigneeID)
		e.companies[assigneeID] = ""
		return ""
	}
	return assigneeID
}

// park queues n behind the company lookup for clientID, starting the lookup
// if it is not already running.
func (e *Engine) park(clientID, entityID string, n entity.ChangeNotification) {
	e.parked[clientID] = append(e.parked[clientID], n)
	e.waiting[entityID] = clientID
	if e.inflight[clientID] {
		return
	}
	e.inflight[clientID] = true
	e.wg.Add(1)
	go e.resolve(clientID)
}

// resolve runs off the loop, looks up the client's company and joins the
// result back in as a queued mutation. After teardown the result is
// discarded, never applied.
func (e *Engine) resolve(clientID string) {
	defer e.wg.Done()

	companyID, err := e.cfg.Resolver.CompanyOf(e.ctx, clientID)

	join := func() {
		delete(e.inflight, clientID)
		if err != nil {
			e.log.Warn("company lookup failed; affected entities fail closed", "client_id", clientID, "error", err)
			e.companies[clientID] = ""
		} else {
			e.companies[clientID] = companyID
		}

		queued := e.parked[clientID]
		delete(e.parked, clientID)
		for _, qn := range queued {
			delete(e.waiting, qn.EntityID())
		}
		for _, qn := range queued {
			e.apply(qn)
		}
	}

	select {
	case e.mutations <- join:
	case <-e.ctx.Done():
	}
}

// reduce runs the pure reducer and lands its result in the store as one
// unit. Failed reductions are dropped and logged; the worst outcome is a
// stale entry until the next notification.
func (e *Engine) reduce(n entity.ChangeNotification) {
	next, err := Reduce(e.col, n, e.cfg.Access, e.companies)
	if err != nil {
		e.log.Warn("dropping notification", "id", n.EntityID(), "event", n.EventType, "error", err)
		return
	}

	// The authoritative INSERT for a confirmed optimistic write retires the
	// temp placeholder; the ledger entry stays so the stable key holds until
	// the application prunes it.
	if n.EventType == entity.EventInsert {
		if tempID, ok := e.ledger.TempFor(n.EntityID()); ok && tempID != n.EntityID() {
			if _, present := next[tempID]; present {
				next = next.Clone()
				delete(next, tempID)
			}
		}
	}

	e.commit(next)
}

// commit adopts next as the collection if it changed.
func (e *Engine) commit(next store.Collection) {
	if sameCollection(next, e.col) {
		return
	}
	e.col = next
	e.store.Adopt(next)
}

func sameCollection(a, b store.Collection) bool {
	if len(a) != len(b) {
		return false
	}
	for id, ea := range a {
		if eb, ok := b[id]; !ok || ea != eb {
			return false
		}
	}
	return true
}

// enqueue runs fn on the loop, preserving queue order with everything else.
func (e *Engine) enqueue(ctx context.Context, fn func()) error {
	if e.ctx.Err() != nil {
		// The queue is buffered; without this check a post-Close enqueue
		// would land a mutation nothing will ever run.
		return ErrClosed
	}
	select {
	case e.mutations <- fn:
		return nil
	case <-e.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateTask issues an optimistic task creation. See Create.
func (e *Engine) CreateTask(ctx context.Context, draft entity.Entity) (string, error) {
	return e.Create(ctx, entity.KindTask, draft)
}

// CreateTemplate issues an optimistic template creation. See Create.
func (e *Engine) CreateTemplate(ctx context.Context, draft entity.Entity) (string, error) {
	return e.Create(ctx, entity.KindTemplate, draft)
}

// Create inserts a locally keyed copy of draft immediately and issues the
// write through the configured WriteAPI. The returned temp id is the
// entity's identity until the matching INSERT notification is reconciled;
// StableKeyFor keeps reporting it afterwards, until the entry is pruned.
//
// If the server write fails the temp entity stays in the collection: the
// engine makes no unilateral rollback decision. Call Rollback to withdraw
// it.
func (e *Engine) Create(ctx context.Context, kind entity.Kind, draft entity.Entity) (string, error) {
	tempID := entity.NewTempID()

	local := draft
	local.ID = tempID
	local.Kind = kind
	if local.WorkspaceID == "" {
		local.WorkspaceID = e.cfg.Access.WorkspaceID
	}
	if local.CreatedAt.IsZero() {
		local.CreatedAt = time.Now().UTC()
	}

	err := e.enqueue(ctx, func() {
		e.ledger.Begin(tempID)
		next := e.col.Clone()
		next[tempID] = local
		e.commit(next)
	})
	if err != nil {
		return "", err
	}

	if e.cfg.Writes != nil {
		go e.submit(local, tempID)
	}

	return tempID, nil
}

// submit performs the server write for an optimistic create and joins the
// confirmation back onto the loop. The goroutine is deliberately untracked:
// after teardown its join is discarded, so it can touch nothing.
func (e *Engine) submit(local entity.Entity, tempID string) {
	serverID, err := e.cfg.Writes.Create(e.ctx, local)

	join := func() {
		if err != nil {
			e.log.Warn("optimistic create failed; entity awaits rollback", "temp_id", tempID, "error", err)
			return
		}
		if cerr := e.ledger.Confirm(tempID, serverID); cerr != nil {
			e.log.Error("rejecting write confirmation", "temp_id", tempID, "server_id", serverID, "error", cerr)
		}
	}

	select {
	case e.mutations <- join:
	case <-e.ctx.Done():
	}
}

// Rollback withdraws a failed or abandoned optimistic write: the temp
// entity leaves the collection and its ledger entry is dropped.
func (e *Engine) Rollback(ctx context.Context, tempID string) error {
	return e.enqueue(ctx, func() {
		if _, present := e.col[tempID]; present {
			next := e.col.Clone()
			delete(next, tempID)
			e.commit(next)
		}
		e.ledger.Prune(tempID)
	})
}

// Prune drops the ledger entry for tempID once the render layer no longer
// needs the temp identity. Safe to call at any time.
func (e *Engine) Prune(tempID string) {
	e.ledger.Prune(tempID)
}

// StableKeyFor returns the identity the render layer should key this id by:
// the temp id while a ledger entry maps to it, else the id itself.
func (e *Engine) StableKeyFor(id string) string {
	return e.ledger.StableKeyFor(id)
}

// Snapshot returns a copy of the current local collection.
func (e *Engine) Snapshot() store.Collection {
	return e.store.Snapshot()
}

// Get returns the entity with the given id from the local collection.
func (e *Engine) Get(id string) (entity.Entity, bool) {
	return e.store.Get(id)
}

// Roots returns the top-level view: parentless entities plus children
// promoted because their parent is out of this principal's scope.
func (e *Engine) Roots() []entity.Entity {
	return e.store.Roots()
}

// Children returns the entities nested under parentID.
func (e *Engine) Children(parentID string) []entity.Entity {
	return e.store.Children(parentID)
}
