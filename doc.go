// The [boardsync] package implements the client-resident reconciliation
// engine of a hosted task-board product.
//
// # What it does
//
// A board client holds an in-memory collection of work items (tasks and
// templates) that must track a server pushing an unordered, partial,
// at-least-once stream of change notifications, while local writes are shown
// optimistically before the server confirms them. This package is the one
// place where ordering, idempotence, partial payloads and identity stability
// actually matter; everything around it is plain request/response CRUD and
// lives elsewhere.
//
// # Engine
//
// [Open] subscribes an [Engine] to the change feeds of a [Channel] and starts
// a single reconciliation loop; [Engine.Close] tears both down. One loop
// processes every remote notification and every local write run-to-completion,
// so the local collection is never observed half-updated and no locking is
// needed beyond the store's reader guard.
//
// Each notification is reduced by the pure [Reduce] function against the
// current collection, the session's [access.Context] and the resolved
// client-company directory. The reducer applies the visibility transition
// table: entities entering the principal's view are merged in, entities
// leaving it are removed, soft deletes always remove, and everything else is
// an in-place merge that is idempotent under at-least-once delivery.
//
// # Partial payloads
//
// Notifications elide large unchanged fields. [entity.PartialEntity]
// preserves the distinction between an absent key and a null value, and
// [merge.Merge] overwrites exactly the keys that arrived. Signed resource
// references inside bodies are stabilized against the previous body so that
// signature rotation alone never makes a body compare unequal.
//
// # Optimistic writes
//
// [Engine.CreateTask] and [Engine.CreateTemplate] insert a locally keyed
// entity immediately and issue the write through the configured [WriteAPI].
// The [ledger.Ledger] maps the temporary id to the server id once confirmed,
// and [Engine.StableKeyFor] keeps the render identity on the temporary id
// until the application prunes the entry.
//
// # Transport
//
// The engine only consumes the [Channel] interface. The
// [github.com/taskboardhq/boardsync.go/pkg/transport] package provides a
// websocket implementation with automatic reconnection and resubscription;
// per-kind channels keep their identity across reconnects.
package boardsync
