// Package transport implements the change-notification channel over a
// WebSocket, with automatic reconnection and resubscription.
//
// The engine consumes the boardsync.Channel interface; WebSocket is its
// production implementation. The server assigns a fresh subscription id on
// every subscribe, so after a reconnect every feed carries a new id. The
// route table maps those rotating server-side ids onto the stable per-kind
// channel handed to the consumer: the channel returned by Subscribe keeps
// its identity for the life of the subscription, however many reconnects
// happen underneath it.
//
// The transport does not add delivery guarantees the server doesn't provide.
// After a reconnect, notifications sent while disconnected are gone; the
// consumer is expected to tolerate a stale snapshot until a full resync.
//
// Retry strategies are pluggable through the Retryer interface, with
// exponential backoff and fixed delay provided.
package transport
