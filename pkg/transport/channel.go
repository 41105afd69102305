package transport

import boardsync "github.com/taskboardhq/boardsync.go"

// WebSocket satisfies the engine's channel contract.
var _ boardsync.Channel = (*WebSocket)(nil)
