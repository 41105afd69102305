package transport

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/taskboardhq/boardsync.go/pkg/entity"
)

const (
	methodSubscribe   = "subscribe"
	methodUnsubscribe = "unsubscribe"
)

// request is one client-to-server RPC.
type request struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params,omitempty"`
}

// WireError is an error the server returned for a request.
type WireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *WireError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

// frame is one server-to-client message: either an RPC response (ID set) or
// a pushed change notification (Subscription set).
type frame struct {
	ID           string                     `json:"id,omitempty"`
	Result       cbor.RawMessage            `json:"result,omitempty"`
	Error        *WireError                 `json:"error,omitempty"`
	Subscription string                     `json:"subscription,omitempty"`
	Event        *entity.ChangeNotification `json:"event,omitempty"`
}
