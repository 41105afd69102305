// Package zero adapts zerolog to the logger.Logger interface, for
// applications that already carry a zerolog.Logger.
package zero

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/taskboardhq/boardsync.go/pkg/logger"
)

// Handler writes Logger calls through a zerolog.Logger.
type Handler struct {
	logger zerolog.Logger
}

var _ logger.Logger = (*Handler)(nil)

// New returns a Handler writing through l.
func New(l zerolog.Logger) *Handler {
	return &Handler{logger: l}
}

func (h *Handler) Error(msg string, args ...any) {
	emit(h.logger.Error(), msg, args)
}

func (h *Handler) Warn(msg string, args ...any) {
	emit(h.logger.Warn(), msg, args)
}

func (h *Handler) Info(msg string, args ...any) {
	emit(h.logger.Info(), msg, args)
}

func (h *Handler) Debug(msg string, args ...any) {
	emit(h.logger.Debug(), msg, args)
}

// emit applies alternating key/value pairs to the event. A trailing value
// without a key is logged under "arg", matching slog's tolerance for
// malformed pairs rather than panicking in a logging path.
func emit(ev *zerolog.Event, msg string, args []any) {
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			ev = ev.Interface("arg", args[i])
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		ev = ev.Interface(key, args[i+1])
	}
	ev.Msg(msg)
}
