// Command example opens a read-only board session against a changes endpoint
// and prints the top-level view as it converges.
//
// Run a changes endpoint locally, then:
//
//	BOARDSYNC_URL=ws://localhost:8080 go run ./example
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"

	boardsync "github.com/taskboardhq/boardsync.go"
	"github.com/taskboardhq/boardsync.go/pkg/access"
	"github.com/taskboardhq/boardsync.go/pkg/logger/zero"
	"github.com/taskboardhq/boardsync.go/pkg/transport"
)

func main() {
	url := os.Getenv("BOARDSYNC_URL")
	if url == "" {
		url = "ws://localhost:8080"
	}
	workspace := os.Getenv("BOARDSYNC_WORKSPACE")
	if workspace == "" {
		workspace = "demo"
	}

	log := zero.New(zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ws := transport.NewWebSocket(transport.Config{
		BaseURL: url,
		Logger:  log,
	})
	if err := ws.Connect(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "connect:", err)
		os.Exit(1)
	}
	defer ws.Close(context.Background())

	engine, err := boardsync.Open(ctx, boardsync.Config{
		Channel: ws,
		Access: access.Context{
			PrincipalID: "example",
			Role:        access.RoleInternalUser,
			WorkspaceID: workspace,
		},
		Logger: log,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer engine.Close(context.Background())

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			roots := engine.Roots()
			fmt.Printf("--- %d top-level entities ---\n", len(roots))
			for _, e := range roots {
				fmt.Printf("%s  [%s]  %.60s\n", e.ID, e.Kind, e.Body)
				for _, c := range engine.Children(e.ID) {
					fmt.Printf("  └ %s  %.56s\n", c.ID, c.Body)
				}
			}
		}
	}
}
