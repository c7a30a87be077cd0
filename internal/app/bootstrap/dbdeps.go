package bootstrap

import (
	"github.com/dalemusser/signup/internal/app/store"
	"github.com/dalemusser/signup/pantry/jobs"
	"github.com/dalemusser/signup/pantry/ratelimit"
	"github.com/dalemusser/signup/pantry/session"
	"github.com/dalemusser/signup/pantry/websocket"
)

// DBDeps holds the backends and long-lived workers of the service.
// ConnectDB opens the snapshot store and workers; EnsureSchema adds Pages
// and the sweeper once the rules are loaded.
type DBDeps struct {
	Snapshots session.Store
	Delayer   *jobs.Delayer
	Hub       *websocket.Hub
	Limiter   *ratelimit.KeyLimiter

	Pages   *store.Pages
	Sweeper *jobs.Periodic
}
