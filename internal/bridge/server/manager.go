package server

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/lakasli/TCP-VDA5050-bridge-server/pkg/log"
)

// Server defines the common interface for all sub-servers (mqtt, http).
type Server interface {
	Start(ctx context.Context) error
}

// Manager manages the lifecycle of all protocol servers.
type Manager struct {
	servers []Server
}

// NewManager groups servers. They are started in the given order.
func NewManager(servers ...Server) *Manager {
	return &Manager{servers: servers}
}

// Start launches all servers in parallel and waits for termination. The
// first failure cancels the others.
func (m *Manager) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, srv := range m.servers {
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	log.Info("All servers starting...")
	return g.Wait()
}
