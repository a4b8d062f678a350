package panel

import (
	"fmt"
	"sync"
	"time"

	"vpngrid/internal/models"
)

// Factory hands out panel clients per server, caching them so the login
// session survives across calls to the same server. A cache entry is
// rebuilt when the server's credentials change.
type Factory struct {
	timeout time.Duration

	mu      sync.Mutex
	clients map[string]Client
}

func NewFactory(timeout time.Duration) *Factory {
	return &Factory{
		timeout: timeout,
		clients: make(map[string]Client),
	}
}

// ForServer returns the panel client for one server.
func (f *Factory) ForServer(srv *models.Server) Client {
	key := fmt.Sprintf("%d|%s|%s|%s|%d", srv.ID, srv.APIURL, srv.APIUsername, srv.APIPassword, srv.InboundID)

	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[key]; ok {
		return c
	}
	c := NewXUIClient(srv.APIURL, srv.APIUsername, srv.APIPassword, srv.InboundID, f.timeout)
	f.clients[key] = c
	return c
}

// Forget drops the cached client for a server, e.g. after it is deleted.
func (f *Factory) Forget(serverID uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := fmt.Sprintf("%d|", serverID)
	for key := range f.clients {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(f.clients, key)
		}
	}
}
