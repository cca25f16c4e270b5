// Package messaging provides the live action feed broadcaster for
// operator dashboards.
package messaging

import (
	"encoding/json"
	"sync"

	"github.com/aegisx/aegisgate-go/internal/domain/verification"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/observability/logging"
)

// ActionBroadcaster fans out audit actions to connected feed clients.
// Slow clients are dropped rather than allowed to block resolution.
type ActionBroadcaster struct {
	clients map[chan []byte]bool
	mu      sync.Mutex
	logger  *logging.ChanneledLogger
}

// NewActionBroadcaster creates an action feed broadcaster.
func NewActionBroadcaster(logger *logging.ChanneledLogger) *ActionBroadcaster {
	return &ActionBroadcaster{
		clients: make(map[chan []byte]bool),
		logger:  logger,
	}
}

// AddClient registers a new feed client and returns its delivery channel.
func (b *ActionBroadcaster) AddClient() chan []byte {
	ch := make(chan []byte, 16)

	b.mu.Lock()
	b.clients[ch] = true
	count := len(b.clients)
	b.mu.Unlock()

	b.logger.Feed().Debug("Feed client registered", "clients", count)
	return ch
}

// RemoveClient unregisters a feed client and closes its channel.
func (b *ActionBroadcaster) RemoveClient(ch chan []byte) {
	b.mu.Lock()
	if _, ok := b.clients[ch]; ok {
		delete(b.clients, ch)
		close(ch)
	}
	count := len(b.clients)
	b.mu.Unlock()

	b.logger.Feed().Debug("Feed client removed", "clients", count)
}

// Broadcast delivers an action to every connected client without blocking.
func (b *ActionBroadcaster) Broadcast(action *verification.Action) {
	payload, err := json.Marshal(action)
	if err != nil {
		b.logger.Feed().Error("Failed to encode action for feed", "error", err.Error())
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// Client is not draining; skip this message for it.
		}
	}
}

// ClientCount returns the number of connected feed clients.
func (b *ActionBroadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}
