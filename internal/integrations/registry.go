// Package integrations defines the action catalog for third-party services
// and binds a user's connected integrations into agent-callable tools.
package integrations

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sendloop/sendloop/internal/store"
)

// ActionConfig describes one operation an integration exposes.
type ActionConfig struct {
	Title       string
	Description string
	// InputSchema is a JSON Schema fragment ("object" with "properties"
	// and "required") describing the action's arguments.
	InputSchema map[string]any
	// Execute runs the action with validated args and the user's
	// connection record (credentials included).
	Execute func(ctx context.Context, args map[string]any, rec store.IntegrationRecord) (string, error)
}

// Integration is a service whose actions can be bound as tools.
type Integration interface {
	// ID is the stable integration identifier ("shopify", "woocommerce", ...).
	ID() string
	Actions() map[string]ActionConfig
}

// Registry holds the known integrations. Registration happens at startup;
// lookups are concurrent-safe afterwards.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]Integration
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Integration)}
}

// DefaultRegistry returns a registry with all built-in integrations.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(NewWooCommerce())
	r.MustRegister(NewShopify())
	r.MustRegister(NewGoogleCalendar())
	return r
}

func (r *Registry) Register(in Integration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[in.ID()]; exists {
		return fmt.Errorf("integration %q already registered", in.ID())
	}
	r.byID[in.ID()] = in
	return nil
}

func (r *Registry) MustRegister(in Integration) {
	if err := r.Register(in); err != nil {
		panic(err)
	}
}

func (r *Registry) Lookup(id string) (Integration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	in, ok := r.byID[id]
	return in, ok
}

// IDs returns registered integration ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
