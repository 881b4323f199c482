package sharedread

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/go-notify-nosql/internal/domain"
)

// DefaultFamily serves blank and unknown category names.
const DefaultFamily = "restaurant"

// Factory resolves a strategy from a category name or alias. It is built once
// at startup and shared; Register may be called at any time.
type Factory struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	fallback   Strategy
	log        *zap.Logger
}

// NewFactory registers the built-in families and their aliases.
func NewFactory(store readStore, log *zap.Logger) *Factory {
	restaurant := NewGroupStrategy("restaurant", domain.CategoryRestaurant, store, log)
	agency := NewGroupStrategy("agency", domain.CategoryAgency, store, log)
	customer := NewIndividualStrategy("customer", domain.CategoryCustomer, store, log)
	admin := NewIndividualStrategy("admin", domain.CategoryAdmin, store, log)

	f := &Factory{strategies: map[string]Strategy{}, fallback: restaurant, log: log}
	for _, name := range []string{"restaurant", "restaurant-staff", "restaurant-user", "restaurant-hub", "ruser", "ruserhub"} {
		f.strategies[name] = restaurant
	}
	for _, name := range []string{"agency", "agency-staff", "agency-user", "agency-hub"} {
		f.strategies[name] = agency
	}
	f.strategies["customer"] = customer
	f.strategies["admin"] = admin
	return f
}

// NormalizeName lowercases, trims and maps "_" to "-".
func NormalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
}

// Register adds or replaces the strategy for name.
func (f *Factory) Register(name string, s Strategy) error {
	key := NormalizeName(name)
	if key == "" {
		return fmt.Errorf("strategy name is empty: %w", domain.ErrValidation)
	}
	if s == nil {
		return fmt.Errorf("strategy for %q is nil: %w", name, domain.ErrValidation)
	}
	f.mu.Lock()
	f.strategies[key] = s
	f.mu.Unlock()
	f.log.Info("shared read strategy registered", zap.String("name", key))
	return nil
}

// Lookup returns the strategy registered for name without falling back.
func (f *Factory) Lookup(name string) (Strategy, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.strategies[NormalizeName(name)]
	return s, ok
}

// Get returns the strategy for name. Blank or unknown names resolve to the
// default family with a warning.
func (f *Factory) Get(name string) Strategy {
	if s, ok := f.Lookup(name); ok {
		return s
	}
	f.log.Warn("unknown notification category, using default strategy",
		zap.String("category", name),
		zap.String("default", DefaultFamily))
	return f.fallback
}

// Names lists every registered name.
func (f *Factory) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.strategies))
	for k := range f.strategies {
		out = append(out, k)
	}
	return out
}
