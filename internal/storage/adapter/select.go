package adapter

import (
	"errors"
	"fmt"
	"strings"

	"hellblock.ai/internal/storage/world"
)

var (
	ErrNoAdapter = errors.New("no storage adapter available")
	// ErrDeleteFailed is returned when a corrupt entry cannot be removed.
	ErrDeleteFailed = errors.New("cannot delete corrupt storage entry")
)

// Select returns the available adapter with the highest priority. Ties keep
// the order given.
func Select(adapters ...world.Adapter) (world.Adapter, error) {
	var best world.Adapter
	for _, a := range adapters {
		if a == nil || !a.Available() {
			continue
		}
		if best == nil || a.Priority() > best.Priority() {
			best = a
		}
	}
	if best == nil {
		names := make([]string, 0, len(adapters))
		for _, a := range adapters {
			if a != nil {
				names = append(names, a.Name())
			}
		}
		return nil, fmt.Errorf("%w (tried %s)", ErrNoAdapter, strings.Join(names, ","))
	}
	return best, nil
}

// ByName picks an adapter by name; "auto" or "" defers to Select.
func ByName(name string, adapters ...world.Adapter) (world.Adapter, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "auto" {
		return Select(adapters...)
	}
	for _, a := range adapters {
		if a == nil || a.Name() != name {
			continue
		}
		if !a.Available() {
			return nil, fmt.Errorf("%w: %s is not available on this host", ErrNoAdapter, name)
		}
		return a, nil
	}
	return nil, fmt.Errorf("%w: unknown backend %q", ErrNoAdapter, name)
}
