// Package capability provides the catalog of capabilities available to an
// agent, plus helpers for building capabilities from typed Go functions.
package capability

import (
	"log/slog"
	"slices"
	"strings"
	"sync"

	ai "github.com/spetersoncode/toolflow"
)

// Catalog holds capabilities keyed by name, in registration order.
// It is safe for concurrent use.
type Catalog struct {
	mu     sync.RWMutex
	order  []string
	byName map[string]ai.Capability
	logger *slog.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the logger used to report rejected registrations.
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) {
		c.logger = l
	}
}

// NewCatalog creates a catalog holding caps.
func NewCatalog(caps []ai.Capability, opts ...Option) *Catalog {
	c := &Catalog{
		byName: make(map[string]ai.Capability),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Register(caps...)
	return c
}

// Register adds capabilities to the catalog. A capability whose name is
// already registered replaces the old one but keeps its position.
// Capabilities without a name or whose Parameters are not a JSON object
// are skipped with a warning.
func (c *Catalog) Register(caps ...ai.Capability) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, capability := range caps {
		if capability.Name == "" {
			c.logger.Warn("capability: skipping capability without a name",
				"description", capability.Description,
				"piece", capability.Piece)
			continue
		}
		if !ai.ValidParameters(capability.Parameters) {
			c.logger.Warn("capability: skipping capability with malformed parameters",
				"capability", capability.Name,
				"piece", capability.Piece)
			continue
		}
		if _, exists := c.byName[capability.Name]; !exists {
			c.order = append(c.order, capability.Name)
		}
		c.byName[capability.Name] = capability
	}
}

// Unregister removes a capability. It is a no-op if name is not registered.
func (c *Catalog) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byName[name]; !ok {
		return
	}
	delete(c.byName, name)
	c.order = slices.DeleteFunc(c.order, func(n string) bool { return n == name })
}

// FindByName returns the capability registered under name.
func (c *Catalog) FindByName(name string) (ai.Capability, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	capability, ok := c.byName[name]
	return capability, ok
}

// List returns all capabilities in registration order.
func (c *Catalog) List() []ai.Capability {
	return c.Select(nil)
}

// Select returns the capabilities for which keep returns true, in
// registration order. A nil keep selects everything.
func (c *Catalog) Select(keep func(ai.Capability) bool) []ai.Capability {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]ai.Capability, 0, len(c.order))
	for _, name := range c.order {
		capability := c.byName[name]
		if keep == nil || keep(capability) {
			out = append(out, capability)
		}
	}
	return out
}

// Search returns capabilities whose name or description contains query,
// ignoring case.
func (c *Catalog) Search(query string) []ai.Capability {
	q := strings.ToLower(query)
	return c.Select(func(capability ai.Capability) bool {
		return strings.Contains(strings.ToLower(capability.Name), q) ||
			strings.Contains(strings.ToLower(capability.Description), q)
	})
}

// FindByPiece returns the capabilities belonging to piece.
func (c *Catalog) FindByPiece(piece string) []ai.Capability {
	return c.Select(func(capability ai.Capability) bool {
		return capability.Piece == piece
	})
}

// Producing returns the capabilities that declare field as an output.
func (c *Catalog) Producing(field string) []ai.Capability {
	return c.Select(func(capability ai.Capability) bool {
		return capability.Produces(field)
	})
}

// Metadata returns the serializable description of every capability.
func (c *Catalog) Metadata() []ai.Metadata {
	caps := c.List()
	out := make([]ai.Metadata, len(caps))
	for i, capability := range caps {
		out[i] = capability.Metadata()
	}
	return out
}

// Names returns capability names in registration order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.order)
}

// Len returns the number of registered capabilities.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}
