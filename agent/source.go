package agent

import (
	"encoding/json"

	ai "github.com/spetersoncode/toolflow"
	"github.com/spetersoncode/toolflow/capability"
)

// Source supplies the capabilities a Coordinator can invoke. Create one
// with FromList, FromCatalog or FromBundle.
type Source interface {
	source()
}

type listSource []ai.Capability

func (listSource) source() {}

type catalogSource struct {
	catalog *capability.Catalog
}

func (catalogSource) source() {}

// Trigger describes an event an integration can fire (for example a new
// message in a channel). Triggers are listed, not run.
type Trigger struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Piece       string          `json:"piece,omitempty"`
	Props       json.RawMessage `json:"props,omitempty"`
}

// Bundle is what integration loaders produce: capabilities plus the
// triggers that accompany them, keyed by name.
type Bundle struct {
	Capabilities []ai.Capability
	Triggers     map[string]Trigger
}

func (Bundle) source() {}

// FromList uses caps as the capability set. Later duplicates replace
// earlier ones.
func FromList(caps ...ai.Capability) Source {
	return listSource(caps)
}

// FromCatalog shares an existing catalog. Capabilities registered on it
// later become visible to the coordinator.
func FromCatalog(c *capability.Catalog) Source {
	return catalogSource{catalog: c}
}

// FromBundle uses the capabilities and triggers of a loader bundle.
func FromBundle(b Bundle) Source {
	return b
}
