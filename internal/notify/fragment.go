// Package notify turns committed graph transactions into live-update
// messages. A commit observer scans each change set for registered
// fragment observers, re-renders the matched fragments under a read-only
// elevated context, and fans the results out to live subscribers through
// a hub. Delivery is best-effort per subscriber; a slow subscriber drops
// messages, it never blocks the others.
package notify

import (
	"github.com/pagegraph/pagegraph/internal/graph"
	"github.com/pagegraph/pagegraph/internal/schema"
)

// Fragment entities register an interest in entity changes. A fragment
// declares the entity type it observes, optionally a single property key,
// and the page containing it. A fragment without a page is orphaned and
// never dispatched.
const (
	TypeFragment = "Fragment"

	KeyDataType = "dataType"
	KeyDataKey  = "dataKey"
	KeyPageID   = "pageId"
)

// RegisterTypes declares the fragment type on the registry. Called once
// during startup wiring.
func RegisterTypes(reg *schema.Registry) {
	reg.MustRegister(schema.Type{
		Name: TypeFragment,
		Properties: map[string]schema.PropertyDef{
			KeyDataType: {Required: true},
			KeyDataKey:  {},
			KeyPageID:   {},
		},
	})
}

// Message is one live-update notification. Fragment-backed messages carry
// the re-rendered payload; teardown messages carry only the deleted
// entity.
type Message struct {
	Kind       graph.MutationKind `json:"kind"`
	EntityID   string             `json:"entityId"`
	EntityType string             `json:"entityType,omitempty"`
	FragmentID string             `json:"fragmentId,omitempty"`
	PageID     string             `json:"pageId,omitempty"`
	Payload    string             `json:"payload,omitempty"`
}
