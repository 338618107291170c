package equipment

import (
	"fmt"
	"sync"
)

// Registry maps (site-id, equipment-type) to a control function, with
// site-specific overrides taking priority over site-agnostic ("" site)
// registrations. The orchestrator constructs exactly one Registry at
// startup and registers every sub-package's ControlFunc into it — there is
// no package-level global registry (see SPEC_FULL.md §9).
type Registry struct {
	mu        sync.RWMutex
	byType    map[string]ControlFunc
	overrides map[string]ControlFunc // key: siteID + "\x00" + equipmentType
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byType:    make(map[string]ControlFunc),
		overrides: make(map[string]ControlFunc),
	}
}

// Register adds a site-agnostic control function for an equipment type.
// Registering the same type twice replaces the prior registration.
func (r *Registry) Register(equipmentType string, fn ControlFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[equipmentType] = fn
}

// RegisterSiteOverride adds a control function that applies only to one
// site's equipment of this type, taking priority over Register's
// site-agnostic entry for that (site, type) pair.
func (r *Registry) RegisterSiteOverride(siteID, equipmentType string, fn ControlFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[overrideKey(siteID, equipmentType)] = fn
}

// Resolve returns the control function for (siteID, equipmentType),
// preferring a site-specific override if one is registered.
func (r *Registry) Resolve(siteID, equipmentType string) (ControlFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if fn, ok := r.overrides[overrideKey(siteID, equipmentType)]; ok {
		return fn, true
	}
	fn, ok := r.byType[equipmentType]
	return fn, ok
}

func overrideKey(siteID, equipmentType string) string {
	return fmt.Sprintf("%s\x00%s", siteID, equipmentType)
}
