package resolve

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/stackpilot/stackpilot/pkg/capability"
)

// CoreCapabilities is the mandatory capability set included in every
// resolved plan, in deployment order. Identity and base networking are
// prerequisites for everything else.
var CoreCapabilities = []string{"vpc", "iam"}

// Phase is one named group of capabilities deployed together.
type Phase struct {
	// Name is the canonical phase name (a deployment domain).
	Name capability.Domain `json:"name"`

	// Capabilities are the phase members, deduplicated by ID.
	Capabilities []capability.Descriptor `json:"capabilities"`
}

// Plan is a fully resolved, phase-ordered execution plan.
type Plan struct {
	// Phases are the non-empty phase buckets in canonical order.
	Phases []Phase `json:"phases"`

	// DomainPriorityOrder is the deployment order of the domains present.
	DomainPriorityOrder []capability.Domain `json:"domain_priority_order"`

	// EstimatedDuration is the router's duration estimate for the plan.
	EstimatedDuration time.Duration `json:"estimated_duration"`

	// Parallel indicates capabilities within a phase run concurrently.
	Parallel bool `json:"parallel"`
}

// CapabilityCount returns the total number of capabilities in the plan.
func (p *Plan) CapabilityCount() int {
	n := 0
	for _, phase := range p.Phases {
		n += len(phase.Capabilities)
	}
	return n
}

// PhaseNames returns the phase names in execution order.
func (p *Plan) PhaseNames() []capability.Domain {
	names := make([]capability.Domain, len(p.Phases))
	for i, phase := range p.Phases {
		names[i] = phase.Name
	}
	return names
}

// Mapper resolves capability ID sets against the registry.
type Mapper struct {
	registry *capability.Registry
	core     []string
	logger   zerolog.Logger
}

// NewMapper creates a mapper over the given registry. A nil core selects
// CoreCapabilities.
func NewMapper(registry *capability.Registry, core []string, logger zerolog.Logger) *Mapper {
	if core == nil {
		core = CoreCapabilities
	}
	return &Mapper{
		registry: registry,
		core:     core,
		logger:   logger.With().Str("component", "resolver").Logger(),
	}
}

// Map expands capability IDs into an ordered descriptor list: the
// mandatory core set first, then the remainder ascending by priority with
// a stable tie-break on insertion order. Duplicates are removed, first
// occurrence wins. IDs with no registered descriptor are dropped.
func (m *Mapper) Map(ids []string) []capability.Descriptor {
	seen := make(map[string]bool, len(ids)+len(m.core))
	result := make([]capability.Descriptor, 0, len(ids)+len(m.core))

	for _, id := range m.core {
		desc, ok := m.registry.Get(id)
		if !ok {
			m.logger.Warn().Str("capability", id).Msg("Core capability not registered")
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		result = append(result, desc)
	}

	var rest []capability.Descriptor
	for _, id := range ids {
		if seen[id] {
			continue
		}
		desc, ok := m.registry.Get(id)
		if !ok {
			m.logger.Warn().Str("capability", id).Msg("Unknown capability dropped from plan")
			continue
		}
		seen[id] = true
		rest = append(rest, desc)
	}

	sort.SliceStable(rest, func(i, j int) bool {
		return rest[i].Priority < rest[j].Priority
	})

	return append(result, rest...)
}

// DeploymentPhases groups descriptors into the canonical phase buckets.
// Buckets keep canonical key order regardless of input order; empty
// buckets are omitted; no phase contains a duplicate capability ID.
func (m *Mapper) DeploymentPhases(descs []capability.Descriptor) []Phase {
	buckets := make(map[capability.Domain][]capability.Descriptor)
	members := make(map[string]bool, len(descs))
	var extra []capability.Domain

	for _, desc := range descs {
		if members[desc.ID] {
			continue
		}
		members[desc.ID] = true
		if _, known := buckets[desc.Domain]; !known && !isCanonical(desc.Domain) {
			extra = append(extra, desc.Domain)
		}
		buckets[desc.Domain] = append(buckets[desc.Domain], desc)
	}

	var phases []Phase
	for _, domain := range capability.DeploymentOrder {
		if caps, ok := buckets[domain]; ok {
			phases = append(phases, Phase{Name: domain, Capabilities: caps})
		}
	}
	// Non-canonical domains execute after the canonical ones, in
	// first-seen order.
	for _, domain := range extra {
		phases = append(phases, Phase{Name: domain, Capabilities: buckets[domain]})
	}

	return phases
}

func isCanonical(domain capability.Domain) bool {
	for _, d := range capability.DeploymentOrder {
		if d == domain {
			return true
		}
	}
	return false
}
