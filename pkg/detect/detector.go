package detect

import (
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/stackpilot/stackpilot/pkg/capability"
)

// InferenceRule adds prerequisite capabilities when any of its triggers
// is present in the detected set.
type InferenceRule struct {
	// Triggers are capability IDs that activate the rule. An empty
	// trigger list is the wildcard: the rule applies to every non-empty
	// detection.
	Triggers []string

	// Requires are the capability IDs the rule adds.
	Requires []string
}

// DefaultInferenceRules returns the fixed dependency-inference table.
// The wildcard rule reflects that every request needs the baseline
// identity/access capability.
func DefaultInferenceRules() []InferenceRule {
	return []InferenceRule{
		{Triggers: nil, Requires: []string{"iam"}},
		{Triggers: []string{"ecs", "ec2", "lambda"}, Requires: []string{"vpc", "iam"}},
		{Triggers: []string{"rds", "dynamodb"}, Requires: []string{"vpc"}},
		{Triggers: []string{"elb", "apigateway"}, Requires: []string{"vpc"}},
	}
}

// Detector scores free-text intents against a keyword table.
// The table is swappable at runtime (see Watcher); swaps are atomic under
// the detector's lock.
type Detector struct {
	mu       sync.RWMutex
	table    *Table
	rules    []InferenceRule
	registry *capability.Registry
	logger   zerolog.Logger
}

// NewDetector creates a detector over a keyword table and the capability
// registry. A nil table selects the builtin table; nil rules select the
// default inference table.
func NewDetector(table *Table, rules []InferenceRule, registry *capability.Registry, logger zerolog.Logger) *Detector {
	if table == nil {
		table = BuiltinTable()
	}
	if rules == nil {
		rules = DefaultInferenceRules()
	}
	return &Detector{
		table:    table,
		rules:    rules,
		registry: registry,
		logger:   logger.With().Str("component", "detector").Logger(),
	}
}

// SwapTable atomically replaces the keyword table.
func (d *Detector) SwapTable(table *Table) error {
	if err := table.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	d.table = table
	d.mu.Unlock()

	d.logger.Info().
		Int("capabilities", len(table.Capabilities)).
		Int("patterns", len(table.Patterns)).
		Msg("Keyword table swapped")
	return nil
}

// Detect scores the intent against every known capability and pattern.
// Confidence is matched/total keywords; entries with zero matches are
// omitted. Empty or whitespace-only input yields an empty Detection.
func (d *Detector) Detect(text string) Detection {
	normalized := normalize(text)
	if normalized == "" {
		return Detection{}
	}

	d.mu.RLock()
	table := d.table
	d.mu.RUnlock()

	var det Detection
	for _, name := range table.capabilityNames() {
		keywords := table.Capabilities[name]
		matched := matchKeywords(normalized, keywords)
		if len(matched) == 0 {
			continue
		}

		cap := Capability{
			Name:            name,
			Confidence:      float64(len(matched)) / float64(len(keywords)),
			MatchedKeywords: matched,
		}
		if desc, ok := d.registry.Get(name); ok {
			cap.Domain = desc.Domain
		}
		det.Capabilities = append(det.Capabilities, cap)
	}

	for _, name := range table.patternNames() {
		keywords := table.Patterns[name]
		matched := matchKeywords(normalized, keywords)
		if len(matched) == 0 {
			continue
		}
		det.Patterns = append(det.Patterns, Pattern{
			Name:            name,
			Confidence:      float64(len(matched)) / float64(len(keywords)),
			MatchedKeywords: matched,
		})
	}

	sort.SliceStable(det.Capabilities, func(i, j int) bool {
		if det.Capabilities[i].Confidence != det.Capabilities[j].Confidence {
			return det.Capabilities[i].Confidence > det.Capabilities[j].Confidence
		}
		return det.Capabilities[i].Name < det.Capabilities[j].Name
	})
	sort.SliceStable(det.Patterns, func(i, j int) bool {
		if det.Patterns[i].Confidence != det.Patterns[j].Confidence {
			return det.Patterns[i].Confidence > det.Patterns[j].Confidence
		}
		return det.Patterns[i].Name < det.Patterns[j].Name
	})

	return det
}

// InferDependencies returns the extra capability IDs implied by the
// detected set, in rule order, deduplicated, excluding IDs already
// detected. An empty detection infers nothing.
func (d *Detector) InferDependencies(caps []Capability) []string {
	if len(caps) == 0 {
		return nil
	}

	detected := make(map[string]bool, len(caps))
	for _, c := range caps {
		detected[c.Name] = true
	}

	seen := make(map[string]bool)
	var inferred []string
	for _, rule := range d.rules {
		if !ruleApplies(rule, detected) {
			continue
		}
		for _, id := range rule.Requires {
			if detected[id] || seen[id] {
				continue
			}
			seen[id] = true
			inferred = append(inferred, id)
		}
	}

	return inferred
}

// DomainPriority orders the domains of the detected capabilities by the
// canonical deployment order; domains not in the canonical list are
// appended in first-seen order.
func (d *Detector) DomainPriority(caps []Capability) []capability.Domain {
	present := make(map[capability.Domain]bool)
	var firstSeen []capability.Domain
	for _, c := range caps {
		if c.Domain == "" || present[c.Domain] {
			continue
		}
		present[c.Domain] = true
		firstSeen = append(firstSeen, c.Domain)
	}

	canonical := make(map[capability.Domain]bool)
	var ordered []capability.Domain
	for _, domain := range capability.DeploymentOrder {
		canonical[domain] = true
		if present[domain] {
			ordered = append(ordered, domain)
		}
	}
	for _, domain := range firstSeen {
		if !canonical[domain] {
			ordered = append(ordered, domain)
		}
	}

	return ordered
}

func ruleApplies(rule InferenceRule, detected map[string]bool) bool {
	if len(rule.Triggers) == 0 {
		return true
	}
	for _, id := range rule.Triggers {
		if detected[id] {
			return true
		}
	}
	return false
}

func matchKeywords(normalized string, keywords []string) []string {
	var matched []string
	for _, kw := range keywords {
		if strings.Contains(normalized, strings.ToLower(kw)) {
			matched = append(matched, kw)
		}
	}
	return matched
}

// normalize lowercases and collapses whitespace so cache keys and keyword
// matching are insensitive to formatting.
func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Normalize exposes intent normalization for cache-key computation.
func Normalize(text string) string {
	return normalize(text)
}
