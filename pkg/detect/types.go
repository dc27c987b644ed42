package detect

import "github.com/stackpilot/stackpilot/pkg/capability"

// Capability is a capability detected in an intent, with the match
// confidence and the keywords that triggered it. Ephemeral, per request.
type Capability struct {
	// Name is the capability ID (matches a registry descriptor).
	Name string `json:"name"`

	// Confidence is matchedKeywords/totalKeywords for this capability,
	// always in (0, 1].
	Confidence float64 `json:"confidence"`

	// MatchedKeywords lists the keywords found in the intent.
	MatchedKeywords []string `json:"matched_keywords"`

	// Domain is the deployment domain from the registry descriptor.
	Domain capability.Domain `json:"domain"`
}

// Pattern is an architectural pattern detected in an intent.
type Pattern struct {
	// Name is the pattern name (e.g., "serverless").
	Name string `json:"name"`

	// Confidence is matchedKeywords/totalKeywords for this pattern.
	Confidence float64 `json:"confidence"`

	// MatchedKeywords lists the keywords found in the intent.
	MatchedKeywords []string `json:"matched_keywords"`
}

// Detection is the combined result of one detection pass.
// An empty Detection means "no detection", never a zero-confidence one.
type Detection struct {
	// Capabilities are the detected capabilities, ordered by descending
	// confidence with a stable name tie-break.
	Capabilities []Capability `json:"capabilities"`

	// Patterns are the detected architectural patterns, same ordering.
	Patterns []Pattern `json:"patterns"`
}

// Empty reports whether nothing was detected.
func (d Detection) Empty() bool {
	return len(d.Capabilities) == 0 && len(d.Patterns) == 0
}

// CapabilityNames returns the detected capability IDs in order.
func (d Detection) CapabilityNames() []string {
	names := make([]string, len(d.Capabilities))
	for i, c := range d.Capabilities {
		names[i] = c.Name
	}
	return names
}
