// Package detect classifies free-text infrastructure intents into
// capabilities and architectural patterns.
//
// Detection is data-driven: a keyword table maps capability and pattern
// names to trigger keywords, and confidence is the ratio of matched to
// total keywords. Tables can be replaced at runtime from YAML files with
// hot reload, keeping the scoring contract fixed while the source weights
// stay swappable.
package detect
