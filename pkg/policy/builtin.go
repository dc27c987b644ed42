package policy

// GetBuiltinPolicies returns all built-in safety policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		destructiveIntentPolicy(),
		securityWeakeningPolicy(),
		broadScopePolicy(),
	}
}

// destructiveIntentPolicy blocks intents that ask for data or
// infrastructure destruction.
func destructiveIntentPolicy() Policy {
	return Policy{
		Name:        "destructive-intent",
		Description: "Blocks intents that would destroy infrastructure or data",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"safety", "destructive"},
		Rego: `package stackpilot.safety.destructive

import rego.v1

destructive_phrases := [
	"delete all",
	"destroy",
	"drop database",
	"drop table",
	"terminate all",
	"wipe",
	"tear down",
	"remove everything",
]

deny contains violation if {
	some phrase in destructive_phrases
	contains(lower(input.intent), phrase)
	violation := {
		"message": sprintf("intent contains destructive phrase %q", [phrase]),
		"severity": "critical",
	}
}
`,
	}
}

// securityWeakeningPolicy blocks intents that weaken the security posture.
func securityWeakeningPolicy() Policy {
	return Policy{
		Name:        "security-weakening",
		Description: "Blocks intents that disable security controls or open access broadly",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"safety", "security"},
		Rego: `package stackpilot.safety.security

import rego.v1

weakening_phrases := [
	"disable security",
	"disable encryption",
	"open all ports",
	"allow 0.0.0.0/0",
	"public access to",
	"disable mfa",
]

deny contains violation if {
	some phrase in weakening_phrases
	contains(lower(input.intent), phrase)
	violation := {
		"message": sprintf("intent weakens security posture: %q", [phrase]),
		"severity": "error",
	}
}
`,
	}
}

// broadScopePolicy warns on intents with production-wide blast radius.
// Warnings never block; they surface in the verdict rationale only when
// no blocking violation exists.
func broadScopePolicy() Policy {
	return Policy{
		Name:        "broad-scope",
		Description: "Warns on intents that touch every environment or region at once",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"safety", "scope"},
		Rego: `package stackpilot.safety.scope

import rego.v1

broad_phrases := [
	"all regions",
	"all environments",
	"every account",
]

deny contains violation if {
	some phrase in broad_phrases
	contains(lower(input.intent), phrase)
	violation := {
		"message": sprintf("intent has a broad blast radius: %q", [phrase]),
		"severity": "warning",
	}
}
`,
	}
}
