package capability

import (
	"context"
	"encoding/json"
	"time"
)

// Domain classifies a capability into one of the canonical deployment
// domains. Domains double as deployment phase names.
type Domain string

const (
	// DomainFoundation covers base networking substrate (VPC, subnets).
	DomainFoundation Domain = "foundation"

	// DomainSecurity covers identity and access management.
	DomainSecurity Domain = "security"

	// DomainNetworking covers traffic routing and load balancing.
	DomainNetworking Domain = "networking"

	// DomainData covers databases and durable storage.
	DomainData Domain = "data"

	// DomainCompute covers container, VM and function runtimes.
	DomainCompute Domain = "compute"

	// DomainApplication covers application-facing services (API gateways).
	DomainApplication Domain = "application"

	// DomainObservability covers monitoring and alerting.
	DomainObservability Domain = "observability"
)

// DeploymentOrder is the canonical order in which domains are deployed.
// Phase plans and domain priority lists follow this order.
var DeploymentOrder = []Domain{
	DomainFoundation,
	DomainSecurity,
	DomainNetworking,
	DomainData,
	DomainCompute,
	DomainApplication,
	DomainObservability,
}

// Descriptor describes a known capability provider.
// Descriptors are immutable and live for the process lifetime.
type Descriptor struct {
	// ID is the unique capability identifier (e.g., "ecs", "rds").
	ID string `json:"id"`

	// Domain is the deployment domain this capability belongs to.
	Domain Domain `json:"domain"`

	// Priority orders capabilities within the resolved set; lower values
	// deploy earlier.
	Priority int `json:"priority"`

	// LoadTimeout bounds how long the engine waits for the provider to
	// become active before marking the load as timed out.
	LoadTimeout time.Duration `json:"load_timeout"`
}

// CallResult is the outcome of a single provider operation.
type CallResult struct {
	// Success indicates whether the operation succeeded.
	Success bool `json:"success"`

	// Output is provider-specific result data.
	Output json.RawMessage `json:"output,omitempty"`

	// Error is the failure message when Success is false.
	Error string `json:"error,omitempty"`
}

// Provider is the contract all capability providers implement.
// Load is called once before the first Call; both are bounded by the
// descriptor's timeouts at the call site.
type Provider interface {
	// Load prepares the provider for use (client setup, credential
	// resolution). It must be safe to call concurrently; only the first
	// successful load takes effect.
	Load(ctx context.Context) error

	// Call invokes a named operation with free-form arguments.
	Call(ctx context.Context, operation string, args map[string]any) (*CallResult, error)
}
