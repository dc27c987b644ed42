// Package capability defines the capability descriptor model and the
// process-wide registry of capability providers.
//
// A capability is one infrastructure concern (compute, relational data,
// load balancing, identity, ...) exposed through a Provider. Descriptors
// are immutable and registered once at startup; provider bindings may be
// swapped for testing or simulation.
package capability
