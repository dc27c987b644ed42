// Package resolve expands detected capability sets into ordered
// deployment plans.
//
// The mapper prepends the mandatory core capabilities, orders the rest by
// descriptor priority, and groups the result into the canonical phase
// buckets (foundation through observability). Phases with no members are
// omitted; the remaining buckets always keep canonical order.
package resolve
