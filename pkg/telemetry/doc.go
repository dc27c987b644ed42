// Package telemetry provides structured logging (zerolog), Prometheus
// metrics and OpenTelemetry tracing for the StackPilot orchestrator.
package telemetry
