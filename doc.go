// Package journaldconcat rejoins container log lines that Docker split into
// partial messages before handing them to a log collector.
//
// Docker's journald and fluentd log drivers cut any line longer than 16KB
// into several records and mark every piece but the last with
// container_partial_message=true. journaldconcat consumes those records from
// NATS, buffers the pieces of each container stream and publishes one merged
// record per original line.
//
// # Layout
//
//   - processor/partial_concat: the filter (identity, classification,
//     buffering, merge, timeout sweep, shutdown drain) and its NATS component
//   - component, componentregistry: component contracts and registration
//   - config: layered JSON/YAML configuration with environment overrides
//   - natsclient: NATS and JetStream connection management
//   - message: EventStream, Entry and ErrorEvent wire types
//   - metric, health: Prometheus metrics and the /health endpoint
//   - errors, pkg/retry: classified errors and backoff
//   - cmd/journaldconcat: the daemon
//
// # Data flow
//
//	logs.docker.> --(EventStream)--> partial_concat --> logs.concat
//	                                       |
//	                                       +--> logs.concat.error (ErrorEvent)
//	                                       +--> timeout label subject
//
// See processor/partial_concat for flush semantics and configuration.
package journaldconcat
