// Package partialconcat joins log lines that a container runtime split into
// several records back into one record.
//
// Docker's journald and fluentd log drivers cut lines longer than 16KB into
// pieces. Every piece except the last carries a marker field (by default
// container_partial_message) set to "true". Records are grouped into streams
// by tag and an identity field (by default container_id). Within a stream,
// fragments are buffered until a record without the marker arrives; that
// record completes the sequence, and the joined text of all of them is
// emitted as one record at the completing record's time.
//
// # Flush paths
//
// A buffered sequence is flushed exactly once, by whichever comes first:
//
//   - completion: a non-partial record on the same stream
//   - timeout: the stream was idle for flush_interval; the merged record goes
//     to the timeout_label route if set, otherwise to the error output with a
//     "Timeout flush: <identity>" error
//   - shutdown: Filter.Shutdown drains every remaining stream to the normal
//     output
//
// Processor.Stop ends intake and waits for batches in flight before it
// drains. JetStream batches refused during shutdown are redelivered.
//
// The merged record keeps the first fragment's fields, replaces the text
// field with the concatenation and drops the marker.
//
// Tags matching diagnostic_tag_pattern (the collector's own fluent.* events)
// pass through without touching any stream.
//
// # Configuration
//
//	{
//	  "key": "message",
//	  "match_key": "container_partial_message",
//	  "stream_identity_key": "container_id",
//	  "flush_interval": "60s",
//	  "timeout_label": "slow",
//	  "labels": {"slow": "logs.concat.timeout"},
//	  "ports": {
//	    "inputs":  [{"name": "input", "type": "jetstream", "subject": "logs.docker.>", "stream_name": "LOGS"}],
//	    "outputs": [{"name": "output", "subject": "logs.concat"}]
//	  }
//	}
//
// flush_interval accepts seconds as a number or a duration string; zero or
// less disables the timeout sweep.
//
// # Wire format
//
// Inputs and outputs carry message.EventStream JSON. The error output
// carries message.ErrorEvent JSON with kind "record" or "timeout".
package partialconcat
