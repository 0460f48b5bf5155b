// Package message defines the records and wire envelopes that flow through
// journaldconcat.
//
// An EventStream is one batch of entries sharing a tag, as delivered by the
// upstream router:
//
//	{"id":"<uuid>","tag":"docker.app","entries":[{"time":"2024-05-01T10:00:00Z","record":{"message":"..."}}]}
//
// Entry times may also be given as epoch seconds (1714557600.25).
//
// ErrorEvent is the envelope published on the error subject. Kind is
// "timeout" for idle-stream flushes and "record" for per-record faults.
package message
