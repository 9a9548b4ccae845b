// Package audit records who changed which role, assignment or permission row.
//
// The administration service emits one Event per write through a Logger:
//
//	logger := audit.NewMultiLogger(
//		dbLogger,                          // audit_events table, searchable
//		audit.NewLogrusLogger(log),        // structured log line
//	)
//
// DBLogger stores events in the audit_events table created by the rbac
// migrations and answers Search with a Filter. Export renders search results
// as JSON, NDJSON or CSV.
package audit
