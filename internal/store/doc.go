// Package store keeps the history of example-suite runs in SQLite.
//
// Two tables:
//   - runs: one row per `erpsim test` invocation, with pass/fail totals
//   - cases: one row per executed case, keyed by (run_id, seq)
//
// Case rows are append-only and idempotent on (run_id, seq), so a
// re-recorded case is silently ignored. Reads are ordered deterministically:
// runs by started_at DESC, id DESC; cases by seq ASC.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
//
// Response bodies are stored as canonical JSON (see internal/canonical) so
// identical responses produce identical rows.
package store
