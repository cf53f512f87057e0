// Package core provides the business logic of the thermochronology paper
// extraction pipeline.
//
// It holds all domain logic independent of any transport: the session state
// machine, the analyze, extract and load stages, CSV validation against the
// EarthBank table mappings, and FAIR scoring. Web handlers, CLI tools and
// tests drive it through [Service].
//
// # Sessions
//
// An [ExtractionSession] moves through
//
//	uploaded -> analyzing -> analyzed -> extracting -> extracted -> loading -> loaded
//
// with any in-progress state able to fail. A stage begins with a
// compare-and-swap on the stored state, so two concurrent requests for the
// same stage cannot both run it; the loser gets [ErrConflict]. A failed
// session is returned to its last good state with [Service.Reset].
//
// # Stages
//
//  1. [Service.Analyze] sends the paper text to the analysis service and
//     renders the paper index, table index and plain text artifacts.
//  2. [Service.ExtractTables] transcribes detected tables to CSV, retrying
//     tables that fail the structural quality checks, then validates them.
//  3. [Service.Load] builds a dataset from the session's artifacts, scores it
//     with [ScoreFAIR] and writes the reports.
//
// Artifacts are written to a staging prefix first and published only after
// the stage's store update commits; a failed stage discards its staging.
//
// # Table Mappings
//
// Canonical EarthBank schemas are registered at init time using [Register]
// (see the tables subpackage). [ValidateCSV] checks an extracted table
// against one; [DetectMapping] picks one from headers alone.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a code for support reference:
//
//   - SES001-SES004: Session state errors (transition, conflict, not found)
//   - VAL001-VAL006: Validation errors (columns, numbers, ranges, formats)
//   - EXT001-EXT005: Analysis service and PDF errors
//   - DB001-DB010: Database errors
//   - STO001-STO002: Object storage errors
//
// # Audit Logging
//
// Every transition and artifact move is recorded in the audit trail with a
// severity level:
//
//   - Low: Artifact staging and publish
//   - Medium: Session creation, stage begin and completion, datasets
//   - High: Stage failures, discarded staging, sweeps
//   - Critical: Session resets
package core
