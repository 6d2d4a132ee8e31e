// Package diag defines the diagnostic model of the codegen orchestration layer.
//
// # Purpose
//
//   - Register every condition the layer can report under a stable numeric Code
//     with a short title, so failures surface as named diagnostics rather than
//     raw errors.
//   - Collect non-fatal findings (stale work products, unreadable cache entries)
//     in a Bag that workers share.
//   - Model the abort protocol for conditions that leave the build in an
//     untrustworthy state.
//
// # Fatal diagnostics
//
// Abort panics with a *Fatal value. Fatal conditions are broken caller
// contracts (joining before completion, writing the result slot twice,
// a translation unit without a source) and build-environment failures that
// have no partial progress to keep (native disposal, the executable object
// rename, the external assembler). The CLI recovers *Fatal at the very top,
// prints the diagnostic and exits with ExitCodeFatal; nothing in between is
// expected to recover it. Tests observe aborts with Catch.
//
// # Code families
//
//   - TRN: translation units, the join protocol and output finalisation.
//   - WRK: the work-product store.
//   - JOB: concurrency tokens.
package diag
