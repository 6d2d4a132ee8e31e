// Package trans tracks the backend state of a crate's codegen units from
// creation to the final crate-level package handed to the linker.
//
// A ModuleTranslation is one unit in flight. Its source is either Reused (a
// work product from a previous build, no native state) or Built (a
// backend.Handle it owns exclusively). IntoCompiledModule consumes the unit
// into a CompiledModule, a plain value that workers can return across
// goroutines; Close is the abandonment path. Either way a Built handle is
// disposed exactly once.
//
// OngoingCrateTranslation carries everything crate-scoped that is known
// before codegen starts plus a one-shot result slot. The scheduler fills the
// slot once every unit finished; Join consumes the handle, runs the
// finalisation step and returns the CrateTranslation.
//
// Every failure this package can detect itself is fatal and raised through
// diag.Abort.
package trans
