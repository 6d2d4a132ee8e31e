// Package trace records what the build did and when.
//
// Spans are opened per scope: the driver (one per CLI command), passes
// (join, assemble, rename, cleanup) and codegen units (one span per worker,
// named "cgu:<unit>"). A tracer travels through the build in the context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	ctx, span := trace.Start(ctx, trace.ScopeUnit, "cgu:"+name)
//	defer span.End("")
//
// Tracers either stream events as they happen, keep the last N in a ring for
// dumping after a fatal error, or both. A heartbeat can be started to tell a
// hung build from a slow one.
package trace
