// Package trace records structured events for the checking pipeline.
//
// Events are spans (begin/end pairs) or points, each tagged with a scope:
//
//   - ScopeDriver: one CLI invocation
//   - ScopePass: pipeline phases (load, register, validate, check)
//   - ScopeFlow: one flow of use sites
//   - ScopeSite: one use site
//
// The level decides which scopes reach the output: phase keeps driver and
// pass events, detail adds flows, debug adds sites.
//
// Tracers travel through context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopePass, "register", 0)
//	defer span.End("")
//
// Enable from the command line with
//
//	gencheck check --trace=- --trace-level=detail model.yaml
package trace
