// Package diag defines the diagnostic model shared by all analysis phases.
//
// Diagnostic is the central record: a Severity, a compact numeric Code with a
// stable string form (codes.go), a short Message, the Primary position token
// supplied by the front end, and the rendered Expected / Actual types and the
// template Param the finding concerns.
//
// Phases emit through a Reporter, usually a BagReporter over a Bag. A Bag keeps
// emission order; the checker's output ordering (registration order, then use
// sites in flow order, then declared-parameter order) is therefore preserved
// without any sorting.
//
// Package diag performs no IO. Rendering lives in internal/diagfmt; the short
// one-line form used by golden files lives here so tests of every phase can use
// it.
package diag
