// Package capture defines the core types of the capture pipeline (targets,
// outcomes, artifacts), the interfaces every subsystem plugs into, and the
// Executor that drives one browser session through a single capture.
package capture
