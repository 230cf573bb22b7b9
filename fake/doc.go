// File: fake/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package fake provides controllable in-memory collaborators for tests:
// a loopback transport mesh with deterministic Poll-driven delivery and
// failure injection, and a replicated-counter consensus collaborator.
package fake
