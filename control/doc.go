// File: control/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package control holds process-scoped operational state: the static
// cluster table built once at startup and passed explicitly to the
// components that need it, and the Prometheus collectors for engine
// observability.
package control
