// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (errors.go, fragment.go, connection.go) hold shared types and the
// contracts between the relay, the renderer and the transport adapters. No implementation code.
package domain
