// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (domain.go, frames.go, errors.go) with shared types
// and collaborator contracts. No implementation code - just contracts.
// Prevents circular imports by keeping interfaces on the consumer side.
package domain
