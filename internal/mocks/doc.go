// Package mocks provides in-memory implementations of the store
// interfaces for service-level tests. Each mock keeps its data in maps
// and supports per-method function overrides for error injection.
package mocks
