// Package store defines the persistence interfaces for the execution
// queue and its supporting entities, plus shared error types and the
// transaction helper used by all implementations.
package store
