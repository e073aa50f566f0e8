// Package api implements the admin HTTP surface of the dispatch service:
// queue entry state transitions, manual dispatch, executor runs, queue
// maintenance, and statistics. All routes are tenant-scoped through the
// JWT middleware; handlers never accept a tenant ID from the request body.
package api
