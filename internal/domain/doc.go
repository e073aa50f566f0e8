// Package domain contains the core business entities of the execution
// queue: tasks, queue entries, dependency edges, dispatch log records, and
// archive snapshots. It represents the heart of the system, independent of
// any specific infrastructure or delivery mechanism.
package domain
