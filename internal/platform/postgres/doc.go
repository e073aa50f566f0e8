// Package postgres provides PostgreSQL implementations of the store
// interfaces defined in the store package. All implementations work with
// either a database connection or a transaction through store.DBTX.
package postgres
