// Package postgres provides PostgreSQL implementations of the storage
// interfaces defined in internal/store: the durable job queue with its
// atomic claim semantics, conversation threads and turn logs, and the
// record store contract surface. It handles query execution and mapping
// between domain entities and database rows.
package postgres
