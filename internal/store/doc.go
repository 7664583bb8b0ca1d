// Package store defines interfaces for data persistence operations: the
// durable job queue, conversation threads, and the record store. These
// interfaces abstract the underlying storage mechanism from the application's
// core logic, allowing business rules to remain independent of specific
// database technologies.
package store
