// Package domain contains the core business entities, value objects, and
// domain logic of the agent subsystem: jobs and their lifecycle state
// machine, conversation threads and slot-filling state, records, and the
// typed per-intent payloads workers execute. It is independent of any
// specific infrastructure or delivery mechanism.
package domain
