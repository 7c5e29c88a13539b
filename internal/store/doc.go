// Package store provides the SQLite-backed command history store.
//
// The store is an append-mostly set of history records keyed by their natural
// key (see history.NaturalKey). It is shared by many short-lived processes on
// one machine and reconciled with other machines through snapshots:
//
//   - Snapshot copies the store (optionally filtered by start time) into an
//     independent database file.
//   - Merge performs a set-union of a snapshot into the store inside a single
//     transaction. It never updates or deletes.
//
// # Database Configuration
//
//   - WAL mode: readers never block the writer
//   - synchronous=NORMAL
//   - busy_timeout (default 5s): bounded wait on lock contention, after which
//     the write fails with a StorageError for which IsBusy reports true
//   - write transactions BEGIN IMMEDIATE so contention surfaces at BEGIN
//
// # Schema Versions
//
//	0 - legacy layout with a plain multi-column UNIQUE constraint
//	1 - coalesced natural-key unique index
//
// Stores at version 0 are rebuilt once at Open, keeping the lowest id of each
// natural-key group.
package store
