// Package store provides the SQLite-backed recipient directory.
//
// One row per recipient holds its identifiers (number, ACI, PNI, username)
// and the data it owns: contact metadata, profile, profile key and profile key
// credential. Deleting a row deletes all of it.
//
// # Transactions
//
// Directory is the set of read and write primitives. It is bound either to
// the database (Store.Directory, for reads) or to a transaction
// (Store.RunInTx). The directory never commits on its own; every unit of work
// that mutates more than one row must run inside RunInTx.
//
// The pool is limited to a single connection. Code running inside RunInTx
// must use the Directory it was handed, never Store.Directory, or it will
// wait on itself.
//
// # Errors
//
//   - ErrNotFound: no row with that id
//   - ErrUniqueness: a write collided with another row's number, ACI or PNI
//   - ErrStorage: anything else the database reported
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
