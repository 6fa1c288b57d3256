// Package storage persists reminders and guild time zones.
//
// One Store interface, several drivers selected by Config.Driver:
//   - memory:   in-process map (tests, throwaway runs)
//   - file:     key-value snapshot + journal on local disk
//   - redis:    key-value on Redis
//   - sqlite:   relational, modernc.org/sqlite
//   - postgres: relational, lib/pq
//   - mongo:    document store
//
// Every operation is atomic per record. There are no multi-record transactions.
package storage
