// Package store persists named pipelines.
//
// A Store maps a unique name to a serialized pipeline. Two implementations are
// provided:
//
//   - MemoryStore keeps deep copies in memory and is meant for tests and
//     short-lived tools.
//   - SQLStore keeps JSON documents in an SQLite database through the pure Go
//     modernc.org/sqlite driver.
//
// Stores never rebuild pipelines themselves. Loaded documents are handed to
// stagepipe.Deserialize, which performs the installed and parameter checks
// against the current registry.
package store
