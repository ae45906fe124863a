// Package store provides the shared key-value map behind Aether.
//
// This package is internal to Aether and owns every stored entry. Values are
// a closed union of two variants, an opaque string and a JSON document, and
// each entry may carry an absolute expiration time.
//
// The main components are:
//
//   - [Store]: Interface defining the read/write operations on entries
//   - [MemoryStore]: Sharded in-memory implementation of Store
//   - [Value]: Tagged union of [StringValue] and [JSONValue]
//   - [Expired]: The expiration rule shared by reads, writes and sweeps
//   - [Clock]: Source of "now" for TTL computation
//
// The store is designed for concurrent access. Keys are spread over a fixed
// number of shards, each guarded by its own read/write lock, so operations
// on unrelated keys do not contend. Expired entries are treated as absent on
// read and removed either lazily by that read or by a periodic sweep.
package store
