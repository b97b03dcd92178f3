// Package cache keeps synthesized chunk audio so that re-running a document,
// or resuming one, does not call the engine again for text it has already
// spoken with the same voice and speed. Entries live in an in-memory LRU and
// in a zstd-compressed directory that survives restarts.
package cache
