// Package cache implements the two-tier image cache that sits between the
// grid presentation layer and the network. MemoryStore keeps decoded images
// in a capacity-bounded LRU; DiskStore persists the encoded bytes under
// CacheDir/<digest[0:2]>/<digest> with safe semantics (temp file + rename).
// Coordinator sequences memory → disk → network lookups and writes fresh
// images through to both tiers, de-duplicating concurrent fetches per key.
// Every cache-internal failure degrades to a miss so the worst case is an
// extra network fetch.
package cache
