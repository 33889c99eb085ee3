// Package tagcache is a general-purpose caching layer between an application
// and one or more slow data sources. It caches the result of an arbitrary
// value-producing executor, invalidates entries by logical tag, and enforces
// at-most-one concurrent recomputation per key via distributed per-key locks.
//
// Components:
//   - Adapter: raw byte store with TTL and lock primitives
//     (memory, Redis, Ristretto, BigCache).
//   - Codec[V]: (de)serializes V <-> []byte (JSON, Msgpack, CBOR, Protobuf).
//   - Storage[V]: record discipline over an adapter - envelope encoding,
//     tag-version capture on write, validation and self-heal on read.
//   - Managers: caching disciplines - ReadThrough (default), WriteThrough,
//     RefreshAhead, MultiLevel (tiered, raw bytes, per-level TTL + metrics).
//   - TagStore: per-tag version epochs; touching a tag invalidates every
//     record that captured an older version.
//   - bloom.Filter: optional pre-check that short-circuits definite misses.
//
// Keys (adapter keyspace):
//
//	rec:<prefix>:<key>  - record envelopes
//	tag:<name>          - tag version epochs
//	lock:<...>          - per-key recompute locks (adapter-owned)
//
// Typical use:
//
//	cc, _ := tagcache.New[User](tagcache.Options[User]{
//	    Adapter: memory.New(),
//	    Codec:   codec.JSON[User]{},
//	})
//	u, _ := cc.Get(ctx, "u:1", loadUser, tagcache.GetOptions{Tags: []string{"users"}})
//	_ = cc.Touch(ctx, "users") // next Get recomputes
package tagcache
