// Package ids defines the object id size shared across the object store,
// tree encoding, and revision resolution.
package ids

// Size is the digest length in bytes of a BLAKE2b-160 object id.
const Size = 20

// HexLen is the length of an object id's hex-encoded string form.
const HexLen = Size * 2
