package object

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/arjunmenon/pygit/pkg/ids"
)

// HashBytes computes the raw BLAKE2b-160 hash of data and returns it as a
// lowercase hex-encoded Hash.
func HashBytes(data []byte) Hash {
	h, err := blake2b.New(ids.Size, nil)
	if err != nil {
		panic("object: blake2b-160 unavailable: " + err.Error())
	}
	h.Write(data)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}

// HashObject computes the BLAKE2b-160 of the envelope "type len\0content",
// mirroring Git's object hashing but at a 20-byte digest size.
func HashObject(objType ObjectType, data []byte) Hash {
	header := fmt.Sprintf("%s %d\x00", objType, len(data))
	h, err := blake2b.New(ids.Size, nil)
	if err != nil {
		panic("object: blake2b-160 unavailable: " + err.Error())
	}
	h.Write([]byte(header))
	h.Write(data)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}
