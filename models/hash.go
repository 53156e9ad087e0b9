package models

import (
	"strconv"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// Hash is the base58 form of a transaction's blake2b-256 content digest.
type Hash string

// ContentHash digests the immutable fields of a transaction. History is not
// part of it, so a reissue of the same id made at another tick or on another
// parent hashes differently.
func ContentHash(id, tick, origin int, parents []Hash) Hash {
	buf := make([]byte, 0, 48*len(parents)+32)
	for _, p := range parents {
		buf = append(buf, p...)
		buf = append(buf, '|')
	}
	buf = strconv.AppendInt(buf, int64(id), 10)
	buf = append(buf, '|')
	buf = strconv.AppendInt(buf, int64(tick), 10)
	buf = append(buf, '|')
	buf = strconv.AppendInt(buf, int64(origin), 10)

	sum := blake2b.Sum256(buf)
	return Hash(base58.Encode(sum[:]))
}

// Short returns a prefix suitable for log lines.
func (h Hash) Short() string {
	if len(h) <= 8 {
		return string(h)
	}
	return string(h[:8])
}
