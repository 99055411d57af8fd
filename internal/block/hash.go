package block

import (
	"crypto/sha256"
	"encoding/hex"
)

// DomainRender prefixes render digests. The version suffix allows the digest
// algorithm to change without colliding with stored hashes.
const DomainRender = "blockdoc/render/v1"

// RenderDigest computes the cache key of a render: SHA-256 over the domain
// prefix followed by interpreter, format and source, each preceded by a 0x00
// separator so field boundaries cannot shift.
//
// The digest depends only on its inputs, so callers can tell whether this exact
// combination already succeeded or failed without running the sandbox again.
func RenderDigest(interpreter string, format Format, source string) string {
	h := sha256.New()
	h.Write([]byte(DomainRender))
	for _, part := range []string{interpreter, string(format), source} {
		h.Write([]byte{0x00})
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ShortDigest returns the first 16 hex characters of SHA-256(s). Used for
// cache file and directory names.
func ShortDigest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}
