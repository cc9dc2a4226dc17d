package keys

import (
	"crypto/sha256"
	"encoding/hex"
)

// Derive maps a URL to its object store key: the lowercase hex SHA-256 of
// the URL bytes, split as aa/bb/rest so objects spread over 65536 prefixes.
func Derive(url string) string {
	sum := sha256.Sum256([]byte(url))
	h := hex.EncodeToString(sum[:])
	return h[0:2] + "/" + h[2:4] + "/" + h[4:]
}
