package parse

import (
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/zeebo/blake3"
)

// hashRecord returns the hex BLAKE3-256 digest of v's JSON encoding. Struct
// fields encode in declaration order, so equal records hash equally.
func hashRecord(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		// Records are plain data; a marshal failure is a programming error.
		panic("parse: hash record: " + err.Error())
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// canonicalText collapses every whitespace run to one space so formatting
// noise does not change a hash.
func canonicalText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
