// Package keys builds cache keys for decoded index blocks.
package keys

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const (
	blockNS = "blk"
	// maxIDLen caps the readable id part; the id hash keeps keys distinct.
	maxIDLen = 96
)

// Block keys one decoded block of an index. The block checksum is part of
// the key, so a rebuilt index never reads a stale entry. The raw index id
// is hashed as well because sanitizing may fold distinct ids together.
func Block(indexID string, block uint32, sum uint64) string {
	id := strings.TrimSpace(indexID)
	return fmt.Sprintf("%s%d:s=%016x:i=%016x", Prefix(id), block, sum, xxhash.Sum64String(id))
}

// Prefix matches every block key of one index, for SCAN-style purges.
func Prefix(indexID string) string {
	return blockNS + ":" + readableID(strings.TrimSpace(indexID)) + ":"
}

// readableID keeps ASCII letters, digits and "_-." and folds runs of
// anything else into a single '-' (whitespace into '_').
func readableID(s string) string {
	var b strings.Builder
	b.Grow(min(len(s), maxIDLen))
	var prev byte
	for _, r := range s {
		if b.Len() == maxIDLen {
			break
		}
		var c byte
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			c = '_'
		case r < 0x80 && (isAlnum(byte(r)) || r == '_' || r == '-' || r == '.'):
			c = byte(r)
		default:
			c = '-'
		}
		if (c == '_' || c == '-') && c == prev {
			continue
		}
		b.WriteByte(c)
		prev = c
	}
	return b.String()
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
