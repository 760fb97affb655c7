package util

import (
	"hash/fnv"
	"strings"
)

// PoolFingerprint computes a 4-byte hash over the ordered slot id list. Both
// ends log it after the handshake so an operator can tell at a glance whether
// they resolve slot indices against the same list.
func PoolFingerprint(ids []string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(strings.Join(ids, "\n")))
	return h.Sum32()
}
