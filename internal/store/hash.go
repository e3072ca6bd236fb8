package store

import "strconv"

// Hash derives a short cache key from an arbitrary string using the 32-bit
// h*31+c string hash, base-36 encoded. It is not collision resistant and
// must not be used for anything security sensitive; a collision only ever
// serves a stale derivative that can be recomputed.
func Hash(s string) string {
	var h int32
	for _, r := range s {
		h = h*31 + int32(r)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return strconv.FormatInt(v, 36)
}
