package crypto

import "healthrelay/internal/util/memzero"

// Wipe zeroes the provided buffer. This is best-effort; Go may have copied
// the data elsewhere.
func Wipe(b []byte) { memzero.Zero(b) }
