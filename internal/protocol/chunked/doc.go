// Package chunked implements the version 3 envelope format: a payload too
// large for a single envelope is serialised, streamed through a gzip
// compressor, and the compressed stream is cut into windows that are each
// sealed under their own ephemeral key pair and IV.
//
// # Reassembly
//
// Chunks can be fetched concurrently and may arrive in any order, but the
// compressed stream is a single ordered byte sequence, so decrypted chunks
// must reach the decompressor strictly by index. The Assembler keeps an
// index-addressed slot arena sized to the in-flight window: a chunk is
// decrypted as soon as it arrives and parked in slot index%window, and a
// cursor releases contiguous filled slots into the decompressor. Fetch
// initiation is bounded by a counting semaphore; the arena bounds how far
// ahead of the cursor a fetch may start.
//
// Any chunk failing authentication aborts the whole payload.
package chunked
