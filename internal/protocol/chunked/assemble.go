package chunked

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"healthrelay/internal/domain"
	"healthrelay/internal/protocol/envelope"
)

// DefaultConcurrency caps simultaneous chunk fetches.
const DefaultConcurrency = 5

var errTrailingData = errors.New("chunked: data after end of compressed stream")

// Fetcher returns the ciphertext of chunk index. It must be safe for
// concurrent use and free of side effects so it can be retried.
type Fetcher func(ctx context.Context, index int) ([]byte, error)

// Assembler reassembles chunked envelopes.
type Assembler struct {
	// Concurrency bounds in-flight fetches (default DefaultConcurrency).
	Concurrency int
	// Window is the number of arena slots, i.e. how far ahead of the cursor
	// a fetch may start (default 2*Concurrency, never below Concurrency).
	Window int
}

func (a *Assembler) limits() (int, int) {
	conc := a.Concurrency
	if conc <= 0 {
		conc = DefaultConcurrency
	}
	window := a.Window
	if window <= 0 {
		window = 2 * conc
	}
	if window < conc {
		window = conc
	}
	return conc, window
}

// Stream fetches, decrypts and decompresses every chunk of manifest, writing
// the original serialised payload to w in order.
func (a *Assembler) Stream(
	ctx context.Context,
	manifest []domain.ChunkMeta,
	priv *ecdh.PrivateKey,
	fetch Fetcher,
	w io.Writer,
) error {
	if len(manifest) == 0 {
		return domain.Errorf(domain.ErrMissingFields, "chunk manifest is empty")
	}
	for i, c := range manifest {
		if c.Index != i {
			return domain.Errorf(domain.ErrInvalidEnvelope, "chunk %d has index %d", i, c.Index)
		}
	}

	conc, window := a.limits()
	n := len(manifest)
	slots := newArena(window)
	sem := semaphore.NewWeighted(int64(conc))
	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() { slots.fail(context.Cause(gctx)) })
	defer stop()

	pr, pw := io.Pipe()

	// Launcher: start fetches in index order, gated by window and semaphore.
	g.Go(func() error {
		for i := 0; i < n; i++ {
			if err := slots.waitRoom(i); err != nil {
				return err
			}
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			g.Go(func() error {
				defer sem.Release(1)
				ct, err := fetch(gctx, i)
				if err != nil {
					return fmt.Errorf("chunk %d: fetch: %w", i, err)
				}
				meta := manifest[i]
				pt, err := envelope.OpenRaw(meta.EphemeralPublicKey, meta.IV, ct, priv)
				if err != nil {
					return fmt.Errorf("chunk %d: %w", i, err)
				}
				slots.put(i, pt)
				return nil
			})
		}
		return nil
	})

	// Cursor: release chunks to the decompressor strictly by index.
	g.Go(func() error {
		for i := 0; i < n; i++ {
			pt, err := slots.take(i)
			if err != nil {
				pw.CloseWithError(err)
				return err
			}
			if _, err := pw.Write(pt); err != nil {
				if errors.Is(err, io.ErrClosedPipe) {
					err = errTrailingData
				}
				return err
			}
		}
		return pw.Close()
	})

	// Decompressor.
	g.Go(func() error {
		defer pr.Close()
		zr, err := gzip.NewReader(pr)
		if err != nil {
			pr.CloseWithError(err)
			return fmt.Errorf("chunked: gzip: %w", err)
		}
		if _, err := io.Copy(w, zr); err != nil {
			pr.CloseWithError(err)
			return fmt.Errorf("chunked: gzip: %w", err)
		}
		return zr.Close()
	})

	return g.Wait()
}

// Assemble reassembles manifest and returns the payload JSON.
func (a *Assembler) Assemble(
	ctx context.Context,
	manifest []domain.ChunkMeta,
	priv *ecdh.PrivateKey,
	fetch Fetcher,
) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := a.Stream(ctx, manifest, priv, fetch, &buf); err != nil {
		return nil, err
	}
	if !json.Valid(buf.Bytes()) {
		return nil, fmt.Errorf("chunked: payload is not valid JSON")
	}
	return json.RawMessage(buf.Bytes()), nil
}

// Open reassembles a version 3 envelope.
func (a *Assembler) Open(
	ctx context.Context,
	env domain.Envelope,
	priv *ecdh.PrivateKey,
	fetch Fetcher,
) (json.RawMessage, error) {
	if env.Version != domain.VersionChunked {
		return nil, domain.Errorf(domain.ErrInvalidEnvelope, "version %d is not chunked", env.Version)
	}
	return a.Assemble(ctx, env.Chunks, priv, fetch)
}
