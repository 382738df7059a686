package chunked

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"healthrelay/internal/crypto"
	"healthrelay/internal/domain"
	"healthrelay/internal/protocol/envelope"
)

const (
	// DefaultChunkSize is the size of each compressed window.
	DefaultChunkSize = 1 << 20
	// DefaultSliceSize is the size of plaintext slices fed to the compressor.
	DefaultSliceSize = 64 << 10
)

// Sink receives each sealed chunk in index order. Returning an error stops encoding.
type Sink func(ctx context.Context, meta domain.ChunkMeta, ciphertext []byte) error

// Encoder produces chunk manifests.
type Encoder struct {
	ChunkSize int
	SliceSize int
}

// Encode serialises payload as JSON and streams it through EncodeReader.
func (e *Encoder) Encode(
	ctx context.Context,
	payload any,
	recipient domain.JWK,
	sink Sink,
) ([]domain.ChunkMeta, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("chunked: marshal payload: %w", err)
	}
	return e.EncodeReader(ctx, bytes.NewReader(raw), recipient, sink)
}

// EncodeReader compresses the serialised payload read from r and seals each
// ChunkSize window of compressed output for recipient. Chunks are handed to
// sink as soon as they are sealed; the returned manifest is ordered by index.
func (e *Encoder) EncodeReader(
	ctx context.Context,
	r io.Reader,
	recipient domain.JWK,
	sink Sink,
) ([]domain.ChunkMeta, error) {
	pub, err := crypto.PublicKeyFromJWK(recipient)
	if err != nil {
		return nil, domain.Errorf(domain.ErrInvalidPublicKey, "%v", err)
	}
	chunkSize := e.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	sliceSize := e.SliceSize
	if sliceSize <= 0 {
		sliceSize = DefaultSliceSize
	}

	pr, pw := io.Pipe()
	go func() {
		zw := gzip.NewWriter(pw)
		err := copySlices(zw, r, sliceSize)
		if err == nil {
			err = zw.Close()
		}
		pw.CloseWithError(err)
	}()
	defer pr.Close()

	var manifest []domain.ChunkMeta
	window := make([]byte, chunkSize)
	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			pr.CloseWithError(err)
			return nil, err
		}
		n, readErr := io.ReadFull(pr, window)
		if n > 0 {
			eph, iv, ct, err := envelope.SealRaw(pub, window[:n])
			if err != nil {
				pr.CloseWithError(err)
				return nil, err
			}
			meta := domain.ChunkMeta{Index: index, IV: iv, EphemeralPublicKey: eph, Size: len(ct)}
			if err := sink(ctx, meta, ct); err != nil {
				pr.CloseWithError(err)
				return nil, fmt.Errorf("chunked: chunk %d: %w", index, err)
			}
			manifest = append(manifest, meta)
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("chunked: compress: %w", readErr)
		}
	}
	return manifest, nil
}

// copySlices feeds src to dst in writes of at most size bytes.
func copySlices(dst io.Writer, src io.Reader, size int) error {
	buf := make([]byte, size)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// NewEnvelope builds the version 3 envelope for a manifest. The envelope-level
// key and IV mirror chunk 0.
func NewEnvelope(uploadID domain.UploadID, manifest []domain.ChunkMeta) (domain.Envelope, error) {
	if len(manifest) == 0 {
		return domain.Envelope{}, domain.Errorf(domain.ErrMissingFields, "chunk manifest is empty")
	}
	return domain.Envelope{
		Version:            domain.VersionChunked,
		EphemeralPublicKey: manifest[0].EphemeralPublicKey,
		IV:                 manifest[0].IV,
		Chunks:             manifest,
		UploadID:           uploadID,
	}, nil
}
