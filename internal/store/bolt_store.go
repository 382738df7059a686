package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"

	"healthrelay/internal/domain"
)

const (
	metadataBucket = "metadata"
	versionKey     = "version"

	sessionsBucket = "sessions"
	stagingBucket  = "staging"
	chunksBucket   = "chunks"

	storageVersion = 0
)

// records are encoded deterministically so an untouched record stays
// byte-for-byte identical across rewrites.
var (
	recordEnc cbor.EncMode
	recordDec cbor.DecMode
)

func init() {
	var err error
	recordEnc, err = cbor.EncOptions{
		Sort: cbor.SortCoreDeterministic,
		Time: cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(err)
	}
	recordDec, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}

// BoltSessionStore keeps session records and chunk blobs in a bbolt file.
// Every mutation runs in a single bbolt read-write transaction, which
// serializes concurrent updates of the same record.
type BoltSessionStore struct {
	db *bolt.DB
}

// OpenBoltSessionStore opens or creates the database at path.
func OpenBoltSessionStore(path string) (*BoltSessionStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		for _, name := range []string{sessionsBucket, stagingBucket, chunksBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		if b := meta.Get([]byte(versionKey)); b != nil {
			if len(b) != 1 || b[0] != storageVersion {
				return fmt.Errorf("session db: incompatible version: %d", uint(b[0]))
			}
			return nil
		}
		return meta.Put([]byte(versionKey), []byte{storageVersion})
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltSessionStore{db: db}, nil
}

// Close releases the database file.
func (s *BoltSessionStore) Close() error { return s.db.Close() }

// Ping reports whether the database is usable.
func (s *BoltSessionStore) Ping() error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(sessionsBucket)) == nil {
			return errors.New("sessions bucket missing")
		}
		return nil
	})
}

// CreateSession stores a new record. Ids are never reused.
func (s *BoltSessionStore) CreateSession(ctx context.Context, session domain.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := recordEnc.Marshal(session)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(sessionsBucket))
		key := []byte(session.ID)
		if bkt.Get(key) != nil {
			return fmt.Errorf("session %s already exists", session.ID)
		}
		return bkt.Put(key, raw)
	})
}

// LoadSession returns the stored record or ErrSessionNotFound.
func (s *BoltSessionStore) LoadSession(ctx context.Context, id domain.SessionID) (domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return domain.Session{}, err
	}
	var sess domain.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(sessionsBucket)).Get([]byte(id))
		if raw == nil {
			return domain.ErrSessionNotFound
		}
		return recordDec.Unmarshal(raw, &sess)
	})
	return sess, err
}

// UpdateSession runs fn against the record inside one transaction. If fn
// returns an error nothing is written, including promoted or staged chunks.
func (s *BoltSessionStore) UpdateSession(
	ctx context.Context,
	id domain.SessionID,
	fn func(tx domain.SessionTx) error,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(sessionsBucket))
		raw := bkt.Get([]byte(id))
		if raw == nil {
			return domain.ErrSessionNotFound
		}
		st := &sessionTx{tx: tx, id: id}
		if err := recordDec.Unmarshal(raw, &st.session); err != nil {
			return err
		}
		if err := fn(st); err != nil {
			return err
		}
		out, err := recordEnc.Marshal(st.session)
		if err != nil {
			return err
		}
		if bytes.Equal(out, raw) {
			return nil
		}
		return bkt.Put([]byte(id), out)
	})
}

// DeleteSession removes the record with all of its staged and promoted chunks.
func (s *BoltSessionStore) DeleteSession(ctx context.Context, id domain.SessionID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(sessionsBucket))
		if bkt.Get([]byte(id)) == nil {
			return domain.ErrSessionNotFound
		}
		return deleteSession(tx, id)
	})
}

// DeleteExpired removes every session created before cutoff, regardless of
// status, and returns how many were removed.
func (s *BoltSessionStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		var expired []domain.SessionID
		c := tx.Bucket([]byte(sessionsBucket)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec struct {
				CreatedAt time.Time `cbor:"createdAt"`
			}
			if err := recordDec.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("session %s: %w", k, err)
			}
			if rec.CreatedAt.Before(cutoff) {
				expired = append(expired, domain.SessionID(k))
			}
		}
		for _, id := range expired {
			if err := deleteSession(tx, id); err != nil {
				return err
			}
		}
		n = len(expired)
		return nil
	})
	return n, err
}

// LoadChunk returns a copy of a promoted chunk blob.
func (s *BoltSessionStore) LoadChunk(
	ctx context.Context,
	id domain.SessionID,
	providerIndex int,
	chunkIndex int,
) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(chunksBucket)).Get(chunkKey(id, providerIndex, chunkIndex))
		if v == nil {
			return domain.ErrChunkNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

func deleteSession(tx *bolt.Tx, id domain.SessionID) error {
	if err := tx.Bucket([]byte(sessionsBucket)).Delete([]byte(id)); err != nil {
		return err
	}
	prefix := sessionPrefix(id)
	for _, name := range []string{stagingBucket, chunksBucket} {
		if err := deletePrefix(tx.Bucket([]byte(name)), prefix); err != nil {
			return err
		}
	}
	return nil
}

func deletePrefix(bkt *bolt.Bucket, prefix []byte) error {
	var keys [][]byte
	c := bkt.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	for _, k := range keys {
		if err := bkt.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Blob keys are "<session>/<upload>/<index>" while staged and
// "<session>/<provider>/<index>" once promoted. Fixed-width numbers keep
// cursor order equal to index order.
func sessionPrefix(id domain.SessionID) []byte {
	return []byte(string(id) + "/")
}

func stagedKey(id domain.SessionID, uploadID domain.UploadID, index int) []byte {
	return fmt.Appendf(nil, "%s/%s/%08d", id, uploadID, index)
}

func chunkKey(id domain.SessionID, providerIndex, chunkIndex int) []byte {
	return fmt.Appendf(nil, "%s/%06d/%08d", id, providerIndex, chunkIndex)
}

// sessionTx is the SessionTx handed to UpdateSession callbacks.
type sessionTx struct {
	tx      *bolt.Tx
	id      domain.SessionID
	session domain.Session
}

func (t *sessionTx) Session() *domain.Session { return &t.session }

func (t *sessionTx) StageChunk(uploadID domain.UploadID, index int, data []byte) error {
	return t.tx.Bucket([]byte(stagingBucket)).Put(stagedKey(t.id, uploadID, index), data)
}

func (t *sessionTx) StagingUsage(uploadID domain.UploadID, index int) domain.StagingUsage {
	var (
		usage domain.StagingUsage
		last  []byte
	)
	skip := stagedKey(t.id, uploadID, index)
	prefix := sessionPrefix(t.id)
	current := []byte(uploadID)
	c := t.tx.Bucket([]byte(stagingBucket)).Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		upload, _, _ := bytes.Cut(k[len(prefix):], []byte("/"))
		if !bytes.Equal(upload, last) {
			usage.Uploads++
			last = append(last[:0], upload...)
			if bytes.Equal(upload, current) {
				usage.HasUpload = true
			}
		}
		if !bytes.Equal(k, skip) {
			usage.Bytes += int64(len(v))
		}
	}
	return usage
}

func (t *sessionTx) PromoteChunks(uploadID domain.UploadID, providerIndex, count int) error {
	staging := t.tx.Bucket([]byte(stagingBucket))
	chunks := t.tx.Bucket([]byte(chunksBucket))
	for i := 0; i < count; i++ {
		v := staging.Get(stagedKey(t.id, uploadID, i))
		if v == nil {
			return domain.Errorf(domain.ErrChunkMissing, "upload %s chunk %d was not staged", uploadID, i)
		}
		if err := chunks.Put(chunkKey(t.id, providerIndex, i), append([]byte(nil), v...)); err != nil {
			return err
		}
	}
	// Drop the staged copies, plus any stray indices past the manifest.
	return deletePrefix(staging, []byte(fmt.Sprintf("%s/%s/", t.id, uploadID)))
}

var (
	_ domain.SessionStore = (*BoltSessionStore)(nil)
	_ domain.SessionTx    = (*sessionTx)(nil)
)
