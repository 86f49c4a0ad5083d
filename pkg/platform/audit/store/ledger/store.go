// Package ledger implements a local hash-chained audit store on LevelDB.
//
// Every record carries the hash of its predecessor, so editing or removing an
// entry breaks the chain and Verify reports the first broken sequence number.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	audit "rxvc/pkg/platform/audit"
)

const (
	keyHeight   = "meta_height"
	keyHeadHash = "meta_head"
)

// genesisHash is the predecessor of the first record.
var genesisHash = hex.EncodeToString(make([]byte, sha256.Size))

// ErrChainBroken is returned by Verify when a record does not link to its
// predecessor or its content does not match its hash.
var ErrChainBroken = errors.New("audit ledger chain broken")

type record struct {
	Seq      uint64      `json:"seq"`
	Event    audit.Event `json:"event"`
	PrevHash string      `json:"prevHash"`
	Hash     string      `json:"hash"`
}

// Store is an append-only, hash-chained audit store.
type Store struct {
	mu       sync.Mutex
	db       *leveldb.DB
	height   uint64
	headHash string
}

// Open opens (or creates) a ledger at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open audit ledger: %w", err)
	}
	return newStore(db)
}

// OpenInMemory opens a ledger backed by memory storage (tests, dev).
func OpenInMemory() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open audit ledger: %w", err)
	}
	return newStore(db)
}

func newStore(db *leveldb.DB) (*Store, error) {
	s := &Store{db: db, headHash: genesisHash}
	if v, err := db.Get([]byte(keyHeight), nil); err == nil {
		h, err := strconv.ParseUint(string(v), 10, 64)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("read ledger height: %w", err)
		}
		s.height = h
	} else if !errors.Is(err, leveldb.ErrNotFound) {
		_ = db.Close()
		return nil, fmt.Errorf("read ledger height: %w", err)
	}
	if v, err := db.Get([]byte(keyHeadHash), nil); err == nil {
		s.headHash = string(v)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append links event to the current head and writes it atomically with the
// new head pointer and the subject index.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.height + 1
	event.PrevHash = s.headHash
	hash, err := chainHash(seq, event)
	if err != nil {
		return err
	}
	data, err := json.Marshal(record{Seq: seq, Event: event, PrevHash: s.headHash, Hash: hash})
	if err != nil {
		return fmt.Errorf("marshal ledger record: %w", err)
	}

	batch := new(leveldb.Batch)
	batch.Put(entryKey(seq), data)
	batch.Put(subjectKey(event.Subject, seq), []byte(strconv.FormatUint(seq, 10)))
	batch.Put([]byte(keyHeight), []byte(strconv.FormatUint(seq, 10)))
	batch.Put([]byte(keyHeadHash), []byte(hash))
	if err := s.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("write ledger record: %w", err)
	}

	s.height = seq
	s.headHash = hash
	return nil
}

// ListBySubject returns the events recorded for subject in append order.
func (s *Store) ListBySubject(_ context.Context, subject string) ([]audit.Event, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte("subject_"+subject+"_")), nil)
	defer iter.Release()

	var out []audit.Event
	for iter.Next() {
		seq, err := strconv.ParseUint(string(iter.Value()), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse subject index: %w", err)
		}
		rec, err := s.get(seq)
		if err != nil {
			return nil, err
		}
		out = append(out, rec.Event)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate subject index: %w", err)
	}
	return out, nil
}

// Count returns the number of records in the ledger.
func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.height), nil
}

// Head returns the current head hash.
func (s *Store) Head() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headHash
}

// Verify walks the chain from genesis and checks every link and hash.
func (s *Store) Verify(ctx context.Context) error {
	s.mu.Lock()
	height := s.height
	s.mu.Unlock()

	prev := genesisHash
	for seq := uint64(1); seq <= height; seq++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := s.get(seq)
		if err != nil {
			return err
		}
		if rec.PrevHash != prev || rec.Event.PrevHash != prev {
			return fmt.Errorf("%w: record %d does not link to its predecessor", ErrChainBroken, seq)
		}
		want, err := chainHash(seq, rec.Event)
		if err != nil {
			return err
		}
		if want != rec.Hash {
			return fmt.Errorf("%w: record %d content does not match its hash", ErrChainBroken, seq)
		}
		prev = rec.Hash
	}
	return nil
}

func (s *Store) get(seq uint64) (record, error) {
	data, err := s.db.Get(entryKey(seq), nil)
	if err != nil {
		return record{}, fmt.Errorf("read ledger record %d: %w", seq, err)
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return record{}, fmt.Errorf("decode ledger record %d: %w", seq, err)
	}
	return rec, nil
}

func chainHash(seq uint64, event audit.Event) (string, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal ledger event: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(strconv.FormatUint(seq, 10)))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// entryKey is zero-padded so lexical order matches sequence order.
func entryKey(seq uint64) []byte {
	return fmt.Appendf(nil, "entry_%020d", seq)
}

func subjectKey(subject string, seq uint64) []byte {
	return fmt.Appendf(nil, "subject_%s_%020d", subject, seq)
}
