package store

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const (
	setsBucket    = "sets"
	stringsBucket = "strings"
)

// bbolt rejects empty keys, so every key, member and string value carries a
// one byte prefix.
var (
	keyPrefix    = []byte{'k'}
	memberPrefix = []byte{'m'}
	valuePrefix  = []byte{'v'}
	present      = []byte{1}
)

// Bolt is a Backend persisted in a bbolt file. Each set is a nested bucket
// under "sets"; strings live in the "strings" bucket.
type Bolt struct {
	db *bbolt.DB
}

// OpenBolt opens or creates the database file at path.
func OpenBolt(path string) (*Bolt, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	b := &Bolt{db: db}
	if err := b.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Bolt) ensureBuckets() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{setsBucket, stringsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

func (b *Bolt) Update(fn func(Tx) error) error {
	return b.wrap(b.db.Update(func(tx *bbolt.Tx) error {
		return fn(boltTx{tx: tx})
	}))
}

func (b *Bolt) View(fn func(Tx) error) error {
	return b.wrap(b.db.View(func(tx *bbolt.Tx) error {
		return fn(boltTx{tx: tx})
	}))
}

func (b *Bolt) wrap(err error) error {
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) {
		return ErrClosed
	}
	return err
}

// Close closes the underlying database file.
func (b *Bolt) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

type boltTx struct {
	tx *bbolt.Tx
}

func prefixed(prefix, b []byte) []byte {
	out := make([]byte, 0, len(prefix)+len(b))
	out = append(out, prefix...)
	return append(out, b...)
}

func (t boltTx) sets() *bbolt.Bucket {
	return t.tx.Bucket([]byte(setsBucket))
}

func (t boltTx) stringValues() *bbolt.Bucket {
	return t.tx.Bucket([]byte(stringsBucket))
}

func (t boltTx) set(key []byte) *bbolt.Bucket {
	return t.sets().Bucket(prefixed(keyPrefix, key))
}

func (t boltTx) Kind(key []byte) (ValueKind, error) {
	if t.stringValues().Get(prefixed(keyPrefix, key)) != nil {
		return KindString, nil
	}
	if t.set(key) != nil {
		return KindSet, nil
	}
	return KindNone, nil
}

func (t boltTx) Members(key []byte) ([][]byte, error) {
	bucket := t.set(key)
	if bucket == nil {
		return nil, nil
	}
	var members [][]byte
	err := bucket.ForEach(func(k, _ []byte) error {
		members = append(members, bytes.Clone(k[len(memberPrefix):]))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan set: %w", err)
	}
	return members, nil
}

func (t boltTx) IsMember(key, member []byte) (bool, error) {
	bucket := t.set(key)
	if bucket == nil {
		return false, nil
	}
	return bucket.Get(prefixed(memberPrefix, member)) != nil, nil
}

func (t boltTx) Card(key []byte) (int64, error) {
	bucket := t.set(key)
	if bucket == nil {
		return 0, nil
	}
	var n int64
	c := bucket.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	return n, nil
}

func (t boltTx) Add(key, member []byte) (bool, error) {
	if !t.tx.Writable() {
		return false, errReadOnly
	}
	bucket, err := t.sets().CreateBucketIfNotExists(prefixed(keyPrefix, key))
	if err != nil {
		return false, fmt.Errorf("create set: %w", err)
	}
	m := prefixed(memberPrefix, member)
	if bucket.Get(m) != nil {
		return false, nil
	}
	if err := bucket.Put(m, present); err != nil {
		return false, fmt.Errorf("add member: %w", err)
	}
	return true, nil
}

func (t boltTx) Remove(key, member []byte) (bool, error) {
	if !t.tx.Writable() {
		return false, errReadOnly
	}
	bucket := t.set(key)
	if bucket == nil {
		return false, nil
	}
	m := prefixed(memberPrefix, member)
	if bucket.Get(m) == nil {
		return false, nil
	}
	if err := bucket.Delete(m); err != nil {
		return false, fmt.Errorf("remove member: %w", err)
	}
	if k, _ := bucket.Cursor().First(); k == nil {
		if err := t.sets().DeleteBucket(prefixed(keyPrefix, key)); err != nil {
			return false, fmt.Errorf("delete empty set: %w", err)
		}
	}
	return true, nil
}

func (t boltTx) GetString(key []byte) ([]byte, error) {
	v := t.stringValues().Get(prefixed(keyPrefix, key))
	if v == nil {
		return nil, nil
	}
	return bytes.Clone(v[len(valuePrefix):]), nil
}

func (t boltTx) PutString(key, value []byte) error {
	if !t.tx.Writable() {
		return errReadOnly
	}
	if _, err := t.Delete(key); err != nil {
		return err
	}
	if err := t.stringValues().Put(prefixed(keyPrefix, key), prefixed(valuePrefix, value)); err != nil {
		return fmt.Errorf("put string: %w", err)
	}
	return nil
}

func (t boltTx) Delete(key []byte) (bool, error) {
	if !t.tx.Writable() {
		return false, errReadOnly
	}
	k := prefixed(keyPrefix, key)
	if t.stringValues().Get(k) != nil {
		if err := t.stringValues().Delete(k); err != nil {
			return false, fmt.Errorf("delete string: %w", err)
		}
		return true, nil
	}
	if t.sets().Bucket(k) != nil {
		if err := t.sets().DeleteBucket(k); err != nil {
			return false, fmt.Errorf("delete set: %w", err)
		}
		return true, nil
	}
	return false, nil
}
