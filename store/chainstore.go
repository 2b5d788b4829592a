// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store holds the durable indexes: the chain store for block and
// transaction point queries, and the address store's immutable layer.
// All writes for a single block are batched into one atomic transaction.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/blinklabs-io/chainindex/types"
	"github.com/cenkalti/backoff/v4"
	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
	bolt "go.etcd.io/bbolt"
)

// ErrNotFound is returned when a point query finds nothing
var ErrNotFound = errors.New("store: not found")

var (
	bucketBlocks      = []byte("blocks")
	bucketBySlot      = []byte("by-slot")
	bucketByNumber    = []byte("by-number")
	bucketByEpochSlot = []byte("by-epoch-slot")
	bucketTxs         = []byte("txs")
	bucketMeta        = []byte("meta")
)

var (
	keyLastPersisted = []byte("last-persisted")
	keyIndexCursor   = []byte("index-cursor")
)

// TxLocation locates a transaction within a block
type TxLocation struct {
	BlockHash lcommon.Blake2b256
	Index     uint16
}

// ChainStore is the durable block and transaction index
type ChainStore struct {
	db *bolt.DB

	lastPersisted uint64
	havePersisted bool
}

// OpenChainStore opens (or creates) the chain store at the given path
func OpenChainStore(path string) (*ChainStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open chain store: %w", err)
	}
	store := &ChainStore{db: db}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{
			bucketBlocks, bucketBySlot, bucketByNumber,
			bucketByEpochSlot, bucketTxs, bucketMeta,
		} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		if raw := tx.Bucket(bucketMeta).Get(keyLastPersisted); raw != nil {
			store.lastPersisted = binary.BigEndian.Uint64(raw)
			store.havePersisted = true
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database
func (s *ChainStore) Close() error {
	return s.db.Close()
}

// ShouldPersist reports whether a block still needs persisting. It is
// monotone on the last persisted number, which makes re-inserts after a
// restart idempotent.
func (s *ChainStore) ShouldPersist(blockNumber uint64) bool {
	return !s.havePersisted || blockNumber > s.lastPersisted
}

func u64Key(v uint64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, v)
	return out
}

func epochSlotKey(epoch, epochSlot uint64) []byte {
	out := make([]byte, 16)
	binary.BigEndian.PutUint64(out, epoch)
	binary.BigEndian.PutUint64(out[8:], epochSlot)
	return out
}

// WriteBlock persists one block and its transaction index entries as a
// single atomic batch. The write is retried with exponential backoff;
// persistent failure panics, since losing finalized data silently is not
// an option.
func (s *ChainStore) WriteBlock(
	block types.BlockInfo,
	blockBytes []byte,
	txHashes []lcommon.Blake2b256,
) error {
	if !s.ShouldPersist(block.Number) {
		return nil
	}
	write := func() error {
		return s.db.Update(func(tx *bolt.Tx) error {
			hashKey := block.Hash.Bytes()
			if err := tx.Bucket(bucketBlocks).Put(hashKey, blockBytes); err != nil {
				return err
			}
			// The slot entry carries the hash plus the coordinates
			// needed to unwind the other indexes on rollback
			slotValue := make([]byte, 56)
			copy(slotValue, hashKey)
			binary.BigEndian.PutUint64(slotValue[32:], block.Number)
			binary.BigEndian.PutUint64(slotValue[40:], block.Epoch)
			binary.BigEndian.PutUint64(slotValue[48:], block.EpochSlot)
			if err := tx.Bucket(bucketBySlot).Put(
				u64Key(block.Slot), slotValue,
			); err != nil {
				return err
			}
			if err := tx.Bucket(bucketByNumber).Put(
				u64Key(block.Number), hashKey,
			); err != nil {
				return err
			}
			if err := tx.Bucket(bucketByEpochSlot).Put(
				epochSlotKey(block.Epoch, block.EpochSlot), hashKey,
			); err != nil {
				return err
			}
			txBucket := tx.Bucket(bucketTxs)
			for index, txHash := range txHashes {
				value := make([]byte, 34)
				copy(value, hashKey)
				binary.BigEndian.PutUint16(value[32:], uint16(index))
				if err := txBucket.Put(txHash.Bytes(), value); err != nil {
					return err
				}
			}
			return tx.Bucket(bucketMeta).Put(
				keyLastPersisted, u64Key(block.Number),
			)
		})
	}
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
	if err := backoff.Retry(write, policy); err != nil {
		panic(fmt.Sprintf(
			"chain store: persist of block %d failed repeatedly: %v",
			block.Number, err,
		))
	}
	s.lastPersisted = block.Number
	s.havePersisted = true
	return nil
}

// BlockByHash returns the stored bytes of a block
func (s *ChainStore) BlockByHash(hash lcommon.Blake2b256) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketBlocks).Get(hash.Bytes())
		if raw == nil {
			return ErrNotFound
		}
		out = append([]byte{}, raw...)
		return nil
	})
	return out, err
}

func (s *ChainStore) hashByKey(bucket, key []byte) (lcommon.Blake2b256, error) {
	var out lcommon.Blake2b256
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucket).Get(key)
		if raw == nil {
			return ErrNotFound
		}
		out = lcommon.NewBlake2b256(raw[:32])
		return nil
	})
	return out, err
}

// HashBySlot resolves a slot to its block hash
func (s *ChainStore) HashBySlot(slot uint64) (lcommon.Blake2b256, error) {
	return s.hashByKey(bucketBySlot, u64Key(slot))
}

// RollbackTo unwinds the indexes above the given slot and rewinds the
// persistence cursor so the replacement fork's blocks are re-persisted.
// Transaction entries for orphaned-only transactions are overwritten
// when the new fork re-includes them and are otherwise unreachable via
// the number/slot indexes.
func (s *ChainStore) RollbackTo(slot uint64) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		bySlot := tx.Bucket(bucketBySlot)
		byNumber := tx.Bucket(bucketByNumber)
		byEpochSlot := tx.Bucket(bucketByEpochSlot)
		blocks := tx.Bucket(bucketBlocks)

		cursor := bySlot.Cursor()
		var stale [][]byte
		for key, value := cursor.Seek(u64Key(slot + 1)); key != nil; key, value = cursor.Next() {
			if len(value) != 56 {
				return fmt.Errorf("store: corrupt slot entry at %x", key)
			}
			number := binary.BigEndian.Uint64(value[32:])
			epoch := binary.BigEndian.Uint64(value[40:])
			epochSlot := binary.BigEndian.Uint64(value[48:])
			if err := byNumber.Delete(u64Key(number)); err != nil {
				return err
			}
			if err := byEpochSlot.Delete(epochSlotKey(epoch, epochSlot)); err != nil {
				return err
			}
			if err := blocks.Delete(value[:32]); err != nil {
				return err
			}
			stale = append(stale, append([]byte{}, key...))
		}
		for _, key := range stale {
			if err := bySlot.Delete(key); err != nil {
				return err
			}
		}

		if value := bySlot.Get(u64Key(slot)); len(value) == 56 {
			number := binary.BigEndian.Uint64(value[32:])
			s.lastPersisted = number
			s.havePersisted = true
			return tx.Bucket(bucketMeta).Put(
				keyLastPersisted, u64Key(number),
			)
		}
		// The rollback point predates what we persisted; start over
		s.havePersisted = false
		return tx.Bucket(bucketMeta).Delete(keyLastPersisted)
	})
	if err != nil {
		return fmt.Errorf("store: rollback to slot %d: %w", slot, err)
	}
	return nil
}

// HashByNumber resolves a block number to its block hash
func (s *ChainStore) HashByNumber(number uint64) (lcommon.Blake2b256, error) {
	return s.hashByKey(bucketByNumber, u64Key(number))
}

// HashByEpochSlot resolves (epoch, epoch slot) to a block hash
func (s *ChainStore) HashByEpochSlot(
	epoch, epochSlot uint64,
) (lcommon.Blake2b256, error) {
	return s.hashByKey(bucketByEpochSlot, epochSlotKey(epoch, epochSlot))
}

// SaveCursor persists the encoded resume cursor of the index driving
// this store
func (s *ChainStore) SaveCursor(encoded []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyIndexCursor, encoded)
	})
}

// LoadCursor reads the persisted resume cursor, if any
func (s *ChainStore) LoadCursor() ([]byte, bool) {
	var out []byte
	_ = s.db.View(func(tx *bolt.Tx) error {
		if raw := tx.Bucket(bucketMeta).Get(keyIndexCursor); raw != nil {
			out = append([]byte{}, raw...)
		}
		return nil
	})
	return out, out != nil
}

// TxByHash resolves a transaction hash to its containing block and index
func (s *ChainStore) TxByHash(hash lcommon.Blake2b256) (TxLocation, error) {
	var out TxLocation
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketTxs).Get(hash.Bytes())
		if raw == nil {
			return ErrNotFound
		}
		if len(raw) != 34 {
			return fmt.Errorf("store: corrupt tx entry for %s", hash)
		}
		out.BlockHash = lcommon.NewBlake2b256(raw[:32])
		out.Index = binary.BigEndian.Uint16(raw[32:])
		return nil
	})
	return out, err
}
