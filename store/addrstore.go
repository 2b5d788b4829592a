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

package store

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	bolt "go.etcd.io/bbolt"
)

// MaxPendingPersists bounds the background persistence queue; the epoch
// drain blocks rather than queueing unbounded work
const MaxPendingPersists = 1

var (
	bucketAddrTotals = []byte("addr-totals")
	bucketAddrMeta   = []byte("addr-meta")
)

var keyLastEpoch = []byte("last-epoch")

// AddressTotalsDelta is the per-address accumulation drained at an epoch
// boundary
type AddressTotalsDelta struct {
	Received uint64
	Sent     uint64
	TxCount  uint64
}

// EpochDrain is one epoch's worth of immutable address state
type EpochDrain struct {
	Epoch  uint64
	Totals map[string]AddressTotalsDelta
}

// AddressStore is the immutable, fsync'd layer of the address state: one
// persisted batch per epoch, written by a single background worker fed
// through a bounded channel
type AddressStore struct {
	db *bolt.DB

	mu      sync.Mutex
	pending chan EpochDrain
	done    chan struct{}
	err     error
}

// OpenAddressStore opens the address store and starts its persistence
// worker
func OpenAddressStore(path string) (*AddressStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open address store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketAddrTotals, bucketAddrMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	store := &AddressStore{
		db:      db,
		pending: make(chan EpochDrain, MaxPendingPersists),
		done:    make(chan struct{}),
	}
	go store.worker()
	return store, nil
}

// Drain hands one epoch's accumulated state to the persistence worker.
// It blocks only while one epoch is being written and another is already
// queued, bounding memory to one queued epoch beside the one in flight.
func (s *AddressStore) Drain(drain EpochDrain) {
	select {
	case s.pending <- drain:
	case <-s.done:
		panic("address store: drain after worker exit")
	}
}

// Close stops the worker after the queue empties and closes the database
func (s *AddressStore) Close() error {
	close(s.pending)
	<-s.done
	err := s.db.Close()
	if s.err != nil {
		return s.err
	}
	return err
}

func (s *AddressStore) worker() {
	defer close(s.done)
	for drain := range s.pending {
		write := func() error {
			return s.db.Update(func(tx *bolt.Tx) error {
				totals := tx.Bucket(bucketAddrTotals)
				for addr, delta := range drain.Totals {
					merged := delta
					if raw := totals.Get([]byte(addr)); raw != nil {
						existing := decodeTotals(raw)
						merged.Received += existing.Received
						merged.Sent += existing.Sent
						merged.TxCount += existing.TxCount
					}
					if err := totals.Put(
						[]byte(addr), encodeTotals(merged),
					); err != nil {
						return err
					}
				}
				return tx.Bucket(bucketAddrMeta).Put(
					keyLastEpoch, u64Key(drain.Epoch),
				)
			})
		}
		policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
		if err := backoff.Retry(write, policy); err != nil {
			// Repeated disk failure: finality would be silently lost if
			// we carried on
			panic(fmt.Sprintf(
				"address store: persist of epoch %d failed repeatedly: %v",
				drain.Epoch, err,
			))
		}
	}
}

// Totals reads an address's persisted totals
func (s *AddressStore) Totals(addr []byte) (AddressTotalsDelta, error) {
	var out AddressTotalsDelta
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketAddrTotals).Get(addr)
		if raw == nil {
			return ErrNotFound
		}
		out = decodeTotals(raw)
		return nil
	})
	return out, err
}

// LastPersistedEpoch returns the newest epoch fully persisted
func (s *AddressStore) LastPersistedEpoch() (uint64, bool) {
	var epoch uint64
	found := false
	_ = s.db.View(func(tx *bolt.Tx) error {
		if raw := tx.Bucket(bucketAddrMeta).Get(keyLastEpoch); raw != nil {
			epoch = binary.BigEndian.Uint64(raw)
			found = true
		}
		return nil
	})
	return epoch, found
}

func encodeTotals(t AddressTotalsDelta) []byte {
	out := make([]byte, 24)
	binary.BigEndian.PutUint64(out, t.Received)
	binary.BigEndian.PutUint64(out[8:], t.Sent)
	binary.BigEndian.PutUint64(out[16:], t.TxCount)
	return out
}

func decodeTotals(raw []byte) AddressTotalsDelta {
	if len(raw) != 24 {
		return AddressTotalsDelta{}
	}
	return AddressTotalsDelta{
		Received: binary.BigEndian.Uint64(raw),
		Sent:     binary.BigEndian.Uint64(raw[8:]),
		TxCount:  binary.BigEndian.Uint64(raw[16:]),
	}
}
