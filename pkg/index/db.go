// Copyright 2020-2022 The OS-NVR Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; version 2.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package index stores resolved segment indexes in a bolt database.
package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"isobmff/pkg/mp4"

	bolt "go.etcd.io/bbolt"
)

const dbAPIversion = "1"

// ErrNotFound not found.
var ErrNotFound = errors.New("not found")

// Entry is the stored segment index of a single file.
type Entry struct {
	ReferenceID uint32        `json:"referenceID"`
	Timescale   uint32        `json:"timescale"`
	Segments    []mp4.Segment `json:"segments"`
}

// NewEntry resolves the segments of sidx. sidxEnd is the
// stream position of the first byte after the box.
func NewEntry(sidx *mp4.Sidx, sidxEnd uint64) Entry {
	return Entry{
		ReferenceID: sidx.ReferenceID,
		Timescale:   sidx.Timescale,
		Segments:    sidx.Segments(sidxEnd),
	}
}

// DB segment index database.
type DB struct {
	dbPath string
	db     *bolt.DB
}

// Open opens or creates the database.
func Open(dbPath string) (*DB, error) {
	dbOpts := &bolt.Options{
		Timeout: 1 * time.Second,
	}

	db, err := bolt.Open(dbPath, 0o600, dbOpts)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w: %v", err, dbPath)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(dbAPIversion))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create bucket: %v, %w", dbAPIversion, err)
	}

	return &DB{dbPath: dbPath, db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Put stores the entry under name, replacing any previous entry.
func (d *DB) Put(name string, entry Entry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(dbAPIversion)).Put([]byte(name), value)
	})
}

// Get returns the entry stored under name.
func (d *DB) Get(name string) (*Entry, error) {
	var entry Entry
	err := d.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket([]byte(dbAPIversion)).Get([]byte(name))
		if value == nil {
			return fmt.Errorf("%w: %v", ErrNotFound, name)
		}
		if err := json.Unmarshal(value, &entry); err != nil {
			return fmt.Errorf("could not unmarshal entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Delete removes the entry stored under name.
func (d *DB) Delete(name string) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(dbAPIversion)).Delete([]byte(name))
	})
}

// Names returns the names of all entries in sorted order.
func (d *DB) Names() ([]string, error) {
	var names []string
	err := d.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(dbAPIversion)).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Lookup returns the segment of name that contains presentation time t.
func (d *DB) Lookup(name string, t time.Duration) (*mp4.Segment, error) {
	entry, err := d.Get(name)
	if err != nil {
		return nil, err
	}
	return entry.Find(t)
}

// Find returns the segment that contains presentation time t.
func (e *Entry) Find(t time.Duration) (*mp4.Segment, error) {
	if t < 0 {
		return nil, fmt.Errorf("%w: negative time %v", ErrNotFound, t)
	}
	ticks := durationToTicks(t, e.Timescale)
	for i := range e.Segments {
		seg := &e.Segments[i]
		if ticks >= seg.Start && ticks < seg.Start+seg.Duration {
			return seg, nil
		}
	}
	return nil, fmt.Errorf("%w: no segment at %v", ErrNotFound, t)
}

func durationToTicks(t time.Duration, timescale uint32) uint64 {
	sec := uint64(t / time.Second)
	rem := uint64(t % time.Second)
	return sec*uint64(timescale) + rem*uint64(timescale)/uint64(time.Second)
}
