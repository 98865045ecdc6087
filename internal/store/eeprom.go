// Package store persists the mode volumes. The controller's settings live
// in a small byte-addressed image, laid out like the microcontroller EEPROM
// the device was designed around, kept in a bbolt database.
package store

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bolt layout
const (
	bucket   = "eeprom"
	imageKey = "image"
)

// ImageSize is the size of the settings image in bytes.
const ImageSize = 64

// erased is the value of a never-written byte.
const erased = 0xFF

// EEPROM is a byte-addressed image backed by a bbolt database. Writes go
// to an in-memory copy; Commit writes the image back.
type EEPROM struct {
	mu    sync.Mutex
	db    *bolt.DB
	image [ImageSize]byte
	dirty bool
}

// OpenEEPROM opens (or creates) the database at path and loads the image.
// A fresh database reads as erased.
func OpenEEPROM(path string) (*EEPROM, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	e := &EEPROM{db: db}
	copy(e.image[:], bytes.Repeat([]byte{erased}, ImageSize))

	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		if v := b.Get([]byte(imageKey)); v != nil {
			copy(e.image[:], v)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}

// Read copies len(p) bytes starting at off.
func (e *EEPROM) Read(off int, p []byte) error {
	if off < 0 || off+len(p) > ImageSize {
		return fmt.Errorf("read %d bytes at %d: out of range", len(p), off)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	copy(p, e.image[off:])
	return nil
}

// Write copies p into the image at off. Nothing is stored until Commit.
func (e *EEPROM) Write(off int, p []byte) error {
	if off < 0 || off+len(p) > ImageSize {
		return fmt.Errorf("write %d bytes at %d: out of range", len(p), off)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !bytes.Equal(e.image[off:off+len(p)], p) {
		copy(e.image[off:], p)
		e.dirty = true
	}
	return nil
}

// Commit writes the image to the database if it changed.
func (e *EEPROM) Commit() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.dirty {
		return nil
	}
	img := e.image
	err := e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %q missing", bucket)
		}
		return b.Put([]byte(imageKey), img[:])
	})
	if err != nil {
		return fmt.Errorf("commit image: %w", err)
	}
	e.dirty = false
	return nil
}

// Close closes the database. Uncommitted writes are lost.
func (e *EEPROM) Close() error {
	return e.db.Close()
}
