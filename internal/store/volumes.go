package store

import (
	"encoding/binary"
	"fmt"
	"log"

	"github.com/sweeney/irrigation-controller/internal/logic"
)

// Image is the byte store VolumeStore lays the volumes out in.
type Image interface {
	Read(off int, p []byte) error
	Write(off int, p []byte) error
	Commit() error
}

// volumeOffset is the byte offset of mode m's volume: 4-byte little-endian
// signed integers at 0, 4, 8 and 12.
func volumeOffset(m logic.Mode) int {
	return int(m) * 4
}

// VolumeStore implements logic.Persistence on top of an Image.
type VolumeStore struct {
	img      Image
	min, max int
	defaults [logic.NumModes]int
}

// NewVolumeStore creates a store that accepts volumes within [min, max].
func NewVolumeStore(img Image, min, max int) *VolumeStore {
	return &VolumeStore{img: img, min: min, max: max, defaults: logic.DefaultVolumes}
}

// WithDefaults sets the volumes substituted for unusable stored values.
func (s *VolumeStore) WithDefaults(d [logic.NumModes]int) *VolumeStore {
	s.defaults = d
	return s
}

// LoadVolumes decodes the four volumes. Values outside [min, max],
// including an erased image (which decodes as -1), are replaced by the
// mode's default.
func (s *VolumeStore) LoadVolumes() ([logic.NumModes]int, error) {
	var raw [logic.NumModes]int
	buf := make([]byte, 4)
	for m := logic.Mode1; m < logic.NumModes; m++ {
		if err := s.img.Read(volumeOffset(m), buf); err != nil {
			return s.defaults, fmt.Errorf("load %s: %w", m, err)
		}
		raw[m] = int(int32(binary.LittleEndian.Uint32(buf)))
	}

	vols, replaced := logic.ReplaceOutOfRange(raw, s.defaults, s.min, s.max)
	for _, m := range replaced {
		log.Printf("store: %s volume %d out of range, using default %d", m, raw[m], vols[m])
	}
	return vols, nil
}

// SaveVolumes encodes all four volumes and commits the image.
func (s *VolumeStore) SaveVolumes(vols [logic.NumModes]int) error {
	buf := make([]byte, 4)
	for m := logic.Mode1; m < logic.NumModes; m++ {
		binary.LittleEndian.PutUint32(buf, uint32(int32(vols[m])))
		if err := s.img.Write(volumeOffset(m), buf); err != nil {
			return fmt.Errorf("save %s: %w", m, err)
		}
	}
	if err := s.img.Commit(); err != nil {
		return fmt.Errorf("save volumes: %w", err)
	}
	return nil
}
