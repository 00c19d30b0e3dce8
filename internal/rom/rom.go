// Package rom provides access to SNES ROM images and their internal header.
package rom

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"
)

// SMCHeaderSize is the size of the copier header some dumps carry.
const SMCHeaderSize = 512

// ErrOffsetOutOfRange is returned when an access lies outside the ROM data.
var ErrOffsetOutOfRange = errors.New("offset out of range")

// Image is a loaded ROM file.
type Image struct {
	path string
	data []byte

	once   sync.Once
	hash   string
	header *Header
	hdrErr error
}

// Load reads a ROM image from disk.
func Load(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading ROM file %s: %w", path, err)
	}
	img := FromBytes(data)
	img.path = path
	return img, nil
}

// FromBytes creates an image from an in memory buffer. The buffer is not
// copied.
func FromBytes(data []byte) *Image {
	return &Image{data: data}
}

// Path returns the file path the image was loaded from.
func (i *Image) Path() string {
	return i.path
}

// Data returns the complete file contents including any copier header.
func (i *Image) Data() []byte {
	return i.data
}

// Size returns the file size in bytes.
func (i *Image) Size() int {
	return len(i.data)
}

// SMCOffset returns 512 if the file carries a copier header, otherwise 0.
func (i *Image) SMCOffset() int {
	return DetectSMCHeader(len(i.data))
}

// DetectSMCHeader returns the copier header size for a file of the given size.
func DetectSMCHeader(size int) int {
	if size%1024 == SMCHeaderSize {
		return SMCHeaderSize
	}
	return 0
}

// Hash returns the hex encoded sha256 of the file contents.
func (i *Image) Hash() string {
	i.once.Do(func() {
		sum := sha256.Sum256(i.data)
		i.hash = hex.EncodeToString(sum[:])
	})
	return i.hash
}

// Header returns the parsed internal header. The result is cached.
func (i *Image) Header() (*Header, error) {
	if i.header == nil && i.hdrErr == nil {
		i.header, i.hdrErr = ParseHeader(i.data)
	}
	return i.header, i.hdrErr
}

// ValidateOffset checks that the offset lies within the file.
func (i *Image) ValidateOffset(offset int) error {
	if offset < 0 || offset >= len(i.data) {
		return fmt.Errorf("offset 0x%X for ROM size 0x%X: %w", offset, len(i.data), ErrOffsetOutOfRange)
	}
	return nil
}

// Slice returns length bytes starting at offset. The returned slice shares
// memory with the image.
func (i *Image) Slice(offset, length int) ([]byte, error) {
	if length < 0 || offset < 0 || offset+length > len(i.data) {
		return nil, fmt.Errorf("range 0x%X+0x%X for ROM size 0x%X: %w",
			offset, length, len(i.data), ErrOffsetOutOfRange)
	}
	return i.data[offset : offset+length], nil
}

// Tail returns all bytes from offset up to at most maxLength bytes.
func (i *Image) Tail(offset, maxLength int) ([]byte, error) {
	if err := i.ValidateOffset(offset); err != nil {
		return nil, err
	}
	end := min(offset+maxLength, len(i.data))
	return i.data[offset:end], nil
}

// Clone returns a deep copy of the image that can be modified independently.
func (i *Image) Clone() *Image {
	data := make([]byte, len(i.data))
	copy(data, i.data)
	return &Image{path: i.path, data: data}
}

// WriteAt copies payload into the image at offset.
func (i *Image) WriteAt(offset int, payload []byte) error {
	if offset < 0 || offset+len(payload) > len(i.data) {
		return fmt.Errorf("writing 0x%X bytes at 0x%X for ROM size 0x%X: %w",
			len(payload), offset, len(i.data), ErrOffsetOutOfRange)
	}
	copy(i.data[offset:], payload)
	i.invalidate()
	return nil
}

// Fill sets length bytes starting at offset to value.
func (i *Image) Fill(offset, length int, value byte) error {
	if length < 0 || offset < 0 || offset+length > len(i.data) {
		return fmt.Errorf("filling 0x%X bytes at 0x%X for ROM size 0x%X: %w",
			length, offset, len(i.data), ErrOffsetOutOfRange)
	}
	for idx := offset; idx < offset+length; idx++ {
		i.data[idx] = value
	}
	i.invalidate()
	return nil
}

// Save writes the image to the given path.
func (i *Image) Save(path string) error {
	if err := os.WriteFile(path, i.data, 0o644); err != nil {
		return fmt.Errorf("writing ROM file %s: %w", path, err)
	}
	return nil
}

func (i *Image) invalidate() {
	i.once = sync.Once{}
	i.hash = ""
	i.header = nil
	i.hdrErr = nil
}
