// Package hal implements the HAL Laboratory graphics compression format
// used by games such as Kirby Super Star and Kirby's Dream Land 3.
package hal

import (
	"errors"
	"fmt"
)

// DataSize is the maximum size of a decompressed block.
const DataSize = 65536

const (
	terminator   = 0xFF
	longCommand  = 0xE0
	maxRunLength = 1024
	shortLimit   = 32
)

// command identifiers of the format.
const (
	cmdRaw            = 0
	cmdRLE8           = 1
	cmdRLE16          = 2
	cmdIncrement      = 3
	cmdBackref        = 4
	cmdBackrefRotate  = 5
	cmdBackrefReverse = 6
	cmdBackrefAlt     = 7
)

var (
	// ErrNoTerminator is returned when the input ends before the end marker.
	ErrNoTerminator = errors.New("compressed stream ends without terminator")
	// ErrOutputOverflow is returned when the output would exceed DataSize.
	ErrOutputOverflow = errors.New("decompressed data exceeds 64KB")
	// ErrInvalidBackref is returned for back references outside the output.
	ErrInvalidBackref = errors.New("invalid back reference")
	// ErrInputTooLarge is returned when data to compress exceeds DataSize.
	ErrInputTooLarge = errors.New("input exceeds 64KB")
)

// Result of a decompression.
type Result struct {
	Data           []byte
	CompressedSize int // number of input bytes consumed including the terminator
}

// Decompress decodes the compressed block starting at offset in src.
func Decompress(src []byte, offset int) (*Result, error) {
	if offset < 0 || offset >= len(src) {
		return nil, fmt.Errorf("offset 0x%X outside of input size 0x%X: %w", offset, len(src), ErrNoTerminator)
	}

	d := decoder{
		src:    src,
		pos:    offset,
		output: make([]byte, DataSize),
	}
	if err := d.run(); err != nil {
		return nil, fmt.Errorf("decompressing at 0x%X: %w", offset, err)
	}

	data := make([]byte, d.outPos)
	copy(data, d.output)
	return &Result{
		Data:           data,
		CompressedSize: d.pos - offset,
	}, nil
}

type decoder struct {
	src    []byte
	pos    int
	output []byte
	outPos int
}

func (d *decoder) next() (byte, error) {
	if d.pos >= len(d.src) {
		return 0, ErrNoTerminator
	}
	b := d.src[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) run() error {
	for {
		input, err := d.next()
		if err != nil {
			return err
		}
		if input == terminator {
			return nil
		}

		var command byte
		var length int
		if input&longCommand == longCommand {
			command = (input >> 2) & 0x07
			low, err := d.next()
			if err != nil {
				return err
			}
			length = (int(input&0x03)<<8 | int(low)) + 1
		} else {
			command = input >> 5
			length = int(input&0x1F) + 1
		}

		if err := d.execute(command, length); err != nil {
			return err
		}
	}
}

func (d *decoder) execute(command byte, length int) error {
	produced := length
	if command == cmdRLE16 {
		produced = 2 * length
	}
	if d.outPos+produced > DataSize {
		return ErrOutputOverflow
	}

	switch command {
	case cmdRaw:
		if d.pos+length > len(d.src) {
			return ErrNoTerminator
		}
		copy(d.output[d.outPos:], d.src[d.pos:d.pos+length])
		d.pos += length
		d.outPos += length

	case cmdRLE8:
		value, err := d.next()
		if err != nil {
			return err
		}
		for range length {
			d.output[d.outPos] = value
			d.outPos++
		}

	case cmdRLE16:
		if d.pos+2 > len(d.src) {
			return ErrNoTerminator
		}
		first, second := d.src[d.pos], d.src[d.pos+1]
		d.pos += 2
		for range length {
			d.output[d.outPos] = first
			d.output[d.outPos+1] = second
			d.outPos += 2
		}

	case cmdIncrement:
		value, err := d.next()
		if err != nil {
			return err
		}
		for i := range length {
			d.output[d.outPos] = value + byte(i)
			d.outPos++
		}

	default:
		return d.backref(command, length)
	}
	return nil
}

func (d *decoder) backref(command byte, length int) error {
	if d.pos+2 > len(d.src) {
		return ErrNoTerminator
	}
	offset := int(d.src[d.pos])<<8 | int(d.src[d.pos+1])
	d.pos += 2

	switch command {
	case cmdBackref, cmdBackrefAlt:
		if offset+length > DataSize {
			return fmt.Errorf("forward reference 0x%X+%d: %w", offset, length, ErrInvalidBackref)
		}
		for i := range length {
			d.output[d.outPos] = d.output[offset+i]
			d.outPos++
		}

	case cmdBackrefRotate:
		if offset+length > DataSize {
			return fmt.Errorf("rotated reference 0x%X+%d: %w", offset, length, ErrInvalidBackref)
		}
		for i := range length {
			d.output[d.outPos] = reverseBits(d.output[offset+i])
			d.outPos++
		}

	case cmdBackrefReverse:
		if offset < length-1 {
			return fmt.Errorf("backwards reference 0x%X-%d: %w", offset, length, ErrInvalidBackref)
		}
		for i := range length {
			d.output[d.outPos] = d.output[offset-i]
			d.outPos++
		}
	}
	return nil
}

// reverseBits mirrors the bit order of a byte, flipping 8 pixels of a
// bitplane row horizontally.
func reverseBits(b byte) byte {
	b = b>>4 | b<<4
	b = (b&0xCC)>>2 | (b&0x33)<<2
	b = (b&0xAA)>>1 | (b&0x55)<<1
	return b
}
