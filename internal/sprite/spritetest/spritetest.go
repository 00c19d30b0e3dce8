// Package spritetest generates synthetic sprite graphics and ROM images that
// contain them for tests.
package spritetest

import (
	"github.com/semmlerino/spritepal/internal/hal"
	"github.com/semmlerino/spritepal/internal/rom/romtest"
	"github.com/semmlerino/spritepal/internal/tile"
)

// Tiles returns count tiles of 4bpp data that score as high quality sprite
// graphics. seed varies the content between sprites.
func Tiles(count int, seed int) []byte {
	data := make([]byte, 0, count*tile.BytesPerTile)
	for i := range count {
		k := i + seed
		var t [tile.BytesPerTile]byte
		for r := range tile.Size {
			t[r*2] = byte(0x81 | r<<2 | (k&3)<<5)
			t[r*2+1] = byte(0x42 + r*3 + seed%5)
			t[16+r*2] = byte(0x81 | r<<3)
			t[16+r*2+1] = byte(0x24 + k%7)
		}
		data = append(data, t[:]...)
	}
	return data
}

// Sprite describes a compressed sprite to place in a generated ROM.
type Sprite struct {
	Offset int
	Tiles  int
	Seed   int
}

// ROM builds a LoROM image of the given options with the sprites compressed
// at their offsets. It returns the image and the compressed size of every
// sprite in order.
func ROM(opts romtest.Options, sprites ...Sprite) ([]byte, []int) {
	opts.Filler = 0xFF
	data := romtest.Build(opts)
	smc := 0
	if opts.SMC {
		smc = 512
	}

	sizes := make([]int, 0, len(sprites))
	for _, s := range sprites {
		compressed, err := hal.Compress(Tiles(s.Tiles, s.Seed), false)
		if err != nil {
			panic(err)
		}
		copy(data[s.Offset:], compressed)
		sizes = append(sizes, len(compressed))
	}

	headerOffset := smc + 0x7FC0
	if opts.HiROM {
		headerOffset = smc + 0xFFC0
	}
	romtest.FixChecksum(data, smc, headerOffset)
	return data, sizes
}
