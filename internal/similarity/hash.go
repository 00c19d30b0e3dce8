// Package similarity finds visually similar sprites by comparing perceptual
// hashes and color histograms.
package similarity

import (
	"image"
	"math/bits"

	"golang.org/x/image/draw"
)

// Hash sizes in pixels.
const (
	hashSize      = 8
	hashBits      = hashSize * hashSize
	histogramBins = 16
	channels      = 3
)

// Similarity weights of the hash components.
const (
	averageWeight    = 0.4
	differenceWeight = 0.3
	histogramWeight  = 0.3
)

// Histogram is a normalized color histogram with 16 bins for each of the
// red, green and blue channels.
type Histogram [histogramBins * channels]float64

// Hash holds the perceptual fingerprints of a sprite image.
type Hash struct {
	Offset     int
	Average    uint64
	Difference uint64
	Histogram  Histogram
	Metadata   map[string]string
}

// Compute calculates the fingerprints of the image.
func Compute(img image.Image) Hash {
	return Hash{
		Average:    AverageHash(img),
		Difference: DifferenceHash(img),
		Histogram:  ColorHistogram(img),
	}
}

// AverageHash scales the image to 8x8 grayscale pixels and sets a bit for
// every pixel that is brighter than the mean.
func AverageHash(img image.Image) uint64 {
	gray := scaleGray(img, hashSize, hashSize)

	var sum int
	for _, p := range gray.Pix {
		sum += int(p)
	}
	mean := float64(sum) / float64(len(gray.Pix))

	var hash uint64
	for i, p := range gray.Pix {
		if float64(p) > mean {
			hash |= 1 << i
		}
	}
	return hash
}

// DifferenceHash scales the image to 9x8 grayscale pixels and sets a bit for
// every pixel that is brighter than its left neighbour.
func DifferenceHash(img image.Image) uint64 {
	gray := scaleGray(img, hashSize+1, hashSize)

	var hash uint64
	bit := 0
	for y := range hashSize {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+hashSize+1]
		for x := range hashSize {
			if row[x+1] > row[x] {
				hash |= 1 << bit
			}
			bit++
		}
	}
	return hash
}

func scaleGray(img image.Image, width, height int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// ColorHistogram returns the normalized histogram of the RGB channels of
// the image.
func ColorHistogram(img image.Image) Histogram {
	var hist Histogram
	bounds := img.Bounds()
	total := 0

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			hist[int(r>>12)]++
			hist[histogramBins+int(g>>12)]++
			hist[2*histogramBins+int(b>>12)]++
			total += channels
		}
	}

	if total > 0 {
		for i := range hist {
			hist[i] /= float64(total)
		}
	}
	return hist
}

// Intersection returns the histogram intersection, 1 for identical
// distributions.
func (h Histogram) Intersection(other Histogram) float64 {
	var sum float64
	for i := range h {
		sum += min(h[i], other[i])
	}
	return sum
}

// Distance returns the number of differing bits of two hashes.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

func hashSimilarity(a, b uint64) float64 {
	return 1 - float64(Distance(a, b))/hashBits
}

// Similarity returns the weighted similarity of two fingerprints between 0
// and 1.
func Similarity(a, b Hash) float64 {
	return averageWeight*hashSimilarity(a.Average, b.Average) +
		differenceWeight*hashSimilarity(a.Difference, b.Difference) +
		histogramWeight*a.Histogram.Intersection(b.Histogram)
}
