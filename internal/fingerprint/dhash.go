// Package fingerprint computes perceptual difference hashes of design images.
package fingerprint

import (
	"bytes"
	"fmt"
	"image"
	"math/bits"

	"github.com/disintegration/imaging"
)

const (
	hashWidth  = 8
	hashHeight = 8

	// Bits is the fingerprint length.
	Bits = hashWidth * hashHeight
)

// Hash is a 64-bit difference hash.
type Hash uint64

// FromInt64 converts a stored BIGINT column back into a Hash.
func FromInt64(v int64) Hash {
	return Hash(uint64(v))
}

// Int64 returns the hash in a form that fits a signed BIGINT column.
func (h Hash) Int64() int64 {
	return int64(uint64(h))
}

// String renders the hash as 16 hex digits.
func (h Hash) String() string {
	return fmt.Sprintf("%016x", uint64(h))
}

// Compute decodes raw image bytes and returns their difference hash.
func Compute(data []byte) (Hash, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("empty image")
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return 0, fmt.Errorf("failed to decode image: %w", err)
	}
	return FromImage(img)
}

// FromImage hashes an already decoded image. The image is reduced to a
// 9x8 grayscale thumbnail and each bit records whether a pixel is brighter
// than its right-hand neighbour.
func FromImage(img image.Image) (Hash, error) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return 0, fmt.Errorf("image has no pixels")
	}

	small := imaging.Resize(imaging.Grayscale(img), hashWidth+1, hashHeight, imaging.Lanczos)

	var h Hash
	for y := 0; y < hashHeight; y++ {
		for x := 0; x < hashWidth; x++ {
			left := small.Pix[small.PixOffset(x, y)]
			right := small.Pix[small.PixOffset(x+1, y)]
			h <<= 1
			if left > right {
				h |= 1
			}
		}
	}
	return h, nil
}

// Distance is the number of differing bits between two hashes.
func Distance(a, b Hash) int {
	return bits.OnesCount64(uint64(a ^ b))
}

// Similarity returns 1 - distance/Bits, in [0, 1].
func Similarity(a, b Hash) float64 {
	return 1 - float64(Distance(a, b))/float64(Bits)
}
