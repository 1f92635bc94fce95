package fingerprint

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockImage draws a 9x8 grid of flat blocks whose horizontal neighbours
// always differ by a clear margin.
func blockImage(seed int64, block int, invert bool) *image.Gray {
	r := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, 9*block, 8*block))
	for by := 0; by < 8; by++ {
		prev := -1
		for bx := 0; bx < 9; bx++ {
			v := r.Intn(200) + 28
			for prev >= 0 && abs(v-prev) < 50 {
				v = r.Intn(200) + 28
			}
			prev = v
			if invert {
				v = 255 - v
			}
			for y := by * block; y < (by+1)*block; y++ {
				for x := bx * block; x < (bx+1)*block; x++ {
					img.SetGray(x, y, color.Gray{Y: uint8(v)})
				}
			}
		}
	}
	return img
}

func gradient(w, h int, increasing bool) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := x * 255 / (w - 1)
			if !increasing {
				v = 255 - v
			}
			img.SetGray(x, y, color.Gray{Y: uint8(v)})
		}
	}
	return img
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

func TestComputeSameImageTwice(t *testing.T) {
	data := encodePNG(t, blockImage(7, 32, false))

	a, err := Compute(data)
	require.NoError(t, err)
	b, err := Compute(data)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, 1.0, Similarity(a, b))
}

func TestComputeReencodedAndResizedCopy(t *testing.T) {
	original, err := Compute(encodePNG(t, blockImage(11, 32, false)))
	require.NoError(t, err)

	reencoded, err := Compute(encodeJPEG(t, blockImage(11, 32, false)))
	require.NoError(t, err)
	assert.Greater(t, Similarity(original, reencoded), 0.85)

	smaller, err := Compute(encodePNG(t, blockImage(11, 16, false)))
	require.NoError(t, err)
	assert.Greater(t, Similarity(original, smaller), 0.85)
}

func TestComputeDistinctImages(t *testing.T) {
	up, err := Compute(encodePNG(t, gradient(90, 80, true)))
	require.NoError(t, err)
	down, err := Compute(encodePNG(t, gradient(90, 80, false)))
	require.NoError(t, err)
	assert.Less(t, Similarity(up, down), 0.85)

	blocks, err := Compute(encodePNG(t, blockImage(3, 32, false)))
	require.NoError(t, err)
	inverted, err := Compute(encodePNG(t, blockImage(3, 32, true)))
	require.NoError(t, err)
	assert.Less(t, Similarity(blocks, inverted), 0.85)
}

func TestComputeRejectsGarbage(t *testing.T) {
	_, err := Compute([]byte("https://cdn.example.com/designs/chair.png"))
	assert.Error(t, err)

	_, err = Compute(nil)
	assert.Error(t, err)
}

func TestHashInt64RoundTrip(t *testing.T) {
	h := Hash(0xfedcba9876543210)
	assert.Equal(t, h, FromInt64(h.Int64()))
	assert.Equal(t, "fedcba9876543210", h.String())
}

func TestDistance(t *testing.T) {
	assert.Equal(t, 0, Distance(0, 0))
	assert.Equal(t, 64, Distance(0, Hash(^uint64(0))))
	assert.Equal(t, 0.0, Similarity(0, Hash(^uint64(0))))
	assert.InDelta(t, 1-4.0/64, Similarity(0, 0xf), 1e-9)
}
