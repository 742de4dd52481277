package hash

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math/bits"
	"strconv"

	"github.com/corona10/goimagehash"
)

// Fingerprint is the 64-bit DCT perceptual hash of an image.
type Fingerprint uint64

// PerceptualHash decodes an encoded image and returns its pHash.
func PerceptualHash(data []byte) (Fingerprint, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("failed to decode image: %w", err)
	}
	return PerceptualHashImage(img)
}

// PerceptualHashImage computes the pHash of a decoded image.
func PerceptualHashImage(img image.Image) (Fingerprint, error) {
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return 0, fmt.Errorf("failed to compute pHash: %w", err)
	}
	return Fingerprint(h.GetHash()), nil
}

// Distance returns the number of differing bits (0 = identical images).
func (f Fingerprint) Distance(other Fingerprint) int {
	return bits.OnesCount64(uint64(f) ^ uint64(other))
}

// IsSimilar reports whether other is within threshold bits of f.
// Typical thresholds:
//   - 0: Identical
//   - 1-5: Very similar (likely same image with minor edits)
//   - 6-10: Somewhat similar
//   - 11+: Different images
func (f Fingerprint) IsSimilar(other Fingerprint, threshold int) bool {
	return f.Distance(other) <= threshold
}

// Similarity returns a similarity percentage (0-100).
func (f Fingerprint) Similarity(other Fingerprint) float64 {
	return (1 - float64(f.Distance(other))/64.0) * 100
}

// String returns a hex string representation of the hash.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}

// ParseFingerprint parses the output of Fingerprint.String.
func ParseFingerprint(s string) (Fingerprint, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid fingerprint %q: %w", s, err)
	}
	return Fingerprint(v), nil
}
