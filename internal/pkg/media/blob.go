package media

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Kind is the declared media kind of an analysis request.
type Kind string

const (
	KindImage Kind = "image"
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// ParseKind parses a kind name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindImage:
		return KindImage, nil
	case KindAudio:
		return KindAudio, nil
	case KindVideo:
		return KindVideo, nil
	}
	return "", fmt.Errorf("unsupported media kind %q", s)
}

func (k Kind) String() string {
	return string(k)
}

// Blob is an immutable media payload tagged with its MIME type.
// It never carries a file name.
type Blob struct {
	Data     []byte
	MIMEType string
}

// NewBlob returns a Blob for data. An empty MIME type is sniffed from the content.
func NewBlob(data []byte, mimeType string) Blob {
	mimeType = NormalizeMIME(mimeType)
	if mimeType == "" {
		mimeType = SniffMIME(data)
	}
	return Blob{Data: data, MIMEType: mimeType}
}

// ReadBlob reads a file into a Blob with the given MIME type.
func ReadBlob(path, mimeType string) (Blob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Blob{}, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	return NewBlob(data, mimeType), nil
}

// Base64 returns the standard base64 encoding of the payload.
func (b Blob) Base64() string {
	return base64.StdEncoding.EncodeToString(b.Data)
}

// DataURI encodes the blob as data:<mime>;base64,<payload>.
func (b Blob) DataURI() string {
	return "data:" + b.MIMEType + ";base64," + b.Base64()
}

// Family returns the top-level MIME type, e.g. "image" for image/png.
func (b Blob) Family() string {
	family, _, _ := strings.Cut(b.MIMEType, "/")
	return family
}

// Subtype returns the MIME subtype without parameters, e.g. "mpeg" for audio/mpeg.
func (b Blob) Subtype() string {
	_, sub, _ := strings.Cut(b.MIMEType, "/")
	return sub
}

// Size returns the payload length in bytes.
func (b Blob) Size() int {
	return len(b.Data)
}

// NormalizeMIME lower-cases a MIME type and drops its parameters.
func NormalizeMIME(mimeType string) string {
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		return ""
	}
	parsed, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return strings.ToLower(mimeType)
	}
	return parsed
}

// SniffMIME detects a MIME type from the first bytes of data.
func SniffMIME(data []byte) string {
	return NormalizeMIME(http.DetectContentType(data))
}

// ExtensionFor returns a file extension suitable for handing the payload to ffmpeg.
// A safe extension from nameHint wins over one derived from the MIME type.
func ExtensionFor(nameHint, mimeType string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(nameHint)))
	if isSafeExt(ext) {
		return ext
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

func isSafeExt(ext string) bool {
	if len(ext) < 2 || len(ext) > 6 {
		return false
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
