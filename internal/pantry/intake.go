// Package pantry decodes uploaded photos into images the generative backend can consume.
package pantry

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/gabriel-vasile/mimetype"
	"github.com/nfnt/resize"

	// decoders for the remaining accepted formats
	_ "image/gif"

	_ "golang.org/x/image/webp"
)

// ErrNoImages is returned when no pantry photo was supplied.
var ErrNoImages = errors.New("no pantry images supplied")

// DefaultMaxWidth is the width photos are scaled down to before upload to the model.
const DefaultMaxWidth = 1024

// DefaultMaxPixels caps the decoded canvas of a single upload.
const DefaultMaxPixels = 50_000_000

// accepted maps sniffed MIME types to the format name image.Decode reports.
var accepted = map[string]string{
	"image/jpeg": "jpeg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// DecodeError reports an upload that is not a usable image. Index is the position among
// the pantry photos and is meaningless when Hero is set.
type DecodeError struct {
	Name  string
	Index int
	Hero  bool
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Hero {
		return fmt.Sprintf("cannot decode hero image %q: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("cannot decode image %q: %v", e.Name, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Blob is one raw uploaded file.
type Blob struct {
	Name string
	Data []byte
}

// Image is a decoded photo plus the encoded bytes that are sent to the model.
// Data is never the caller's slice when the image had to be re-encoded.
type Image struct {
	Name     string
	Format   string
	MIMEType string
	Width    int
	Height   int
	Digest   string
	Pixels   image.Image
	Data     []byte
}

// Batch is the decoded input of one pipeline run.
type Batch struct {
	Pantry []*Image
	Hero   *Image
}

// Decoder turns blobs into Images, scaling anything wider than MaxWidth and refusing
// anything whose declared canvas exceeds MaxPixels.
type Decoder struct {
	MaxWidth  uint
	MaxPixels int
}

// NewDecoder creates a Decoder. Zero values select DefaultMaxWidth and DefaultMaxPixels.
func NewDecoder(maxWidth uint, maxPixels int) *Decoder {
	if maxWidth == 0 {
		maxWidth = DefaultMaxWidth
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &Decoder{MaxWidth: maxWidth, MaxPixels: maxPixels}
}

// Digest returns the hex SHA-256 of raw image bytes.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Decode decodes a single blob. The blob's bytes are never modified.
func (d *Decoder) Decode(b Blob) (*Image, error) {
	if len(b.Data) == 0 {
		return nil, &DecodeError{Name: b.Name, Err: errors.New("empty file")}
	}

	detected := mimetype.Detect(b.Data)
	mime, want := acceptedType(detected)
	if mime == "" {
		return nil, &DecodeError{Name: b.Name, Err: fmt.Errorf("unsupported content type %s", detected.String())}
	}

	// header only, so an oversized canvas is refused before any pixel is allocated
	cfg, _, err := image.DecodeConfig(bytes.NewReader(b.Data))
	if err != nil {
		return nil, &DecodeError{Name: b.Name, Err: err}
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > int64(d.MaxPixels) {
		return nil, &DecodeError{Name: b.Name, Err: fmt.Errorf("image is %dx%d, larger than %d pixels", cfg.Width, cfg.Height, d.MaxPixels)}
	}

	img, format, err := image.Decode(bytes.NewReader(b.Data))
	if err != nil {
		return nil, &DecodeError{Name: b.Name, Err: err}
	}
	if format != want {
		return nil, &DecodeError{Name: b.Name, Err: fmt.Errorf("content sniffed as %s but decoded as %s", want, format)}
	}

	out := &Image{
		Name:     b.Name,
		Format:   format,
		MIMEType: mime,
		Digest:   Digest(b.Data),
		Pixels:   img,
		Data:     b.Data,
	}

	resized := false
	if uint(img.Bounds().Dx()) > d.MaxWidth {
		img = resize.Resize(d.MaxWidth, 0, img, resize.Lanczos3)
		out.Pixels = img
		resized = true
	}

	// the model accepts jpeg, png and webp as-is; gif and any scaled image are re-encoded
	if resized || format == "gif" {
		if err := out.encode(); err != nil {
			return nil, &DecodeError{Name: b.Name, Err: err}
		}
	}

	bounds := out.Pixels.Bounds()
	out.Width, out.Height = bounds.Dx(), bounds.Dy()
	return out, nil
}

// acceptedType walks the sniffed type and its parents, so subtypes such as animated PNG
// resolve to the format that decodes them.
func acceptedType(m *mimetype.MIME) (mime, format string) {
	for ; m != nil; m = m.Parent() {
		for want, f := range accepted {
			if m.Is(want) {
				return want, f
			}
		}
	}
	return "", ""
}

func (i *Image) encode() error {
	var buf bytes.Buffer
	switch i.Format {
	case "png", "gif":
		if err := png.Encode(&buf, i.Pixels); err != nil {
			return fmt.Errorf("failed to encode png: %w", err)
		}
		i.Format, i.MIMEType = "png", "image/png"
	default:
		if err := jpeg.Encode(&buf, i.Pixels, &jpeg.Options{Quality: 90}); err != nil {
			return fmt.Errorf("failed to encode jpeg: %w", err)
		}
		i.Format, i.MIMEType = "jpeg", "image/jpeg"
	}
	i.Data = buf.Bytes()
	return nil
}

// DecodeAll decodes every blob in order and aborts on the first failure.
func (d *Decoder) DecodeAll(blobs []Blob) ([]*Image, error) {
	if len(blobs) == 0 {
		return nil, ErrNoImages
	}
	images := make([]*Image, 0, len(blobs))
	for i, b := range blobs {
		img, err := d.Decode(b)
		if err != nil {
			var de *DecodeError
			if errors.As(err, &de) {
				de.Index = i
			}
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}

// Intake decodes the pantry photos and the optional hero image of one run.
func (d *Decoder) Intake(pantry []Blob, hero *Blob) (*Batch, error) {
	images, err := d.DecodeAll(pantry)
	if err != nil {
		return nil, err
	}
	batch := &Batch{Pantry: images}
	if hero != nil {
		img, err := d.Decode(*hero)
		if err != nil {
			var de *DecodeError
			if errors.As(err, &de) {
				de.Hero = true
			}
			return nil, err
		}
		batch.Hero = img
	}
	return batch, nil
}
