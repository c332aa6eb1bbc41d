package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/draw"
)

// DefaultThumbnailWidth bounds the longest thumbnail edge.
const DefaultThumbnailWidth = 480

const thumbnailJPEGQuality = 80

// ErrDecode wraps image decoding failures.
var ErrDecode = errors.New("decode image")

// Thumbnail scales an encoded JPEG or PNG so its longest edge is at most
// maxSize. PNG sources stay PNG to keep transparency; everything else is
// re-encoded as JPEG. It returns the encoded bytes and their content type.
func Thumbnail(data []byte, maxSize int) ([]byte, string, error) {
	if maxSize <= 0 {
		maxSize = DefaultThumbnailWidth
	}

	srcImg, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrDecode, err)
	}

	bounds := srcImg.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, "", fmt.Errorf("%w: invalid image dimensions", ErrDecode)
	}

	scale := float64(maxSize) / float64(max(width, height))
	if scale > 1 {
		scale = 1
	}
	newW := max(int(float64(width)*scale), 1)
	newH := max(int(float64(height)*scale), 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), srcImg, bounds, draw.Over, nil)

	contentType := "image/jpeg"
	if format == "png" {
		contentType = "image/png"
	} else {
		format = "jpeg"
	}

	var buf bytes.Buffer
	if err := encodeImage(&buf, dst, format, thumbnailJPEGQuality); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), contentType, nil
}

func encodeImage(w io.Writer, img image.Image, format string, jpegQuality int) error {
	switch format {
	case "png":
		return png.Encode(w, img)
	case "jpeg", "jpg", "":
		q := min(max(jpegQuality, 1), 100)
		return jpeg.Encode(w, img, &jpeg.Options{Quality: q})
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}
