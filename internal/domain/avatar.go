package domain

import (
	"bytes"
	"fmt"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// AvatarMaxSide is the largest side kept as uploaded. The frame is drawn at
// AvatarDiameter, so twice that keeps the avatar sharp on hi-dpi screens.
const AvatarMaxSide = 2 * AvatarDiameter

const svgType = "image/svg+xml"

// prepareAvatar validates the upload and returns the bytes and media type to
// inline. Small images are passed through untouched with their declared type;
// larger ones are center-cropped to AvatarMaxSide and re-encoded as PNG.
func prepareAvatar(data []byte, contentType string) ([]byte, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty upload", ErrImageDecode)
	}

	if isSVG(data, contentType) {
		return data, svgType, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrImageDecode, err)
	}

	b := img.Bounds()
	if b.Dx() <= AvatarMaxSide && b.Dy() <= AvatarMaxSide {
		return data, contentType, nil
	}

	thumb := imaging.Fill(img, AvatarMaxSide, AvatarMaxSide, imaging.Center, imaging.Lanczos)
	var buf bytes.Buffer
	if err := png.Encode(&buf, thumb); err != nil {
		return nil, "", fmt.Errorf("encode avatar: %w", err)
	}
	return buf.Bytes(), defaultImageType, nil
}

func isSVG(data []byte, contentType string) bool {
	if strings.HasPrefix(strings.ToLower(contentType), svgType) {
		return bytes.Contains(data, []byte("<svg"))
	}
	return false
}
