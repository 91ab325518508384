package domain

import (
	"encoding/base64"
	"strings"
)

const (
	// PlaceholderAvatarPath is served by the service itself and used when no
	// profile image was submitted.
	PlaceholderAvatarPath = "/placeholder.svg"
	// IllustrationPath is the static background illustration.
	IllustrationPath = "/images/sidebar.png"

	defaultImageType = "image/png"
)

// Upload is a submitted file after it was read into memory.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Submission is what the form posts. Missing fields are empty strings and a
// missing image is a nil Image.
type Submission struct {
	FullName string
	Role     string
	Image    *Upload
}

// AvatarRef is either an inline data URI or the placeholder path, never both.
type AvatarRef struct {
	DataURI     string
	Placeholder string
}

// IsPlaceholder reports whether no image was uploaded.
func (a AvatarRef) IsPlaceholder() bool {
	return a.DataURI == ""
}

// Src returns a reference a rasterizer can load. The placeholder path is
// resolved against baseURL because the rasterizer loads assets over the network.
func (a AvatarRef) Src(baseURL string) string {
	if a.DataURI != "" {
		return a.DataURI
	}
	p := a.Placeholder
	if p == "" {
		p = PlaceholderAvatarPath
	}
	return strings.TrimRight(baseURL, "/") + p
}

// NormalizeSubmission turns the submission into the avatar reference used by
// the layout. Uploaded bytes are checked to be a real image and large images
// are shrunk before being inlined. maxImageBytes <= 0 disables the size check.
func NormalizeSubmission(sub Submission, maxImageBytes int) (AvatarRef, error) {
	if sub.Image == nil {
		return AvatarRef{Placeholder: PlaceholderAvatarPath}, nil
	}
	if maxImageBytes > 0 && len(sub.Image.Data) > maxImageBytes {
		return AvatarRef{}, ErrImageTooLarge
	}

	data, contentType, err := prepareAvatar(sub.Image.Data, sub.Image.ContentType)
	if err != nil {
		return AvatarRef{}, err
	}
	return AvatarRef{DataURI: DataURI(contentType, data)}, nil
}

// DataURI encodes data as a base64 data URI. An empty media type becomes image/png.
func DataURI(contentType string, data []byte) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		contentType = defaultImageType
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
