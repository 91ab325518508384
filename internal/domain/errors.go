package domain

import "errors"

var (
	// ErrImageUnreadable signals that the uploaded file could not be read.
	ErrImageUnreadable = errors.New("profile image unreadable")
	// ErrImageTooLarge signals an upload above the configured byte limit.
	ErrImageTooLarge = errors.New("profile image too large")
	// ErrImageDecode signals bytes that do not decode as a supported image.
	ErrImageDecode = errors.New("profile image is not a decodable image")
	// ErrEmptyRender signals a rasterizer that returned no bytes.
	ErrEmptyRender = errors.New("rasterizer returned an empty image")
)
