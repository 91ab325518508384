package client

import "context"

// User-facing texts.
const (
	GenerateFailedMessage = "Something went wrong while generating the image."
	LinkCopiedMessage     = "Link copied to clipboard!"

	ShareTitle = "Blockchain Week"
	ShareText  = "I will be attending Blockchain Week 2025!"
)

// ShareRequest is one file handed to a native share target.
type ShareRequest struct {
	Title       string
	Text        string
	Filename    string
	ContentType string
	Data        []byte
}

// Platform is what the controller needs from its host: a browser, a terminal
// or a test double.
type Platform interface {
	Notify(msg string)
	Save(filename string, data []byte) error
	CanShareFiles() bool
	ShareFiles(ctx context.Context, req ShareRequest) error
	CopyToClipboard(text string) error
}
