// Package client drives the card form: it holds what the user entered, submits
// it to the card service and hands the result to the platform for saving or
// sharing.
package client

import "errors"

// ErrBusy is returned by Generate while a previous generation is in flight.
var ErrBusy = errors.New("generation already in progress")

// Phase is the lifecycle of one form.
type Phase int

const (
	Idle Phase = iota
	Submitting
	Succeeded
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// File is a selected profile image.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// State is everything the form shows. Result and ResultURL keep the last
// successful card, also across later failures.
type State struct {
	Name       string
	Role       string
	File       *File
	PreviewURL string
	ResultURL  string
	Result     []byte
	Phase      Phase
}
