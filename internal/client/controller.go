package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"eventcard/internal/domain"
	"eventcard/internal/infra/logging"
)

const (
	GeneratePath = "/api/generate-image"

	maxErrorBody = 4 << 10
)

// Option configures a FormController.
type Option func(*FormController)

// WithHTTPClient replaces the default client with a 60s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(fc *FormController) { fc.http = c }
}

// FormController is the form's state machine. All methods are safe for
// concurrent use.
type FormController struct {
	endpoint string
	http     *http.Client
	platform Platform

	mu    sync.Mutex
	state State
}

// NewFormController posts to baseURL + GeneratePath.
func NewFormController(baseURL string, p Platform, opts ...Option) *FormController {
	fc := &FormController{
		endpoint: strings.TrimRight(baseURL, "/") + GeneratePath,
		http:     &http.Client{Timeout: 60 * time.Second},
		platform: p,
	}
	for _, opt := range opts {
		opt(fc)
	}
	return fc
}

// State returns a copy of the current state.
func (fc *FormController) State() State {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	s := fc.state
	if s.File != nil {
		f := *s.File
		s.File = &f
	}
	return s
}

func (fc *FormController) SetName(name string) {
	fc.mu.Lock()
	fc.state.Name = name
	fc.mu.Unlock()
}

func (fc *FormController) SetRole(role string) {
	fc.mu.Lock()
	fc.state.Role = role
	fc.mu.Unlock()
}

// SelectFile stores the file and its preview. A nil file is ignored.
func (fc *FormController) SelectFile(f *File) {
	if f == nil {
		return
	}
	fc.mu.Lock()
	fc.state.File = f
	fc.state.PreviewURL = domain.DataURI(f.ContentType, f.Data)
	fc.mu.Unlock()
}

// CanGenerate reports whether the generate action is enabled.
func (fc *FormController) CanGenerate() bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.complete() && fc.state.Phase != Submitting
}

func (fc *FormController) complete() bool {
	return fc.state.Name != "" && fc.state.Role != "" && fc.state.File != nil
}

// Generate submits the form. With incomplete input it does nothing and returns
// nil. A second call while one is in flight returns ErrBusy. Failures are
// reported to the user once and returned; the previous result is kept.
func (fc *FormController) Generate(ctx context.Context) (err error) {
	fc.mu.Lock()
	if !fc.complete() {
		fc.mu.Unlock()
		return nil
	}
	if fc.state.Phase == Submitting {
		fc.mu.Unlock()
		return ErrBusy
	}
	fc.state.Phase = Submitting
	name, role, file := fc.state.Name, fc.state.Role, *fc.state.File
	fc.mu.Unlock()

	var png []byte
	defer func() {
		fc.mu.Lock()
		if err != nil {
			fc.state.Phase = Failed
		} else {
			fc.state.Phase = Succeeded
			fc.state.Result = png
			fc.state.ResultURL = domain.DataURI("image/png", png)
		}
		fc.mu.Unlock()

		if err != nil {
			logging.Error("Image generation failed", "error", err)
			fc.platform.Notify(GenerateFailedMessage)
		}
	}()

	png, err = fc.post(ctx, name, role, file)
	return err
}

func (fc *FormController) post(ctx context.Context, name, role string, file File) ([]byte, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("fullName", name); err != nil {
		return nil, err
	}
	if err := w.WriteField("role", role); err != nil {
		return nil, err
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="profileImage"; filename=%q`, file.Name))
	ct := file.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	pw, err := w.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := pw.Write(file.Data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fc.endpoint, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := fc.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", fc.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read card: %w", err)
	}
	return data, nil
}

// Download saves the last card under a name derived from the entered name.
// Without a result it does nothing.
func (fc *FormController) Download() error {
	fc.mu.Lock()
	name, result := fc.state.Name, fc.state.Result
	fc.mu.Unlock()
	if result == nil {
		return nil
	}
	return fc.platform.Save(domain.DownloadFilename(name), result)
}

// Share hands the last card to a native share target, or copies its URL to
// the clipboard when the platform cannot share files. Errors are only logged.
func (fc *FormController) Share(ctx context.Context) {
	fc.mu.Lock()
	url, result := fc.state.ResultURL, fc.state.Result
	fc.mu.Unlock()
	if result == nil {
		return
	}

	if fc.platform.CanShareFiles() {
		err := fc.platform.ShareFiles(ctx, ShareRequest{
			Title:       ShareTitle,
			Text:        ShareText,
			Filename:    domain.ShareFilename,
			ContentType: "image/png",
			Data:        result,
		})
		if err != nil {
			logging.Error("Share failed", "error", err)
		}
		return
	}

	if err := fc.platform.CopyToClipboard(url); err != nil {
		logging.Error("Share failed", "error", err)
		return
	}
	fc.platform.Notify(LinkCopiedMessage)
}
