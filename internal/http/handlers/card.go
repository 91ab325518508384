// Package handlers contains the HTTP handlers of the card service.
package handlers

import (
	"context"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"eventcard/internal/config"
	"eventcard/internal/domain"
	"eventcard/internal/http/middleware"
	"eventcard/internal/infra/cache"
	"eventcard/internal/infra/logging"
	"eventcard/internal/infra/metrics"
	"eventcard/internal/render"
)

const (
	// FailureMessage is the whole body of every failed generation. The reason
	// is only logged.
	FailureMessage = "Failed to generate image"

	fieldFullName = "fullName"
	fieldRole     = "role"
	fieldImage    = "profileImage"
)

// CardService renders cards from form submissions. It keeps no per-request
// state, so concurrent requests are independent.
type CardService struct {
	Config config.Config

	raster render.Rasterizer
	cards  *cache.Cards
}

// NewCardService wires a rasterizer and an optional card cache.
func NewCardService(cfg config.Config, r render.Rasterizer, cards *cache.Cards) *CardService {
	return &CardService{Config: cfg, raster: r, cards: cards}
}

// HandleGenerate answers POST /api/generate-image with a 1200x675 PNG, or a
// 500 carrying FailureMessage.
func (svc *CardService) HandleGenerate(c *fiber.Ctx) error {
	requestID := middleware.RequestID(c)

	png, fullName, err := svc.generate(c)
	if err != nil {
		logging.Error("Card generation failed", "error", err, "request_id", requestID)
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		return c.Status(fiber.StatusInternalServerError).SendString(FailureMessage)
	}

	logging.Info("Card generated", "bytes", len(png), "engine", svc.raster.Name(), "request_id", requestID)
	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderContentDisposition, contentDisposition(fullName))
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(png)
}

func (svc *CardService) generate(c *fiber.Ctx) ([]byte, string, error) {
	sub, err := readSubmission(c, svc.Config.Limits.MaxUploadBytes)
	if err != nil {
		return nil, "", err
	}
	avatar, err := domain.NormalizeSubmission(sub, svc.Config.Limits.MaxImageBytes)
	if err != nil {
		return nil, "", err
	}
	layout := domain.BuildLayout(sub, avatar, svc.baseURL(c))

	var key string
	if svc.cards != nil {
		key = cache.Key(svc.raster.Name(), layout)
		cached, ok := svc.cards.Get(c.UserContext(), key)
		metrics.ObserveCache(ok)
		if ok {
			return cached, sub.FullName, nil
		}
	}

	png, err := svc.rasterize(c.UserContext(), layout)
	if err != nil {
		return nil, "", err
	}

	if svc.cards != nil {
		svc.cards.Set(c.UserContext(), key, png)
	}
	return png, sub.FullName, nil
}

// contentDisposition names the card after the person. Non-ASCII names are
// encoded per RFC 2231 by mime.FormatMediaType.
func contentDisposition(fullName string) string {
	if v := mime.FormatMediaType("inline", map[string]string{"filename": domain.DownloadFilename(fullName)}); v != "" {
		return v
	}
	return `inline; filename="` + domain.ShareFilename + `"`
}

func (svc *CardService) rasterize(ctx context.Context, layout domain.Layout) ([]byte, error) {
	if secs := svc.Config.Render.TimeoutSecs; secs > 0 {
		var cancel context.CancelFunc
		// Chrome applies the same limit per tab; this also bounds acquire and retry.
		ctx, cancel = context.WithTimeout(ctx, 2*time.Duration(secs)*time.Second)
		defer cancel()
	}

	metrics.RendersInFlight.Inc()
	defer metrics.RendersInFlight.Dec()

	start := time.Now()
	png, err := svc.raster.Rasterize(ctx, layout)
	if err == nil && len(png) == 0 {
		err = domain.ErrEmptyRender
	}
	metrics.ObserveRender(svc.raster.Name(), err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("rasterize with %s: %w", svc.raster.Name(), err)
	}
	return png, nil
}

// baseURL is where the rasterizer reaches this service's static assets.
func (svc *CardService) baseURL(c *fiber.Ctx) string {
	if u := svc.Config.BaseURL(); u != "" {
		return u
	}
	return c.BaseURL()
}

// readSubmission reads the form. Absent fields become empty strings; an absent
// or empty file part means no image.
func readSubmission(c *fiber.Ctx, maxUploadBytes int) (domain.Submission, error) {
	sub := domain.Submission{
		FullName: c.FormValue(fieldFullName),
		Role:     c.FormValue(fieldRole),
	}
	if !strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm) {
		return sub, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return sub, fmt.Errorf("parse multipart form: %w", err)
	}
	files := form.File[fieldImage]
	if len(files) == 0 || files[0].Size == 0 {
		return sub, nil
	}
	fh := files[0]
	if maxUploadBytes > 0 && fh.Size > int64(maxUploadBytes) {
		return sub, fmt.Errorf("%w: %d bytes", domain.ErrImageTooLarge, fh.Size)
	}

	f, err := fh.Open()
	if err != nil {
		return sub, fmt.Errorf("%w: %v", domain.ErrImageUnreadable, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return sub, fmt.Errorf("%w: %v", domain.ErrImageUnreadable, err)
	}

	sub.Image = &domain.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Data:        data,
	}
	return sub, nil
}
