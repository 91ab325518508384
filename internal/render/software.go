package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"eventcard/internal/config"
	"eventcard/internal/domain"
	"eventcard/internal/infra/logging"
)

// Fetcher loads an asset referenced by URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) { return f(ctx, url) }

// HTTPFetcher fetches assets over HTTP.
type HTTPFetcher struct {
	Client *http.Client
}

func (h HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 16<<20))
}

// Software draws layouts in-process. It needs no browser and is deterministic,
// which makes it the engine for tests and for hosts without Chrome. Text is
// drawn with a scaled bitmap face, so typography is coarser than Chrome's.
type Software struct {
	fetch Fetcher
}

// NewSoftware returns a software rasterizer. A nil fetcher uses HTTP with a short timeout.
// SVG images cannot be decoded here; an SVG avatar or placeholder is drawn as
// the built-in silhouette instead.
func NewSoftware(f Fetcher) *Software {
	if f == nil {
		f = HTTPFetcher{Client: &http.Client{Timeout: 5 * time.Second}}
	}
	return &Software{fetch: f}
}

func (s *Software) Name() string { return config.EngineSoftware }

// Rasterize composes the card and encodes it as PNG.
func (s *Software) Rasterize(ctx context.Context, l domain.Layout) ([]byte, error) {
	if l.Width <= 0 || l.Height <= 0 {
		return nil, fmt.Errorf("invalid canvas %dx%d", l.Width, l.Height)
	}

	canvas := image.NewNRGBA(image.Rect(0, 0, l.Width, l.Height))
	fillGradient(canvas, l.Background)

	// Left column: the illustration. Missing art renders blank, as in a browser.
	if img, err := s.loadImage(ctx, l.Illustration.URL); err != nil {
		logging.Warn("Card illustration unavailable", "url", l.Illustration.URL, "error", err)
	} else {
		art := imaging.Resize(img, l.Illustration.Width, l.Illustration.Height, imaging.Lanczos)
		canvas = imaging.Overlay(canvas, art, image.Pt(l.Padding, l.Padding), 1.0)
	}

	// Right column spans from the illustration to the right padding; items are centered in it.
	colLeft := l.Padding + l.Illustration.Width
	colRight := l.Width - l.Padding
	centerX := (colLeft + colRight) / 2

	frame := l.Avatar
	frameTop := l.Padding
	frameLeft := centerX - frame.Diameter/2
	border := parseHex(frame.BorderColor)
	drawDisc(canvas, frameLeft, frameTop, frame.Diameter, image.NewUniform(border))

	inner := frame.Diameter - 2*frame.Border
	if inner > 0 {
		var face image.Image
		if img, err := s.loadImage(ctx, frame.Src); err != nil {
			if !frame.Placeholder {
				logging.Warn("Card avatar could not be drawn; using silhouette", "error", err)
			}
			face = silhouette(inner)
		} else {
			face = imaging.Fill(img, inner, inner, imaging.Center, imaging.Lanczos)
		}
		drawDiscImage(canvas, frameLeft+frame.Border, frameTop+frame.Border, inner, face)
	}

	y := frameTop + frame.Diameter + frame.MarginBottom
	for _, line := range l.Lines {
		text := renderText(line)
		canvas = imaging.Overlay(canvas, text, image.Pt(centerX-text.Bounds().Dx()/2, y), 1.0)
		y += text.Bounds().Dy() + line.FontSize/5 + line.Gap
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode card: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Software) loadImage(ctx context.Context, src string) (image.Image, error) {
	var data []byte
	if strings.HasPrefix(src, "data:") {
		_, payload, ok := strings.Cut(src, ",")
		if !ok || !strings.Contains(src[:len(src)-len(payload)], ";base64") {
			return nil, errors.New("unsupported data uri")
		}
		raw, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, err
		}
		data = raw
	} else {
		if src == "" {
			return nil, errors.New("empty source")
		}
		raw, err := s.fetch.Fetch(ctx, src)
		if err != nil {
			return nil, err
		}
		data = raw
	}
	return imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
}

// fillGradient paints a CSS-style linear gradient: the angle points from the
// start color toward the end color, 0deg being "to top".
func fillGradient(dst *image.NRGBA, g domain.Gradient) {
	b := dst.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	rad := float64(g.Angle) * math.Pi / 180
	dx, dy := math.Sin(rad), -math.Cos(rad)
	length := math.Abs(w*dx) + math.Abs(h*dy)
	if length == 0 {
		length = 1
	}
	stops := make([]gradientStop, len(g.Stops))
	for i, s := range g.Stops {
		stops[i].c = parseHex(s.Color)
		stops[i].off = s.Offset
	}

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			px, py := float64(x)+0.5-w/2, float64(y)+0.5-h/2
			t := (px*dx+py*dy)/length + 0.5
			dst.SetNRGBA(x, y, colorAt(stops, t))
		}
	}
}

type gradientStop struct {
	c   color.NRGBA
	off float64
}

func colorAt(stops []gradientStop, t float64) color.NRGBA {
	if len(stops) == 0 {
		return color.NRGBA{A: 0xff}
	}
	if t <= stops[0].off {
		return stops[0].c
	}
	for i := 1; i < len(stops); i++ {
		if t <= stops[i].off {
			a, b := stops[i-1], stops[i]
			f := (t - a.off) / (b.off - a.off)
			return color.NRGBA{
				R: lerp(a.c.R, b.c.R, f),
				G: lerp(a.c.G, b.c.G, f),
				B: lerp(a.c.B, b.c.B, f),
				A: lerp(a.c.A, b.c.A, f),
			}
		}
	}
	return stops[len(stops)-1].c
}

func lerp(a, b uint8, f float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*f))
}

// disc is an anti-aliased circular alpha mask of the given diameter.
type disc struct {
	d int
}

func (c disc) ColorModel() color.Model { return color.AlphaModel }
func (c disc) Bounds() image.Rectangle { return image.Rect(0, 0, c.d, c.d) }
func (c disc) At(x, y int) color.Color {
	r := float64(c.d) / 2
	dist := math.Hypot(float64(x)+0.5-r, float64(y)+0.5-r)
	cover := r - dist + 0.5
	switch {
	case cover >= 1:
		return color.Alpha{A: 0xff}
	case cover <= 0:
		return color.Alpha{}
	default:
		return color.Alpha{A: uint8(cover * 0xff)}
	}
}

func drawDisc(dst *image.NRGBA, left, top, d int, src image.Image) {
	r := image.Rect(left, top, left+d, top+d)
	draw.DrawMask(dst, r, src, image.Point{}, disc{d: d}, image.Point{}, draw.Over)
}

func drawDiscImage(dst *image.NRGBA, left, top, d int, src image.Image) {
	r := image.Rect(left, top, left+d, top+d)
	draw.DrawMask(dst, r, src, src.Bounds().Min, disc{d: d}, image.Point{}, draw.Over)
}

// Silhouette colors and geometry follow web/static/placeholder.svg on a 264 grid.
var (
	silhouetteBackground = color.NRGBA{R: 0xe5, G: 0xe7, B: 0xeb, A: 0xff}
	silhouetteFigure     = color.NRGBA{R: 0x9c, G: 0xa3, B: 0xaf, A: 0xff}
)

// silhouette draws the generic person used when no avatar image can be decoded.
func silhouette(d int) image.Image {
	img := imaging.New(d, d, silhouetteBackground)
	scale := func(v int) int { return v * d / 264 }
	fig := image.NewUniform(silhouetteFigure)

	r := scale(48)
	drawDisc(img, scale(132)-r, scale(104)-r, 2*r, fig)

	// Shoulders: upper half of an ellipse standing on y=236.
	cx, cy := float64(scale(132)), float64(scale(236))
	rx, ry := float64(scale(88)), float64(scale(76))
	for y := scale(160); y < scale(236); y++ {
		for x := scale(44); x < scale(220); x++ {
			nx, ny := (float64(x)+0.5-cx)/rx, (float64(y)+0.5-cy)/ry
			if nx*nx+ny*ny <= 1 {
				img.SetNRGBA(x, y, silhouetteFigure)
			}
		}
	}
	return img
}

// renderText draws one caption with the bitmap face and scales it to the line's font size.
func renderText(line domain.TextLine) image.Image {
	face := basicfont.Face7x13
	const glyphW, glyphH, ascent = 7, 13, 11

	n := len([]rune(line.Text))
	if n == 0 {
		return image.NewNRGBA(image.Rect(0, 0, 1, line.FontSize))
	}
	small := image.NewNRGBA(image.Rect(0, 0, n*glyphW+1, glyphH))
	col := image.NewUniform(parseHex(line.Color))
	passes := []int{0}
	if line.Bold {
		passes = append(passes, 1)
	}
	for _, dx := range passes {
		d := &font.Drawer{
			Dst:  small,
			Src:  col,
			Face: face,
			Dot:  fixed.P(dx, ascent),
		}
		d.DrawString(line.Text)
	}

	scale := float64(line.FontSize) / glyphH
	w := int(math.Round(float64(small.Bounds().Dx()) * scale))
	return imaging.Resize(small, w, line.FontSize, imaging.NearestNeighbor)
}

// parseHex reads #rgb or #rrggbb; anything else is opaque black.
func parseHex(s string) color.NRGBA {
	c := color.NRGBA{A: 0xff}
	s = strings.TrimPrefix(s, "#")
	switch len(s) {
	case 6:
		_, _ = fmt.Sscanf(s, "%2x%2x%2x", &c.R, &c.G, &c.B)
	case 3:
		_, _ = fmt.Sscanf(s, "%1x%1x%1x", &c.R, &c.G, &c.B)
		c.R *= 17
		c.G *= 17
		c.B *= 17
	}
	return c
}
