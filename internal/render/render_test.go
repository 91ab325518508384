package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventcard/internal/config"
	"eventcard/internal/domain"
	"eventcard/internal/infra/chrome"
)

func solidPNG(t *testing.T, c color.NRGBA, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, imaging.New(w, h, c)))
	return buf.Bytes()
}

func testLayout(t *testing.T, name, role string, avatar []byte) domain.Layout {
	t.Helper()
	ref := domain.AvatarRef{Placeholder: domain.PlaceholderAvatarPath}
	if avatar != nil {
		ref = domain.AvatarRef{DataURI: domain.DataURI("image/png", avatar)}
	}
	return domain.BuildLayout(domain.Submission{FullName: name, Role: role}, ref, "http://cards.test")
}

func offlineFetcher() Fetcher {
	return FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		return nil, errors.New("offline")
	})
}

func decode(t *testing.T, b []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	return img
}

func TestSoftware_CanvasSizeAndAvatar(t *testing.T) {
	red := color.NRGBA{R: 0xff, A: 0xff}
	r := NewSoftware(offlineFetcher())

	out, err := r.Rasterize(context.Background(), testLayout(t, "ada lovelace", "speaker", solidPNG(t, red, 100, 100)))
	require.NoError(t, err)
	require.NotEmpty(t, out)

	img := decode(t, out)
	assert.Equal(t, domain.CanvasWidth, img.Bounds().Dx())
	assert.Equal(t, domain.CanvasHeight, img.Bounds().Dy())

	// Avatar column is centered between the illustration and the right padding.
	centerX := (domain.CanvasPadding + domain.IllustrationWidth + domain.CanvasWidth - domain.CanvasPadding) / 2
	centerY := domain.CanvasPadding + domain.AvatarDiameter/2
	cr, cg, _, _ := img.At(centerX, centerY).RGBA()
	assert.Greater(t, cr>>8, uint32(240))
	assert.Less(t, cg>>8, uint32(20))

	br, bg, bb, _ := img.At(centerX, domain.CanvasPadding+domain.AvatarBorder/2).RGBA()
	assert.InDelta(t, 0x1e, br>>8, 2)
	assert.InDelta(t, 0x40, bg>>8, 2)
	assert.InDelta(t, 0xaf, bb>>8, 2)
}

func TestSoftware_DrawsFetchedIllustration(t *testing.T) {
	green := color.NRGBA{G: 0xff, A: 0xff}
	art := solidPNG(t, green, 75, 62)
	var fetched []string
	r := NewSoftware(FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		fetched = append(fetched, url)
		if strings.HasSuffix(url, domain.IllustrationPath) {
			return art, nil
		}
		return nil, errors.New("not found")
	}))

	out, err := r.Rasterize(context.Background(), testLayout(t, "a", "b", nil))
	require.NoError(t, err)

	assert.Contains(t, fetched, "http://cards.test/images/sidebar.png")
	assert.Contains(t, fetched, "http://cards.test/placeholder.svg")
	_, g, _, _ := decode(t, out).At(domain.CanvasPadding+100, domain.CanvasPadding+100).RGBA()
	assert.Greater(t, g>>8, uint32(240))
}

func TestSoftware_IdenticalInputsGiveIdenticalPixels(t *testing.T) {
	avatar := solidPNG(t, color.NRGBA{B: 0xff, A: 0xff}, 40, 40)
	r := NewSoftware(offlineFetcher())

	a, err := r.Rasterize(context.Background(), testLayout(t, "Grace Hopper", "Admiral", avatar))
	require.NoError(t, err)
	b, err := r.Rasterize(context.Background(), testLayout(t, "Grace Hopper", "Admiral", avatar))
	require.NoError(t, err)

	ia, ib := decode(t, a), decode(t, b)
	require.Equal(t, ia.Bounds(), ib.Bounds())
	for y := 0; y < ia.Bounds().Dy(); y += 3 {
		for x := 0; x < ia.Bounds().Dx(); x += 3 {
			if ia.At(x, y) != ib.At(x, y) {
				t.Fatalf("pixel (%d,%d) differs", x, y)
			}
		}
	}
}

func TestSoftware_TextIsDrawnBelowAvatar(t *testing.T) {
	r := NewSoftware(offlineFetcher())
	withText, err := r.Rasterize(context.Background(), testLayout(t, "WWWWWWWW", "WWWWWWWW", nil))
	require.NoError(t, err)
	empty := testLayout(t, "", "", nil)
	empty.Lines = nil
	withoutText, err := r.Rasterize(context.Background(), empty)
	require.NoError(t, err)

	a, b := decode(t, withText), decode(t, withoutText)
	top := domain.CanvasPadding + domain.AvatarDiameter + domain.AvatarMarginBottom
	changed := 0
	for y := top; y < top+domain.TextFontSize; y++ {
		for x := 800; x < 1160; x++ {
			if a.At(x, y) != b.At(x, y) {
				changed++
			}
		}
	}
	assert.Greater(t, changed, 100)
}

func TestSoftware_RejectsBadCanvasAndCanceledContext(t *testing.T) {
	r := NewSoftware(offlineFetcher())
	l := testLayout(t, "a", "b", nil)

	bad := l
	bad.Width = 0
	_, err := r.Rasterize(context.Background(), bad)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Rasterize(ctx, l)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseHex(t *testing.T) {
	assert.Equal(t, color.NRGBA{R: 0x1e, G: 0x40, B: 0xaf, A: 0xff}, parseHex("#1e40af"))
	assert.Equal(t, color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, parseHex("#fff"))
	assert.Equal(t, color.NRGBA{A: 0xff}, parseHex("white"))
}

func TestLayoutHTML(t *testing.T) {
	l := testLayout(t, "ada lovelace", "<b>chief</b>", []byte{1, 2, 3})
	html, err := LayoutHTML(l)
	require.NoError(t, err)

	assert.Contains(t, html, "NAME: ADA LOVELACE")
	assert.Contains(t, html, "ROLE: &lt;B&gt;CHIEF&lt;/B&gt;")
	assert.Contains(t, html, `src="data:image/png;base64,AQID"`)
	assert.Contains(t, html, `src="http://cards.test/images/sidebar.png"`)
	assert.Contains(t, html, "linear-gradient(135deg, #1e1b4b 0%, #312e81 50%, #1e40af 100%)")
	assert.Contains(t, html, "width:1200px;height:675px")
	assert.Contains(t, html, "border-radius:50%")
	assert.NotContains(t, html, "ZgotmplZ")
}

func TestNew_SelectsEngine(t *testing.T) {
	var cfg config.Config
	cfg.Render.Engine = config.EngineSoftware
	r, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "software", r.Name())

	cfg.Render.Engine = config.EngineChrome
	r, err = New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "chrome", r.Name())

	cfg.Render.Engine = "gpu"
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestChrome_ErrorWhenBinaryMissing(t *testing.T) {
	var cfg config.Config
	cfg.Render.ChromePath = "/definitely/missing/chrome"
	cfg.Render.TimeoutSecs = 1

	r := NewChrome(cfg)
	pool, err := r.Pool()
	require.NoError(t, err)
	assert.Nil(t, pool)

	_, err = r.Rasterize(context.Background(), testLayout(t, "a", "b", nil))
	assert.Error(t, err)
}

func TestChrome_ClosedPoolFails(t *testing.T) {
	var cfg config.Config
	cfg.Render.ChromePath = "/bin/true"
	cfg.Render.ChromePoolSize = 1
	cfg.Render.UserDataDir = t.TempDir()
	cfg.Render.TimeoutSecs = 1

	r := NewChrome(cfg)
	pool, err := r.Pool()
	require.NoError(t, err)
	require.NotNil(t, pool)
	r.Close()

	_, err = r.Rasterize(context.Background(), testLayout(t, "a", "b", nil))
	assert.Error(t, err)
}

func TestRenderInTab_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := renderInTab(ctx, "<html><body><div id=card></div></body></html>", 1200, 675)
	assert.Error(t, err)
}

func TestWaitForRenderReady_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, waitForRenderReady(ctx, 10*time.Millisecond))
}

func TestChrome_SaturatedPoolKeepsOtherTabs(t *testing.T) {
	var cfg config.Config
	cfg.Render.ChromePath = "/bin/true"
	cfg.Render.ChromePoolSize = 1
	cfg.Render.UserDataDir = t.TempDir()
	cfg.Render.TimeoutSecs = 1

	r := NewChrome(cfg)
	t.Cleanup(r.Close)
	pool, err := r.Pool()
	require.NoError(t, err)
	dir := pool.Stats(1).ProfileDir

	held, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer pool.Release(held, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = r.Rasterize(ctx, testLayout(t, "a", "b", nil))

	assert.ErrorIs(t, err, chrome.ErrNoFreeTab)
	st := pool.Stats(1)
	assert.Equal(t, 0, st.Restarts)
	assert.Equal(t, dir, st.ProfileDir)
	assert.NoError(t, held.Ctx.Err())
}

func TestShouldRestart(t *testing.T) {
	live := context.Background()
	done, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want bool
	}{
		{name: "success", ctx: live, err: nil, want: false},
		{name: "pool full", ctx: live, err: fmt.Errorf("%w: %w", chrome.ErrNoFreeTab, context.DeadlineExceeded), want: false},
		{name: "render timeout", ctx: live, err: context.DeadlineExceeded, want: false},
		{name: "render canceled", ctx: live, err: context.Canceled, want: false},
		{name: "target closed", ctx: live, err: errors.New("target closed"), want: true},
		{name: "websocket gone", ctx: live, err: errors.New("websocket: close 1006 (abnormal closure)"), want: true},
		{name: "request gone", ctx: done, err: errors.New("target closed"), want: false},
		{name: "page error", ctx: live, err: errors.New("net::ERR_NAME_NOT_RESOLVED"), want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, shouldRestart(tc.ctx, tc.err))
		})
	}
}

func TestSoftware_UndecodableAvatarDrawsSilhouette(t *testing.T) {
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="10" height="10"></svg>`)
	r := NewSoftware(FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		return svg, nil
	}))

	placeholder := testLayout(t, "a", "b", nil)
	upload := placeholder
	upload.Avatar.Src = domain.DataURI("image/svg+xml", svg)
	upload.Avatar.Placeholder = false

	centerX := (domain.CanvasPadding + domain.IllustrationWidth + domain.CanvasWidth - domain.CanvasPadding) / 2
	innerLeft := centerX - domain.AvatarDiameter/2 + domain.AvatarBorder
	innerTop := domain.CanvasPadding + domain.AvatarBorder

	for name, l := range map[string]domain.Layout{"placeholder": placeholder, "svg upload": upload} {
		t.Run(name, func(t *testing.T) {
			out, err := r.Rasterize(context.Background(), l)
			require.NoError(t, err)
			img := decode(t, out)

			hr, hg, hb, _ := img.At(centerX, innerTop+104).RGBA()
			assert.InDelta(t, 0x9c, hr>>8, 2)
			assert.InDelta(t, 0xa3, hg>>8, 2)
			assert.InDelta(t, 0xaf, hb>>8, 2)

			br, bg, bb, _ := img.At(innerLeft+30, innerTop+132).RGBA()
			assert.InDelta(t, 0xe5, br>>8, 2)
			assert.InDelta(t, 0xe7, bg>>8, 2)
			assert.InDelta(t, 0xeb, bb>>8, 2)
		})
	}
}
