package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventcard/internal/config"
	"eventcard/internal/render"
)

func minimalConfig() config.Config {
	var cfg config.Config
	cfg.Render.Engine = config.EngineSoftware
	cfg.Render.TimeoutSecs = 5
	cfg.Limits.MaxUploadBytes = 1 << 20
	cfg.Limits.MaxImageBytes = 1 << 20
	return cfg
}

func offlineSoftware() render.Rasterizer {
	return render.NewSoftware(render.FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		return nil, errors.New("offline")
	}))
}

func get(t *testing.T, d Deps, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, path, nil)
	require.NoError(t, err)
	resp, err := New(d).Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestNew_RoutesAndJSON404(t *testing.T) {
	d := Deps{Config: minimalConfig(), Rasterizer: offlineSoftware()}

	stats := get(t, d, "/ops/chrome/stats")
	assert.Equal(t, http.StatusOK, stats.StatusCode)

	resp := get(t, d, "/does-not-exist")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json"))

	var body struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 404, body.Error.Code)
	assert.Equal(t, "Not Found", body.Error.Message)
}

func TestNew_OpsEndpoints(t *testing.T) {
	d := Deps{Config: minimalConfig(), Rasterizer: offlineSoftware()}

	assert.Equal(t, http.StatusOK, get(t, d, "/ops/health").StatusCode)

	metrics := get(t, d, "/ops/metrics")
	require.Equal(t, http.StatusOK, metrics.StatusCode)
	body, _ := io.ReadAll(metrics.Body)
	assert.Contains(t, string(body), "eventcard_renders_in_flight")

	assert.Equal(t, http.StatusOK, get(t, d, "/ops/monitor").StatusCode)
}

func TestNew_ServesEmbeddedPageAndAssets(t *testing.T) {
	cfg := minimalConfig()
	cfg.Server.StaticDir = filepath.Join(t.TempDir(), "missing")
	d := Deps{Config: cfg, Rasterizer: offlineSoftware()}

	page := get(t, d, "/")
	require.Equal(t, http.StatusOK, page.StatusCode)
	html, _ := io.ReadAll(page.Body)
	assert.Contains(t, string(html), "Generate your volunteer/attendee card")

	svg := get(t, d, "/placeholder.svg")
	require.Equal(t, http.StatusOK, svg.StatusCode)

	art := get(t, d, "/images/sidebar.png")
	require.Equal(t, http.StatusOK, art.StatusCode)
	_, err := png.DecodeConfig(art.Body)
	assert.NoError(t, err)
}

func TestNew_StaticDirOverridesEmbedded(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "placeholder.svg"), []byte("<svg>custom</svg>"), 0o644))

	cfg := minimalConfig()
	cfg.Server.StaticDir = dir
	d := Deps{Config: cfg, Rasterizer: offlineSoftware()}

	resp := get(t, d, "/placeholder.svg")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "<svg>custom</svg>", string(body))

	// Files missing on disk still come from the embedded copy.
	assert.Equal(t, http.StatusOK, get(t, d, "/images/sidebar.png").StatusCode)
}

func TestNew_GenerateImage(t *testing.T) {
	app := New(Deps{Config: minimalConfig(), Rasterizer: offlineSoftware()})

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("fullName", "Ada Lovelace"))
	require.NoError(t, w.WriteField("role", "Speaker"))
	require.NoError(t, w.Close())

	req, err := http.NewRequest(http.MethodPost, "/api/generate-image", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 1200, img.Bounds().Dx())
	assert.Equal(t, 675, img.Bounds().Dy())
}

func TestNew_BuildsRasterizerFromConfig(t *testing.T) {
	cfg := minimalConfig()
	cfg.Render.Engine = config.EngineChrome
	resp := get(t, Deps{Config: cfg}, "/ops/chrome/stats")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "chrome", got["engine"])
}
