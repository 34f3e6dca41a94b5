package vision

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cherry/internal/config"
)

// -- Test Helpers --

type stubGrabber struct {
	img image.Image
	err error
}

func (s stubGrabber) Grab(context.Context) (image.Image, error) { return s.img, s.err }

type stubOCR struct {
	text string
	err  error
	seen string
}

func (s *stubOCR) Recognize(_ context.Context, path string) (string, error) {
	s.seen = path
	return s.text, s.err
}

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

// framedWindow draws a 4px black outline on a white screen.
func framedWindow() *image.RGBA {
	img := solid(1280, 800, color.White)
	black := &image.Uniform{C: color.Black}
	outline := image.Rect(100, 100, 600, 500)
	for _, r := range []image.Rectangle{
		{Min: outline.Min, Max: image.Pt(outline.Max.X, outline.Min.Y+4)},
		{Min: image.Pt(outline.Min.X, outline.Max.Y-4), Max: outline.Max},
		{Min: outline.Min, Max: image.Pt(outline.Min.X+4, outline.Max.Y)},
		{Min: image.Pt(outline.Max.X-4, outline.Min.Y), Max: outline.Max},
	} {
		draw.Draw(img, r, black, image.Point{}, draw.Src)
	}
	return img
}

func newTestObserver(t *testing.T, g Grabber, ocr OCR) *Observer {
	t.Helper()
	cfg := config.VisionConfig{Enabled: true, ScreenshotDir: filepath.Join(t.TempDir(), "shots")}
	o := NewObserver(cfg, g, ocr, zap.NewNop())
	o.now = func() time.Time { return time.Date(2026, 3, 1, 12, 30, 45, 123456000, time.UTC) }
	return o
}

// -- Test Cases: Analysis --

func TestAnalyze_DarkEmptyScreen(t *testing.T) {
	a := Analyze(solid(800, 600, color.Black))

	assert.True(t, a.IsDark())
	assert.False(t, a.HasActivity())
	assert.Empty(t, a.Windows)
}

func TestAnalyze_DetectsFramedWindow(t *testing.T) {
	a := Analyze(framedWindow())

	assert.False(t, a.IsDark())
	require.Len(t, a.Windows, 1)
	w := a.Windows[0]
	assert.InDelta(t, 100, w.Min.X, 8)
	assert.InDelta(t, 600, w.Max.X, 8)
	assert.Greater(t, w.Dx()*w.Dy(), minWindowArea)
}

func TestAnalyze_SmallShapesIgnored(t *testing.T) {
	img := solid(640, 480, color.White)
	draw.Draw(img, image.Rect(10, 10, 40, 40), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)

	assert.Empty(t, Analyze(img).Windows)
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		text string
		a    Analysis
		want string
	}{
		{
			name: "bright and quiet",
			a:    Analysis{Brightness: 200},
			want: "Screen appears bright",
		},
		{
			name: "everything",
			text: "File Edit View",
			a:    Analysis{Brightness: 20, EdgeDensity: 30, Windows: make([]image.Rectangle, 3)},
			want: "Screen contains text: File Edit View. Screen appears dark. Screen shows visual activity. Detected 3 potential windows/areas",
		},
		{
			name: "threshold is strict",
			a:    Analysis{Brightness: 100, EdgeDensity: 10},
			want: "Screen appears bright",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Describe(tt.text, tt.a))
		})
	}
}

func TestDescribe_TruncatesText(t *testing.T) {
	desc := Describe(strings.Repeat("é", 600), Analysis{Brightness: 200})

	prefix := "Screen contains text: "
	require.True(t, strings.HasPrefix(desc, prefix))
	text := strings.TrimSuffix(strings.TrimPrefix(desc, prefix), ". Screen appears bright")
	assert.Equal(t, 500, len([]rune(text)))
}

// -- Test Cases: Observer --

func TestObserver_CaptureSavesAndDescribes(t *testing.T) {
	ocr := &stubOCR{text: "Welcome"}
	o := newTestObserver(t, stubGrabber{img: framedWindow()}, ocr)

	sc := o.Capture(context.Background())

	assert.False(t, sc.Degraded)
	assert.Equal(t, "screenshot_2026-03-01T12_30_45.123456.png", filepath.Base(sc.ArtifactPath))
	assert.FileExists(t, sc.ArtifactPath)
	assert.Equal(t, sc.ArtifactPath, ocr.seen)
	assert.True(t, strings.HasPrefix(sc.Description, "Screen contains text: Welcome. Screen appears bright"))
	assert.Contains(t, sc.Description, "Detected 1 potential windows/areas")
}

func TestObserver_OCRFailureIsNotDegraded(t *testing.T) {
	o := newTestObserver(t, stubGrabber{img: solid(200, 100, color.Black)}, &stubOCR{err: errors.New("tesseract missing")})

	sc := o.Capture(context.Background())

	assert.False(t, sc.Degraded)
	assert.Equal(t, "Screen appears dark", sc.Description)
}

func TestObserver_GrabFailureDegrades(t *testing.T) {
	o := newTestObserver(t, stubGrabber{err: errors.New("no display")}, nil)

	sc := o.Capture(context.Background())

	assert.True(t, sc.Degraded)
	assert.Equal(t, DegradedDescription, sc.Description)
	assert.Empty(t, sc.ArtifactPath)
}

func TestObserver_Disabled(t *testing.T) {
	o := NewObserver(config.VisionConfig{Enabled: false}, stubGrabber{}, nil, zap.NewNop())

	assert.True(t, o.Capture(context.Background()).Degraded)
	_, err := o.Screenshot(context.Background())
	assert.ErrorIs(t, err, ErrCaptureDisabled)
}

func TestObserver_ScreenshotNamesAreUnique(t *testing.T) {
	o := newTestObserver(t, stubGrabber{img: solid(10, 10, color.White)}, nil)

	first, err := o.Screenshot(context.Background())
	require.NoError(t, err)
	second, err := o.Screenshot(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	entries, err := os.ReadDir(filepath.Dir(first))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestCleanOCRText(t *testing.T) {
	assert.Equal(t, "Hello world again", cleanOCRText("  Hello\n\nworld \t again\n\f"))
}
