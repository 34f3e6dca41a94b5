// File: internal/vision/observer.go
package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/cherry/internal/config"
)

const (
	// DegradedDescription is reported whenever a frame cannot be captured or analysed.
	DegradedDescription = "Error analyzing screen - will attempt action based on goal"
	fallbackDescription = "Screen analysis available"
	maxOCRText          = 500
)

// ErrCaptureDisabled is returned by Screenshot when vision is turned off.
var ErrCaptureDisabled = errors.New("screen capture is disabled")

// ScreenContext is the textual summary of one observation.
type ScreenContext struct {
	Description  string
	ArtifactPath string
	CapturedAt   time.Time
	Degraded     bool
}

// Observer captures the screen and turns it into a ScreenContext.
type Observer struct {
	enabled bool
	grabber Grabber
	ocr     OCR
	dir     string
	logger  *zap.Logger
	now     func() time.Time

	// Two captures in the same microsecond get a sequence suffix.
	mu        sync.Mutex
	lastStamp string
	seq       int
}

// NewObserver creates an Observer. A nil ocr disables text extraction.
func NewObserver(cfg config.VisionConfig, grabber Grabber, ocr OCR, logger *zap.Logger) *Observer {
	if grabber == nil {
		grabber = DisplayGrabber{Region: cfg.Region}
	}
	return &Observer{
		enabled: cfg.Enabled,
		grabber: grabber,
		ocr:     ocr,
		dir:     cfg.ScreenshotDir,
		logger:  logger.Named("vision"),
		now:     time.Now,
	}
}

// Capture observes the screen. It never fails: problems are logged and
// reported as a degraded context the decision engine can still act on.
func (o *Observer) Capture(ctx context.Context) ScreenContext {
	sc := ScreenContext{CapturedAt: o.now()}
	if !o.enabled {
		sc.Description = DegradedDescription
		sc.Degraded = true
		return sc
	}

	img, path, err := o.grabAndSave(ctx)
	if err != nil {
		o.logger.Warn("Screen capture failed", zap.Error(err))
		sc.Description = DegradedDescription
		sc.Degraded = true
		return sc
	}
	sc.ArtifactPath = path

	var (
		text     string
		analysis Analysis
	)
	g, gctx := errgroup.WithContext(ctx)
	if o.ocr != nil {
		g.Go(func() error {
			t, err := o.ocr.Recognize(gctx, path)
			if err != nil {
				// Missing text is not a failed observation.
				o.logger.Debug("OCR failed", zap.String("path", path), zap.Error(err))
				return nil
			}
			text = t
			return nil
		})
	}
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("screen analysis panicked: %v", r)
			}
		}()
		analysis = Analyze(img)
		return nil
	})
	if err := g.Wait(); err != nil {
		o.logger.Error("Screen analysis failed", zap.Error(err))
		sc.Description = DegradedDescription
		sc.Degraded = true
		return sc
	}

	sc.Description = Describe(text, analysis)
	o.logger.Debug("Screen observed", zap.String("path", path), zap.Int("description_len", len(sc.Description)))
	return sc
}

// Screenshot captures and saves a frame without analysing it.
func (o *Observer) Screenshot(ctx context.Context) (string, error) {
	if !o.enabled {
		return "", ErrCaptureDisabled
	}
	_, path, err := o.grabAndSave(ctx)
	return path, err
}

func (o *Observer) grabAndSave(ctx context.Context) (image.Image, string, error) {
	img, err := o.grabber.Grab(ctx)
	if err != nil {
		return nil, "", err
	}
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	path := filepath.Join(o.dir, o.nextName())
	if err := imaging.Save(img, path); err != nil {
		return nil, "", fmt.Errorf("failed to save screenshot: %w", err)
	}
	return img, path, nil
}

// nextName returns screenshot_<timestamp>.png, with ':' kept out of the name.
func (o *Observer) nextName() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	stamp := o.now().Format("2006-01-02T15_04_05.000000")
	if stamp == o.lastStamp {
		o.seq++
		return fmt.Sprintf("screenshot_%s_%d.png", stamp, o.seq)
	}
	o.lastStamp, o.seq = stamp, 0
	return "screenshot_" + stamp + ".png"
}

// Describe composes the textual screen description from OCR text and pixel
// heuristics, joining the parts with ". ".
func Describe(text string, a Analysis) string {
	var parts []string
	if text = strings.TrimSpace(text); text != "" {
		parts = append(parts, "Screen contains text: "+truncateRunes(text, maxOCRText))
	}
	if a.IsDark() {
		parts = append(parts, "Screen appears dark")
	} else {
		parts = append(parts, "Screen appears bright")
	}
	if a.HasActivity() {
		parts = append(parts, "Screen shows visual activity")
	}
	if n := len(a.Windows); n > 0 {
		parts = append(parts, fmt.Sprintf("Detected %d potential windows/areas", n))
	}
	if len(parts) == 0 {
		return fallbackDescription
	}
	return strings.Join(parts, ". ")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
