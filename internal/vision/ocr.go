// File: internal/vision/ocr.go
package vision

import (
	"context"
	"strings"
	"time"

	"github.com/xkilldash9x/cherry/internal/desktop"
)

// OCR extracts text from an image file.
type OCR interface {
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// TesseractCLI runs the tesseract binary, writing recognised text to stdout.
type TesseractCLI struct {
	Path    string
	Timeout time.Duration
	Runner  desktop.CommandRunner
}

// Recognize returns the trimmed text tesseract found in the image.
func (t TesseractCLI) Recognize(ctx context.Context, imagePath string) (string, error) {
	path := t.Path
	if path == "" {
		path = "tesseract"
	}
	runner := t.Runner
	if runner == nil {
		runner = desktop.ExecRunner{}
	}
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	out, err := runner.Run(ctx, path, imagePath, "stdout", "--psm", "3")
	if err != nil {
		return "", err
	}
	return cleanOCRText(string(out)), nil
}

// cleanOCRText collapses runs of whitespace so the text reads as one paragraph.
func cleanOCRText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
