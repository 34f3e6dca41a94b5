// File: internal/desktop/opener.go
package desktop

import (
	"context"
	"fmt"
	"net/url"
	"runtime"
	"strings"
)

// URLOpener opens a URL in the user's default browser.
type URLOpener interface {
	Open(ctx context.Context, rawURL string) error
}

// SystemOpener delegates to the platform's URL handler.
type SystemOpener struct {
	goos   string
	runner CommandRunner
}

// NewSystemOpener returns an opener for the running OS.
func NewSystemOpener(runner CommandRunner) *SystemOpener {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &SystemOpener{goos: runtime.GOOS, runner: runner}
}

// Open validates the URL and hands it to xdg-open, open or rundll32.
func (o *SystemOpener) Open(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid URL %q", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("refusing to open non-web URL scheme %q", u.Scheme)
	}

	name, args := openCommand(o.goos, u.String())
	_, err = o.runner.Run(ctx, name, args...)
	return err
}

func openCommand(goos, target string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{target}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", target}
	default:
		return "xdg-open", []string{target}
	}
}

// NormalizeURL prefixes https:// when the input has no scheme.
func NormalizeURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return trimmed
	}
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return trimmed
	}
	return "https://" + trimmed
}
