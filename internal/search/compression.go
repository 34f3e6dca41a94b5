// search/compression.go
package search

import (
	"compress/flate"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// Brotli readers are comparatively expensive to allocate; keep them pooled.
var brotliReaderPool = sync.Pool{
	New: func() interface{} {
		return brotli.NewReader(nil)
	},
}

var emptyReader = strings.NewReader("")

// decompressingTransport advertises br/gzip/deflate and transparently decodes
// the response body. Setting Accept-Encoding ourselves disables net/http's
// built-in gzip handling, so every encoding we advertise must be handled here.
type decompressingTransport struct {
	base http.RoundTripper
}

func newDecompressingTransport(base http.RoundTripper) *decompressingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &decompressingTransport{base: base}
}

func (t *decompressingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", "br, gzip, deflate")
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := decompressBody(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to initialize response decompression: %w", err)
	}
	return resp, nil
}

// bodyCloser closes the decoder and the original body, then runs release.
type bodyCloser struct {
	io.Reader
	decoder  io.Closer
	original io.ReadCloser
	release  func()
}

func (b *bodyCloser) Close() error {
	var errDec error
	if b.decoder != nil {
		errDec = b.decoder.Close()
	}
	if b.release != nil {
		b.release()
		b.release = nil
	}
	return errors.Join(errDec, b.original.Close())
}

// decompressBody wraps resp.Body according to its single Content-Encoding.
func decompressBody(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))

	wrapped := &bodyCloser{original: resp.Body}
	switch encoding {
	case "", "identity":
		return nil
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("gzip initialization error: %w", err)
		}
		wrapped.Reader, wrapped.decoder = zr, zr
	case "deflate":
		fr := flate.NewReader(resp.Body)
		wrapped.Reader, wrapped.decoder = fr, fr
	case "br":
		br := brotliReaderPool.Get().(*brotli.Reader)
		if err := br.Reset(resp.Body); err != nil {
			brotliReaderPool.Put(br)
			return fmt.Errorf("brotli initialization error: %w", err)
		}
		wrapped.Reader = br
		wrapped.release = func() {
			_ = br.Reset(emptyReader)
			brotliReaderPool.Put(br)
		}
	default:
		return fmt.Errorf("unsupported Content-Encoding: %s", encoding)
	}

	resp.Body = wrapped
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}
