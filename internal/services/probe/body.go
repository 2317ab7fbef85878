package probe

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"io"
	"mime"
	"strings"

	"github.com/andybalholm/brotli"
)

// shouldSample reports whether the response body is worth reading for the
// login heuristics. An absent media type is sampled too: plenty of appliance
// login pages ship without a Content-Type.
func shouldSample(contentType string) bool {
	if contentType == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return true
	}
	switch {
	case strings.HasPrefix(mt, "text/"):
		return true
	case mt == "application/xhtml+xml", mt == "application/xml", mt == "application/json":
		return true
	case strings.HasSuffix(mt, "+xml"), strings.HasSuffix(mt, "+json"):
		return true
	}
	return false
}

// decode undoes the negotiated Content-Encoding on the sampled bytes. A
// broken stream falls back to the raw bytes rather than an empty sample.
func decode(raw []byte, encoding string, limit int64) []byte {
	var r io.Reader
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return raw
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return raw
		}
		defer zr.Close()
		r = zr
	case "deflate":
		fr := flate.NewReader(bytes.NewReader(raw))
		defer fr.Close()
		r = fr
	case "br":
		r = brotli.NewReader(bytes.NewReader(raw))
	default:
		return raw
	}

	out, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil && len(out) == 0 {
		return raw
	}
	return out
}
