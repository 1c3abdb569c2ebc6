package apiclient

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// decodeBody reverses the Content-Encoding of a response body.
// Supports gzip, deflate, and brotli (br) encodings; unknown encodings pass through.
func decodeBody(body []byte, contentEncoding string) ([]byte, error) {
	if len(body) == 0 || contentEncoding == "" {
		return body, nil
	}

	// "gzip, deflate" - the first listed coding is the outermost one we see
	encoding := strings.ToLower(strings.TrimSpace(strings.Split(contentEncoding, ",")[0]))

	var reader io.ReadCloser
	switch encoding {
	case "", "identity":
		return body, nil
	case "gzip":
		gz, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("invalid gzip body: %w", err)
		}
		reader = gz
	case "deflate":
		reader = flate.NewReader(bytes.NewReader(body))
	case "br":
		reader = io.NopCloser(brotli.NewReader(bytes.NewReader(body)))
	default:
		return body, nil
	}
	defer reader.Close()

	decoded, err := io.ReadAll(io.LimitReader(reader, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("invalid %s body: %w", encoding, err)
	}
	return decoded, nil
}
