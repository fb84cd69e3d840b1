package tlsclient

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// Decoding wraps next so bodies advertised as br, gzip or deflate arrive
// decompressed with the Content-Encoding header removed.
func Decoding(next http.RoundTripper) http.RoundTripper {
	return decodingTransport{next: next}
}

type decodingTransport struct {
	next http.RoundTripper
}

func (d decodingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := d.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	var reader io.Reader
	switch encoding {
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "gzip":
		gz, gzErr := gzip.NewReader(resp.Body)
		if gzErr != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("open gzip body: %w", gzErr)
		}
		reader = gz
	case "deflate":
		reader = deflateReader(resp.Body)
	default:
		return resp, nil
	}
	resp.Body = &decodedBody{Reader: reader, raw: resp.Body}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return resp, nil
}

// deflateReader accepts both zlib-wrapped and raw deflate streams.
func deflateReader(body io.Reader) io.Reader {
	buffered := bufio.NewReader(body)
	header, err := buffered.Peek(2)
	if err == nil && header[0]&0x0f == 8 && (uint16(header[0])<<8|uint16(header[1]))%31 == 0 {
		if zr, zErr := zlib.NewReader(buffered); zErr == nil {
			return zr
		}
	}
	return flate.NewReader(buffered)
}

type decodedBody struct {
	io.Reader
	raw io.ReadCloser
}

func (b *decodedBody) Close() error {
	if c, ok := b.Reader.(io.Closer); ok {
		_ = c.Close()
	}
	return b.raw.Close()
}
