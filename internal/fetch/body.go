package fetch

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/net/html/charset"
)

var (
	errBodyTooLarge        = errors.New("response body exceeds size limit")
	errUnsupportedEncoding = errors.New(msgUnsupportedEncode)
)

// readBody content-decodes the body and reads at most limit bytes of the
// decoded stream. One extra byte is requested so that an oversized body is
// detected without buffering it.
func readBody(resp *http.Response, limit int64) ([]byte, error) {
	decoded, err := decodeContent(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, err
	}
	defer decoded.Close()

	body, err := io.ReadAll(io.LimitReader(decoded, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, errBodyTooLarge
	}
	return body, nil
}

// decodeContent wraps r according to a Content-Encoding header value.
// Stacked encodings are not supported.
func decodeContent(r io.Reader, encoding string) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return io.NopCloser(r), nil

	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return zr, nil

	case "deflate":
		// "deflate" is zlib-wrapped per RFC 9110, but raw DEFLATE streams
		// are common in the wild.
		br := bufio.NewReader(r)
		if hdr, err := br.Peek(2); err == nil && isZlibHeader(hdr) {
			zr, err := zlib.NewReader(br)
			if err != nil {
				return nil, fmt.Errorf("deflate: %w", err)
			}
			return zr, nil
		}
		return flate.NewReader(br), nil

	case "zstd":
		zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return zr.IOReadCloser(), nil
	}

	return nil, fmt.Errorf("%w: %s", errUnsupportedEncoding, encoding)
}

func isZlibHeader(b []byte) bool {
	return b[0]&0x0f == 8 && (uint16(b[0])<<8|uint16(b[1]))%31 == 0
}

// decodeCharset converts body to UTF-8 using the Content-Type charset, a
// BOM or an HTML meta declaration. Without a declared charset, valid UTF-8
// is returned untouched. Undecodable input is returned as-is.
func decodeCharset(body []byte, contentType string) string {
	if _, params, err := mime.ParseMediaType(contentType); err != nil || params["charset"] == "" {
		if utf8.Valid(body) && !hasMetaCharset(body) {
			return string(body)
		}
	}

	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return string(body)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return string(body)
	}
	return string(out)
}

// hasMetaCharset reports whether the document head declares a charset.
func hasMetaCharset(body []byte) bool {
	head := body
	if len(head) > 1024 {
		head = head[:1024]
	}
	return bytes.Contains(bytes.ToLower(head), []byte("charset"))
}
