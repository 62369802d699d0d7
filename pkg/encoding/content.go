package encoding

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrInvalidContent is returned when a stored payload cannot be decoded.
var ErrInvalidContent = errors.New("invalid blob content")

// Content encodings stored in blob documents.
const (
	Raw    = "raw"
	Base64 = "base64"
)

// MaxRawLineLength bounds each CRLF-separated line of raw content.
const MaxRawLineLength = 80

var crlf = []byte("\r\n")

// IsRawText reports whether data may be stored verbatim: printable ASCII
// only, lines separated by CRLF, every line shorter than MaxRawLineLength.
// Tab, vertical tab, form feed, and any CR or LF outside a CRLF pair
// disqualify the content.
func IsRawText(data []byte) bool {
	for _, line := range bytes.Split(data, crlf) {
		if len(line) >= MaxRawLineLength {
			return false
		}
		for _, c := range line {
			if c < 0x20 || c > 0x7e {
				return false
			}
		}
	}
	return true
}

// EncodeContent picks the encoding for data and returns it with the
// payload string to store.
func EncodeContent(data []byte) (string, string) {
	if IsRawText(data) {
		return Raw, string(data)
	}
	return Base64, base64.StdEncoding.EncodeToString(data)
}

// DecodeContent recovers the original bytes from a stored payload. Raw
// payloads must still satisfy IsRawText; anything else was not produced
// by EncodeContent.
func DecodeContent(encoding, payload string) ([]byte, error) {
	switch encoding {
	case Raw:
		data := []byte(payload)
		if !IsRawText(data) {
			return nil, fmt.Errorf("%w: raw payload fails the text check", ErrInvalidContent)
		}
		return data, nil
	case Base64:
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidContent, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: unknown encoding %q", ErrInvalidContent, encoding)
	}
}
