package remote

import (
	"bytes"
	"io"
	"net/http"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

func TestGzipRoundTrip(t *testing.T) {
	original := bytes.Repeat([]byte(`{"_id":"git-blob-x","raw":"data"}`), 100)
	compressed, err := compressGzip(original)
	if err != nil {
		t.Fatalf("compressGzip: %v", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	got, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read gzip: %v", err)
	}
	if !bytes.Equal(got, original) {
		t.Fatalf("round-trip mismatch")
	}
}

func TestDecodedBody(t *testing.T) {
	original := []byte("hello world, this is a test of response decoding")

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd.NewWriter: %v", err)
	}
	zstdData := enc.EncodeAll(original, nil)
	enc.Close()
	gzipData, err := compressGzip(original)
	if err != nil {
		t.Fatalf("compressGzip: %v", err)
	}

	tests := []struct {
		encoding string
		body     []byte
	}{
		{"", original},
		{"identity", original},
		{"zstd", zstdData},
		{"gzip", gzipData},
	}
	for _, tc := range tests {
		resp := &http.Response{
			Header: http.Header{"Content-Encoding": []string{tc.encoding}},
			Body:   io.NopCloser(bytes.NewReader(tc.body)),
		}
		r, err := decodedBody(resp)
		if err != nil {
			t.Fatalf("decodedBody(%q): %v", tc.encoding, err)
		}
		got, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			t.Fatalf("read %q: %v", tc.encoding, err)
		}
		if !bytes.Equal(got, original) {
			t.Fatalf("decodedBody(%q) = %q", tc.encoding, got)
		}
	}

	resp := &http.Response{Header: http.Header{"Content-Encoding": []string{"br"}}, Body: http.NoBody}
	if _, err := decodedBody(resp); err == nil {
		t.Fatalf("decodedBody(br) succeeded")
	}
}
