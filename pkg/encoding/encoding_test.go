package encoding

import (
	"bytes"
	"errors"
	"math/rand"
	"strings"
	"testing"
)

func TestOctalToSymbolic(t *testing.T) {
	tests := []struct {
		octal    string
		symbolic string
	}{
		{"100644", "-rw-r--r--"},
		{"100755", "-rwxr-xr-x"},
		{"040000", "d---------"},
		{"040755", "drwxr-xr-x"},
		{"120000", "l---------"},
		{"120777", "lrwxrwxrwx"},
		{"100000", "----------"},
		{"100421", "-r---w---x"},
	}
	for _, tc := range tests {
		got, err := OctalToSymbolic(tc.octal)
		if err != nil {
			t.Fatalf("OctalToSymbolic(%q): %v", tc.octal, err)
		}
		if got != tc.symbolic {
			t.Fatalf("OctalToSymbolic(%q) = %q, want %q", tc.octal, got, tc.symbolic)
		}
		back, err := SymbolicToOctal(got)
		if err != nil {
			t.Fatalf("SymbolicToOctal(%q): %v", got, err)
		}
		if back != tc.octal {
			t.Fatalf("SymbolicToOctal(%q) = %q, want %q", got, back, tc.octal)
		}
	}
}

func TestModeRoundTripAllPermissions(t *testing.T) {
	for _, prefix := range []string{"040", "100", "120"} {
		for p := 0; p < 8*8*8; p++ {
			octal := prefix + string(rune('0'+p/64)) + string(rune('0'+(p/8)%8)) + string(rune('0'+p%8))
			sym, err := OctalToSymbolic(octal)
			if err != nil {
				t.Fatalf("OctalToSymbolic(%q): %v", octal, err)
			}
			back, err := SymbolicToOctal(sym)
			if err != nil {
				t.Fatalf("SymbolicToOctal(%q): %v", sym, err)
			}
			if back != octal {
				t.Fatalf("round trip %q -> %q -> %q", octal, sym, back)
			}
		}
	}
}

func TestModeRejectsUnrepresentable(t *testing.T) {
	for _, octal := range []string{"160000", "100648", "10064", "1006444", "", "004644"} {
		if _, err := OctalToSymbolic(octal); !errors.Is(err, ErrInvalidMode) {
			t.Fatalf("OctalToSymbolic(%q) error = %v, want ErrInvalidMode", octal, err)
		}
	}
	for _, sym := range []string{"srw-r--r--", "-rw-r--r-", "-wr-r--r--", "-rw-r--r-S", ""} {
		if _, err := SymbolicToOctal(sym); !errors.Is(err, ErrInvalidMode) {
			t.Fatalf("SymbolicToOctal(%q) error = %v, want ErrInvalidMode", sym, err)
		}
	}
}

func TestNormalizeOctal(t *testing.T) {
	if got := NormalizeOctal("40000"); got != "040000" {
		t.Fatalf("NormalizeOctal(40000) = %q", got)
	}
	if got := NormalizeOctal("100644"); got != "100644" {
		t.Fatalf("NormalizeOctal(100644) = %q", got)
	}
	if !IsGitlink("160000") {
		t.Fatalf("IsGitlink(160000) = false")
	}
	if IsGitlink("40000") {
		t.Fatalf("IsGitlink(40000) = true")
	}
}

func TestIsRawText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"empty", "", true},
		{"crlf line", "hello\r\n", true},
		{"no trailing newline", "hello world", true},
		{"multiple lines", "a\r\nb\r\n\r\nc", true},
		{"bare lf", "hello\n", false},
		{"bare cr", "hello\rworld", false},
		{"lf before crlf", "a\n\r\n", false},
		{"tab", "a\tb", false},
		{"vertical tab", "a\vb", false},
		{"form feed", "a\fb", false},
		{"nul", "a\x00b", false},
		{"high byte", "caf\xc3\xa9", false},
		{"del", "a\x7fb", false},
		{"line of 79", strings.Repeat("x", 79) + "\r\n", true},
		{"line of 80", strings.Repeat("x", 80) + "\r\n", false},
		{"last line of 80", "ok\r\n" + strings.Repeat("x", 80), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRawText([]byte(tc.in)); got != tc.want {
				t.Fatalf("IsRawText(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestContentRoundTrip(t *testing.T) {
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}
	inputs := [][]byte{
		nil,
		[]byte("hello\r\n"),
		[]byte("Initial version of text file\r\n"),
		[]byte("unix\nnewlines\n"),
		all,
	}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		buf := make([]byte, rng.Intn(300))
		for j := range buf {
			// Bias toward the printable range so both encodings get exercised.
			if rng.Intn(10) == 0 {
				buf[j] = byte(rng.Intn(256))
			} else {
				buf[j] = byte(0x20 + rng.Intn(0x5f))
			}
		}
		inputs = append(inputs, buf)
	}

	for _, in := range inputs {
		enc, payload := EncodeContent(in)
		out, err := DecodeContent(enc, payload)
		if err != nil {
			t.Fatalf("DecodeContent(%s) for %q: %v", enc, in, err)
		}
		if !bytes.Equal(out, in) {
			t.Fatalf("round trip mismatch (%s): got %q, want %q", enc, out, in)
		}
		if (enc == Raw) != IsRawText(in) {
			t.Fatalf("encoding %s disagrees with IsRawText for %q", enc, in)
		}
	}
}

func TestEncodeContentChoosesEncoding(t *testing.T) {
	if enc, payload := EncodeContent([]byte("hello\r\n")); enc != Raw || payload != "hello\r\n" {
		t.Fatalf("EncodeContent(text) = %s %q", enc, payload)
	}
	if enc, payload := EncodeContent([]byte("hello\n")); enc != Base64 || payload != "aGVsbG8K" {
		t.Fatalf("EncodeContent(lf text) = %s %q", enc, payload)
	}
}

func TestDecodeContentRejects(t *testing.T) {
	cases := []struct{ enc, payload string }{
		{Raw, "tab\there"},
		{Base64, "not base64!"},
		{"hex", "00"},
	}
	for _, tc := range cases {
		if _, err := DecodeContent(tc.enc, tc.payload); !errors.Is(err, ErrInvalidContent) {
			t.Fatalf("DecodeContent(%s, %q) error = %v, want ErrInvalidContent", tc.enc, tc.payload, err)
		}
	}
}
