// Package encoding converts source-side values into the representations
// stored in destination documents: symbolic file modes and blob payloads.
package encoding

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidMode is returned for modes outside the representable set.
var ErrInvalidMode = errors.New("invalid file mode")

type modeType struct {
	name     string
	symbolic byte
	octal    string
}

// Only these three object types have a symbolic form.
var modeTypes = []modeType{
	{"directory", 'd', "040"},
	{"regular file", '-', "100"},
	{"symbolic link", 'l', "120"},
}

// GitlinkOctal is the type prefix git uses for submodule entries.
const GitlinkOctal = "160"

// NormalizeOctal left-pads a git tree mode to six digits, so the
// canonical "40000" directory mode becomes "040000".
func NormalizeOctal(mode string) string {
	mode = strings.TrimSpace(mode)
	if len(mode) > 0 && len(mode) < 6 {
		return strings.Repeat("0", 6-len(mode)) + mode
	}
	return mode
}

// IsGitlink reports whether mode names a submodule entry.
func IsGitlink(mode string) bool {
	return strings.HasPrefix(NormalizeOctal(mode), GitlinkOctal)
}

// OctalToSymbolic converts a six-digit octal type+permission string such
// as "100644" to its symbolic form "-rw-r--r--".
func OctalToSymbolic(octal string) (string, error) {
	if len(octal) != 6 {
		return "", fmt.Errorf("%w: octal %q must have 6 digits", ErrInvalidMode, octal)
	}
	var typeChar byte
	for _, mt := range modeTypes {
		if mt.octal == octal[:3] {
			typeChar = mt.symbolic
			break
		}
	}
	if typeChar == 0 {
		return "", fmt.Errorf("%w: unsupported type %q in %q", ErrInvalidMode, octal[:3], octal)
	}

	var b strings.Builder
	b.Grow(10)
	b.WriteByte(typeChar)
	for _, c := range octal[3:] {
		if c < '0' || c > '7' {
			return "", fmt.Errorf("%w: non-octal digit %q in %q", ErrInvalidMode, c, octal)
		}
		bits := c - '0'
		b.WriteByte(permChar(bits&4 != 0, 'r'))
		b.WriteByte(permChar(bits&2 != 0, 'w'))
		b.WriteByte(permChar(bits&1 != 0, 'x'))
	}
	return b.String(), nil
}

// SymbolicToOctal is the inverse of OctalToSymbolic. Only strings with an
// exact rwx layout are accepted, so the conversion round-trips.
func SymbolicToOctal(symbolic string) (string, error) {
	if len(symbolic) != 10 {
		return "", fmt.Errorf("%w: symbolic %q must have 10 characters", ErrInvalidMode, symbolic)
	}
	prefix := ""
	for _, mt := range modeTypes {
		if mt.symbolic == symbolic[0] {
			prefix = mt.octal
			break
		}
	}
	if prefix == "" {
		return "", fmt.Errorf("%w: unsupported type %q in %q", ErrInvalidMode, symbolic[0], symbolic)
	}

	var b strings.Builder
	b.Grow(6)
	b.WriteString(prefix)
	for i := 0; i < 3; i++ {
		triple := symbolic[1+3*i : 4+3*i]
		code := 0
		for j, want := range "rwx" {
			switch rune(triple[j]) {
			case want:
				code |= 4 >> j
			case '-':
			default:
				return "", fmt.Errorf("%w: bad permission %q in %q", ErrInvalidMode, triple, symbolic)
			}
		}
		b.WriteByte(byte('0' + code))
	}
	return b.String(), nil
}

func permChar(set bool, c byte) byte {
	if set {
		return c
	}
	return '-'
}
