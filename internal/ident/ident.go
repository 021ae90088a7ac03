// Package ident folds and unfolds the three-tier human code of a key:
//
//	line (3) + supplier (3) + item code (4) = "123ABC0007"
//
// Every input goes through the same normalization (trim, upper-case, pad)
// before it is compared or stored, so "ab", "AB" and "AB " name the same
// supplier.
package ident

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dmitrijs2005/keycatalog/internal/common"
)

const (
	SupplierWidth = 3
	LineWidth     = 3
	CodeWidth     = 4

	LineCodeWidth = LineWidth + SupplierWidth
	KeyCodeWidth  = LineCodeWidth + CodeWidth
)

var (
	supplierPattern = regexp.MustCompile(`^[A-Z0-9]{2,3}$`)
	linePattern     = regexp.MustCompile(`^[A-Z0-9]{3}$`)
	codePattern     = regexp.MustCompile(`^[A-Z0-9]{1,4}$`)
	prefixPattern   = regexp.MustCompile(`^[A-Z0-9 ]*$`)
)

func canon(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeSupplier returns the stored form of a supplier identifier:
// upper-cased and right-padded with spaces to width 3.
func NormalizeSupplier(s string) (string, error) {
	c := canon(s)
	if !supplierPattern.MatchString(c) {
		return "", fmt.Errorf("%w: supplier identifier %q", common.ErrorValidation, s)
	}
	return PadSupplier(c), nil
}

// PadSupplier right-pads an already validated supplier identifier.
func PadSupplier(s string) string {
	if len(s) >= SupplierWidth {
		return s
	}
	return s + strings.Repeat(" ", SupplierWidth-len(s))
}

// NormalizeLine returns the stored form of a line identifier.
func NormalizeLine(s string) (string, error) {
	c := canon(s)
	if !linePattern.MatchString(c) {
		return "", fmt.Errorf("%w: line identifier %q", common.ErrorValidation, s)
	}
	return c, nil
}

// NormalizeCode returns the stored form of an item code: upper-cased and
// left-padded with zeros to width 4.
func NormalizeCode(s string) (string, error) {
	c := canon(s)
	if !codePattern.MatchString(c) {
		return "", fmt.Errorf("%w: item code %q", common.ErrorValidation, s)
	}
	return strings.Repeat("0", CodeWidth-len(c)) + c, nil
}

// LineCode concatenates a line and supplier identifier (both width 3).
func LineCode(line, supplier string) string {
	return line + supplier
}

// KeyCode concatenates line, supplier and item code (widths 3, 3, 4).
func KeyCode(line, supplier, code string) string {
	return line + supplier + code
}

// SplitLineCode unfolds a 5 or 6 character line code into its line and
// supplier segments, both normalized. Five characters stand for a two
// character supplier whose padding was dropped.
func SplitLineCode(s string) (line, supplier string, ok bool) {
	s = strings.ToUpper(s)
	if n := len(strings.TrimRight(s, " ")); n == LineCodeWidth-1 || n == LineCodeWidth {
		s = s[:n]
	} else {
		return "", "", false
	}

	line, err := NormalizeLine(s[:LineWidth])
	if err != nil {
		return "", "", false
	}
	supplier, err = NormalizeSupplier(s[LineWidth:])
	if err != nil {
		return "", "", false
	}
	return line, supplier, true
}

// CanonicalKeyCode upper-cases a composite code and restores the supplier
// padding of a 9 character code, which stands for a two character supplier
// whose padding was dropped. Other inputs are only upper-cased.
func CanonicalKeyCode(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != KeyCodeWidth-1 {
		return s
	}
	line, supplier, ok := SplitLineCode(s[:LineCodeWidth-1])
	if !ok || !codePattern.MatchString(s[LineCodeWidth-1:]) {
		return s
	}
	return KeyCode(line, supplier, s[LineCodeWidth-1:])
}

// Prefix is a composite-code prefix split into its positional segments.
// Empty segments impose no constraint.
type Prefix struct {
	Line     string
	Supplier string
	Code     string
}

// IsZero reports whether the prefix constrains nothing.
func (p Prefix) IsZero() bool {
	return p.Line == "" && p.Supplier == "" && p.Code == ""
}

// ParsePrefix splits a partial composite code: characters 0–2 constrain the
// line, 3–5 the supplier and 6–9 the item code. Segments are only produced
// as far as the input reaches.
func ParsePrefix(s string) (Prefix, error) {
	s = strings.ToUpper(strings.TrimLeft(s, " "))
	if len(s) > KeyCodeWidth || !prefixPattern.MatchString(s) {
		return Prefix{}, fmt.Errorf("%w: code prefix %q", common.ErrorValidation, s)
	}

	var p Prefix
	p.Line = segment(s, 0, LineWidth)
	p.Supplier = segment(s, LineWidth, LineCodeWidth)
	p.Code = segment(s, LineCodeWidth, KeyCodeWidth)
	return p, nil
}

func segment(s string, from, to int) string {
	if len(s) <= from {
		return ""
	}
	if len(s) < to {
		to = len(s)
	}
	return s[from:to]
}

// ArtifactDir is the directory holding the artifacts of one line. Supplier
// padding is dropped from file system names.
func ArtifactDir(lineCode string) string {
	return strings.ReplaceAll(lineCode, " ", "")
}

// ArtifactName is the file name of one slot's artifact.
func ArtifactName(keyCode string, idN int, ext string) string {
	return fmt.Sprintf("%s %d.%s", strings.ReplaceAll(keyCode, " ", ""), idN, strings.TrimPrefix(ext, "."))
}

// ArtifactPath is the deterministic relative path of one slot's artifact:
// "<lineCode>/<keyCode> <idN>.<ext>".
func ArtifactPath(lineCode, keyCode string, idN int, ext string) string {
	return ArtifactDir(lineCode) + "/" + ArtifactName(keyCode, idN, ext)
}

// ArtifactRevisionPath is ArtifactPath with a revision token before the
// extension: "<lineCode>/<keyCode> <idN>-<rev>.<ext>". Every saved master
// gets its own revision, so codes reused after a rename never share a file.
func ArtifactRevisionPath(lineCode, keyCode string, idN int, rev, ext string) string {
	return fmt.Sprintf("%s/%s %d-%s.%s", ArtifactDir(lineCode), strings.ReplaceAll(keyCode, " ", ""), idN, rev, strings.TrimPrefix(ext, "."))
}
