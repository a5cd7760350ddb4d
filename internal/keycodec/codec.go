// Package keycodec maps typed node keys onto the string-only names of the
// container format and back.
//
// String keys pass through unchanged. Numeric keys are wrapped in a tagged
// form that a valid string key can never take, since string keys may only
// contain letters and underscores:
//
//	Int(42)            long(42)
//	Float(2.5)         float(2.5000000000000000e+00)
//	Complex(1-2i)      complex((1.0000000000000000e+00-2.0000000000000000e+00j))
//
// Floats (and both parts of a complex) are written with 17 significant
// digits, which is enough for every float64 to survive the text round trip
// bit for bit.
package keycodec

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrUnrecognizedKeyEncoding is returned when a name carries a known numeric
// tag but its payload does not parse as that type.
var ErrUnrecognizedKeyEncoding = errors.New("unrecognized key encoding")

const (
	tagLong    = "long"
	tagInt     = "int"
	tagFloat   = "float"
	tagComplex = "complex"
)

var tagged = regexp.MustCompile(`^([a-zA-Z]+)\((.*)\)$`)

// Encode renders k as a container node name.
func Encode(k Key) string {
	switch k.kind {
	case KindInt:
		return tagLong + "(" + strconv.FormatInt(k.i, 10) + ")"
	case KindFloat:
		return tagFloat + "(" + formatFloat(real(k.c)) + ")"
	case KindComplex:
		im := formatFloat(imag(k.c))
		if im[0] != '-' && im[0] != '+' {
			im = "+" + im
		}
		return tagComplex + "((" + formatFloat(real(k.c)) + im + "j))"
	default:
		return k.s
	}
}

// Decode is the inverse of Encode. Names that are not in a recognised
// tagged form come back as string keys.
func Decode(name string) (Key, error) {
	m := tagged.FindStringSubmatch(name)
	if m == nil {
		return String(name), nil
	}
	tag, payload := m[1], m[2]
	switch tag {
	case tagLong, tagInt:
		i, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			return Key{}, fmt.Errorf("%w: %q: %v", ErrUnrecognizedKeyEncoding, name, err)
		}
		return Int(i), nil
	case tagFloat:
		f, err := strconv.ParseFloat(payload, 64)
		if err != nil {
			return Key{}, fmt.Errorf("%w: %q: %v", ErrUnrecognizedKeyEncoding, name, err)
		}
		return Float(f), nil
	case tagComplex:
		c, err := parseComplex(payload)
		if err != nil {
			return Key{}, fmt.Errorf("%w: %q: %v", ErrUnrecognizedKeyEncoding, name, err)
		}
		return Complex(c), nil
	}
	return String(name), nil
}

// ParseSegment turns one slash-delimited path segment into a key. Tagged
// names decode as usual and a bare decimal integer is read as an Int key,
// so "x/y/0" addresses key 0 under x/y.
func ParseSegment(seg string) (Key, error) {
	k, err := Decode(seg)
	if err != nil {
		return Key{}, err
	}
	if k.IsString() && isDecimal(seg) {
		if i, err := strconv.ParseInt(seg, 10, 64); err == nil {
			return Int(i), nil
		}
	}
	return k, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'e', 16, 64)
}

// parseComplex accepts "(<real><sign><imag>j)".
func parseComplex(payload string) (complex128, error) {
	p := payload
	if strings.HasPrefix(p, "(") && strings.HasSuffix(p, ")") {
		p = p[1 : len(p)-1]
	}
	if !strings.HasSuffix(p, "j") {
		return 0, errors.New("missing imaginary unit")
	}
	// strconv spells the imaginary unit "i".
	return strconv.ParseComplex(p[:len(p)-1]+"i", 128)
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '-' || s[0] == '+' {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
