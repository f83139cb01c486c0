// Package codec converts characteristic values between wire bytes and the
// textual display formats understood by the console.
package codec

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Format is a display format for characteristic values.
type Format int

const (
	Text Format = iota // UTF-8
	ASCII
	Decimal
	Hex
	Binary
)

var formatNames = map[Format]string{
	Text:    "UTF8",
	ASCII:   "ASCII",
	Decimal: "Dec",
	Hex:     "Hex",
	Binary:  "Bin",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// IsText reports whether the format carries literal text, where escape
// sequences are meaningful.
func (f Format) IsText() bool {
	return f == Text || f == ASCII
}

// ParseFormat maps a user supplied format name to a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "utf8", "utf-8", "text":
		return Text, nil
	case "ascii":
		return ASCII, nil
	case "dec", "decimal":
		return Decimal, nil
	case "hex", "hexdecimal", "hexadecimal":
		return Hex, nil
	case "bin", "binary":
		return Binary, nil
	default:
		return Text, fmt.Errorf("unknown format %q (must be ascii, utf8, dec, hex or bin)", name)
	}
}

// Encode parses text in format f into the bytes to be written.
// Malformed input yields a *FormatError and no bytes.
func Encode(text string, f Format) ([]byte, error) {
	switch f {
	case Text:
		if !utf8.ValidString(text) {
			return nil, &FormatError{Kind: InvalidCharacter, Format: f, Input: text}
		}
		return []byte(text), nil
	case ASCII:
		for i := 0; i < len(text); i++ {
			if text[i] > 0x7F {
				return nil, &FormatError{Kind: OutOfRange, Format: f, Input: text}
			}
		}
		return []byte(text), nil
	case Decimal:
		return encodeDecimal(text)
	case Hex:
		return encodeHex(text)
	case Binary:
		return encodeBinary(text)
	default:
		return nil, fmt.Errorf("unsupported format %s", f)
	}
}

// Decode renders b in format f. It never fails.
func Decode(b []byte, f Format) string {
	switch f {
	case ASCII:
		var sb strings.Builder
		sb.Grow(len(b))
		for _, c := range b {
			if c > 0x7F {
				c = '?'
			}
			sb.WriteByte(c)
		}
		return sb.String()
	case Decimal:
		return join(b, func(c byte) string { return strconv.Itoa(int(c)) })
	case Hex:
		return join(b, func(c byte) string { return fmt.Sprintf("%02X", c) })
	case Binary:
		return join(b, func(c byte) string { return fmt.Sprintf("%08b", c) })
	default:
		return strings.ToValidUTF8(string(b), "�")
	}
}

func join(b []byte, render func(byte) string) string {
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = render(c)
	}
	return strings.Join(parts, " ")
}

func encodeDecimal(text string) ([]byte, error) {
	if hasSignedNumber(text) {
		return nil, &FormatError{Kind: OutOfRange, Format: Decimal, Input: text}
	}
	fields := strings.FieldsFunc(text, func(r rune) bool { return r < '0' || r > '9' })
	if len(fields) == 0 {
		return nil, &FormatError{Kind: InvalidLength, Format: Decimal, Input: text}
	}
	out := make([]byte, 0, len(fields))
	for _, field := range fields {
		v, err := strconv.ParseUint(field, 10, 8)
		if err != nil {
			return nil, &FormatError{Kind: OutOfRange, Format: Decimal, Input: text}
		}
		out = append(out, byte(v))
	}
	return out, nil
}

// hasSignedNumber reports a '-' that starts a number rather than separating
// two numbers, as in "-5" or "1, -2".
func hasSignedNumber(text string) bool {
	for i := 0; i+1 < len(text); i++ {
		if text[i] != '-' || text[i+1] < '0' || text[i+1] > '9' {
			continue
		}
		if i == 0 || text[i-1] < '0' || text[i-1] > '9' {
			return true
		}
	}
	return false
}

func encodeHex(text string) ([]byte, error) {
	var digits strings.Builder
	for _, field := range strings.FieldsFunc(text, isHexSeparator) {
		for i := 0; i < len(field); i++ {
			// A 0x prefix may start any byte, so it is only a prefix on a pair boundary
			if digits.Len()%2 == 0 && i+1 < len(field) && field[i] == '0' && (field[i+1] == 'x' || field[i+1] == 'X') {
				i++
				continue
			}
			digits.WriteByte(field[i])
		}
	}

	s := digits.String()
	if len(s) == 0 || len(s)%2 != 0 {
		for i := 0; i < len(s); i++ {
			if fromHex(s[i]) < 0 {
				return nil, &FormatError{Kind: InvalidCharacter, Format: Hex, Input: text}
			}
		}
		return nil, &FormatError{Kind: InvalidLength, Format: Hex, Input: text}
	}

	out := make([]byte, len(s)/2)
	for i := range out {
		hi, lo := fromHex(s[2*i]), fromHex(s[2*i+1])
		if hi < 0 || lo < 0 {
			return nil, &FormatError{Kind: InvalidCharacter, Format: Hex, Input: text}
		}
		out[i] = byte(hi<<4 | lo)
	}
	return out, nil
}

func isHexSeparator(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', ':', '-', ',':
		return true
	}
	return false
}

func fromHex(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}

func encodeBinary(text string) ([]byte, error) {
	groups := strings.Fields(text)
	if len(groups) == 0 {
		return nil, &FormatError{Kind: InvalidLength, Format: Binary, Input: text}
	}
	out := make([]byte, 0, len(groups))
	for _, g := range groups {
		var v byte
		for i := 0; i < len(g); i++ {
			if g[i] != '0' && g[i] != '1' {
				return nil, &FormatError{Kind: InvalidCharacter, Format: Binary, Input: text}
			}
			v = v<<1 | (g[i] - '0')
		}
		if len(g) != 8 {
			return nil, &FormatError{Kind: InvalidLength, Format: Binary, Input: text}
		}
		out = append(out, v)
	}
	return out, nil
}
