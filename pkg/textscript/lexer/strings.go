package lexer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// EscapeChar introduces an escape sequence inside quoted strings.
const EscapeChar = '^'

var shortEscapes = map[byte]string{
	'n':  "\n",
	'r':  "\r",
	't':  "\t",
	'b':  "\b",
	'a':  "\a",
	'v':  "\v",
	'0':  "\x00",
	'^':  "^",
	'"':  "\"",
	'\'': "'",
}

// escapeLen returns the length of the escape sequence at the start of s
// (which begins with the escape character) and whether it is well formed.
// A malformed sequence still reports how many bytes to skip.
func escapeLen(s string) (int, bool) {
	if len(s) < 2 {
		return len(s), false
	}
	c := s[1]
	if _, ok := shortEscapes[c]; ok {
		return 2, true
	}
	digits := 0
	switch c {
	case 'u':
		digits = 4
	case 'x':
		digits = 2
	default:
		_, size := utf8.DecodeRuneInString(s[1:])
		return 1 + size, false
	}
	n := 0
	for n < digits && 2+n < len(s) && isHex(s[2+n]) {
		n++
	}
	return 2 + n, n == digits
}

// Unquote decodes the text of a String, VerbatimString or ImplicitString
// token into its value.
func Unquote(text string) (string, error) {
	if text == "" {
		return "", nil
	}
	switch text[0] {
	case '`':
		body := text[1:]
		if strings.HasSuffix(body, "`") && len(body) > 0 {
			body = body[:len(body)-1]
		}
		return body, nil
	case '"', '\'':
	default:
		return text, nil
	}

	quote := text[0]
	body := text[1:]
	if len(body) > 0 && body[len(body)-1] == quote {
		body = body[:len(body)-1]
	} else {
		return "", fmt.Errorf("unterminated string %s", text)
	}
	if strings.IndexByte(body, EscapeChar) < 0 {
		return body, nil
	}

	var sb strings.Builder
	sb.Grow(len(body))
	for i := 0; i < len(body); {
		if body[i] != EscapeChar {
			sb.WriteByte(body[i])
			i++
			continue
		}
		n, ok := escapeLen(body[i:])
		if !ok {
			return "", fmt.Errorf("invalid escape sequence %q", body[i:i+n])
		}
		seq := body[i : i+n]
		switch seq[1] {
		case 'u', 'x':
			v, _ := strconv.ParseUint(seq[2:], 16, 32)
			sb.WriteRune(rune(v))
		default:
			sb.WriteString(shortEscapes[seq[1]])
		}
		i += n
	}
	return sb.String(), nil
}

// Quote encodes s as a double quoted string literal.
func Quote(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\n':
			sb.WriteString("^n")
		case '\r':
			sb.WriteString("^r")
		case '\t':
			sb.WriteString("^t")
		case '\b':
			sb.WriteString("^b")
		case '\a':
			sb.WriteString("^a")
		case '\v':
			sb.WriteString("^v")
		case 0:
			sb.WriteString("^0")
		case '^':
			sb.WriteString("^^")
		case '"':
			sb.WriteString(`^"`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&sb, "^x%02x", r)
			} else {
				sb.WriteRune(r)
			}
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
