package richtext

import (
	"html"
	"strings"
	"unicode/utf8"
)

const maxEntityLen = 32 // longest named reference plus the & and ;

// decodeEntities converts numeric (&#NN; and &#xHH;) and named (&amp; etc)
// character references to literal characters. Anything that does not parse
// as a reference stays in the output untouched; this function never fails.
func decodeEntities(s string) string {
	amp := strings.IndexByte(s, '&')
	if amp == -1 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for amp != -1 {
		b.WriteString(s[:amp])
		s = s[amp:]

		r, consumed := decodeEntity(s)
		if consumed == 0 {
			b.WriteByte('&')
			s = s[1:]
		} else {
			b.WriteRune(r)
			s = s[consumed:]
		}
		amp = strings.IndexByte(s, '&')
	}
	b.WriteString(s)
	return b.String()
}

// decodeEntity decodes a single reference at the start of s, which must
// begin with '&'. It returns the decoded rune and how many bytes of s the
// reference spans, or (0, 0) if s does not start with a valid reference.
func decodeEntity(s string) (rune, int) {
	if len(s) < 3 {
		return 0, 0
	}
	if s[1] == '#' {
		return decodeNumericEntity(s)
	}

	// Named references are bounded and must end in ';'. The actual table
	// lives in the standard library; we only locate the token boundaries.
	end := strings.IndexByte(s, ';')
	if end == -1 || end+1 > maxEntityLen {
		return 0, 0
	}
	candidate := s[:end+1]
	for i := 1; i < end; i++ {
		if !isEntityNameByte(candidate[i]) {
			return 0, 0
		}
	}
	decoded := html.UnescapeString(candidate)
	if decoded == candidate {
		return 0, 0
	}
	r, _ := utf8.DecodeRuneInString(decoded)
	return r, end + 1
}

func decodeNumericEntity(s string) (rune, int) {
	i := 2
	hex := false
	if i < len(s) && (s[i] == 'x' || s[i] == 'X') {
		hex = true
		i++
	}

	var x rune
	digits := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			if hex {
				x = 16*x + rune(c-'0')
			} else {
				x = 10*x + rune(c-'0')
			}
		case hex && c >= 'a' && c <= 'f':
			x = 16*x + rune(c-'a') + 10
		case hex && c >= 'A' && c <= 'F':
			x = 16*x + rune(c-'A') + 10
		default:
			goto done
		}
		digits++
		i++
		if x > utf8.MaxRune || digits > 8 {
			return 0, 0
		}
	}
done:
	if digits == 0 || i >= len(s) || s[i] != ';' {
		return 0, 0
	}
	if x == 0 || (x >= 0xD800 && x <= 0xDFFF) {
		x = utf8.RuneError
	}
	return x, i + 1
}

func isEntityNameByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
