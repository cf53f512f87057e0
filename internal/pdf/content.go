package pdf

import (
	"strconv"
	"strings"
)

// ContentText pulls the shown text out of a decoded page content stream.
// Literal and hex strings passed to Tj, TJ, ' and " are kept. Line moves
// (T*, ', ", a downward Td/TD, ET) become newlines and large TJ kerning
// offsets become spaces, which keeps table rows on separate lines.
func ContentText(stream []byte) string {
	var (
		b        strings.Builder
		operands []token
	)

	newline := func() {
		s := b.String()
		if len(s) > 0 && !strings.HasSuffix(s, "\n") {
			b.WriteByte('\n')
		}
	}
	space := func() {
		s := b.String()
		if len(s) > 0 && !strings.HasSuffix(s, " ") && !strings.HasSuffix(s, "\n") {
			b.WriteByte(' ')
		}
	}
	show := func(toks []token) {
		for _, t := range toks {
			switch t.kind {
			case tokString:
				b.WriteString(t.text)
			case tokNumber:
				// Kerning in thousandths of text space; large gaps separate words.
				if v, err := strconv.ParseFloat(t.text, 64); err == nil && v < -200 {
					space()
				}
			}
		}
	}

	lx := lexer{data: stream}
	for {
		t, ok := lx.next()
		if !ok {
			break
		}
		if t.kind != tokOperator {
			operands = append(operands, t)
			continue
		}

		switch t.text {
		case "Tj", "TJ":
			show(operands)
		case "'", "\"":
			newline()
			show(operands)
		case "T*", "ET":
			newline()
		case "Td", "TD":
			if len(operands) >= 2 {
				if ty, err := strconv.ParseFloat(operands[len(operands)-1].text, 64); err == nil && ty < 0 {
					newline()
					break
				}
			}
			space()
		}
		operands = operands[:0]
	}

	return tidy(b.String())
}

// tidy collapses runs of blanks within lines and drops empty lines.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

type tokenKind int

const (
	tokOperator tokenKind = iota
	tokNumber
	tokString
	tokOther
)

type token struct {
	kind tokenKind
	text string
}

// lexer tokenizes a content stream just far enough to find text operators.
type lexer struct {
	data []byte
	pos  int
}

func (l *lexer) next() (token, bool) {
	l.skipSpace()
	if l.pos >= len(l.data) {
		return token{}, false
	}

	c := l.data[l.pos]
	switch {
	case c == '(':
		return token{kind: tokString, text: l.literal()}, true
	case c == '<' && l.peek(1) == '<':
		l.pos += 2
		return token{kind: tokOther, text: "<<"}, true
	case c == '>' && l.peek(1) == '>':
		l.pos += 2
		return token{kind: tokOther, text: ">>"}, true
	case c == '<':
		return token{kind: tokString, text: l.hex()}, true
	case c == '[' || c == ']' || c == '{' || c == '}':
		l.pos++
		return token{kind: tokOther, text: string(c)}, true
	case c == '/':
		start := l.pos
		l.pos++
		l.word()
		return token{kind: tokOther, text: string(l.data[start:l.pos])}, true
	case c == '%':
		for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
			l.pos++
		}
		return l.next()
	}

	start := l.pos
	l.word()
	if l.pos == start {
		l.pos++
		return token{kind: tokOther, text: string(c)}, true
	}
	w := string(l.data[start:l.pos])
	if _, err := strconv.ParseFloat(w, 64); err == nil {
		return token{kind: tokNumber, text: w}, true
	}
	return token{kind: tokOperator, text: w}, true
}

func (l *lexer) peek(n int) byte {
	if l.pos+n < len(l.data) {
		return l.data[l.pos+n]
	}
	return 0
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.data) && isSpace(l.data[l.pos]) {
		l.pos++
	}
}

func (l *lexer) word() {
	for l.pos < len(l.data) && !isSpace(l.data[l.pos]) && !isDelim(l.data[l.pos]) {
		l.pos++
	}
}

// literal reads a (string) with nested parentheses and escapes.
func (l *lexer) literal() string {
	var b strings.Builder
	depth := 0
	l.pos++ // (
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		switch c {
		case '\\':
			if l.pos >= len(l.data) {
				return b.String()
			}
			e := l.data[l.pos]
			l.pos++
			switch e {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'b', 'f':
			case '\r', '\n':
				// line continuation
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && l.pos < len(l.data) && l.data[l.pos] >= '0' && l.data[l.pos] <= '7'; i++ {
						v = v*8 + int(l.data[l.pos]-'0')
						l.pos++
					}
					b.WriteByte(byte(v))
				} else {
					b.WriteByte(e)
				}
			}
		case '(':
			depth++
			b.WriteByte(c)
		case ')':
			if depth == 0 {
				return b.String()
			}
			depth--
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// hex reads a <hex string>. Two-byte strings that look like UTF-16 code
// units are decoded as such, otherwise bytes are kept as Latin-1.
func (l *lexer) hex() string {
	l.pos++ // <
	var digits []byte
	for l.pos < len(l.data) && l.data[l.pos] != '>' {
		if c := l.data[l.pos]; isHex(c) {
			digits = append(digits, c)
		}
		l.pos++
	}
	l.pos++ // >
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}

	raw := make([]byte, len(digits)/2)
	for i := range raw {
		v, _ := strconv.ParseUint(string(digits[2*i:2*i+2]), 16, 8)
		raw[i] = byte(v)
	}

	if len(raw) >= 2 && len(raw)%2 == 0 && raw[0] == 0 {
		var b strings.Builder
		for i := 0; i+1 < len(raw); i += 2 {
			b.WriteRune(rune(raw[i])<<8 | rune(raw[i+1]))
		}
		return b.String()
	}
	var b strings.Builder
	for _, c := range raw {
		b.WriteRune(rune(c))
	}
	return b.String()
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0:
		return true
	}
	return false
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
