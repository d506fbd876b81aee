package pdf

import (
	"bytes"
	"math"
	"strconv"
	"unicode/utf16"

	"golang.org/x/text/encoding/charmap"
)

// textRun is a string shown by one text operator, positioned in user space.
type textRun struct {
	X, Y  float64
	Size  float64
	Width float64
	Text  string
}

// right returns the estimated x coordinate of the end of the run.
func (r textRun) right() float64 {
	return r.X + r.Width
}

// avgGlyphWidth approximates glyph advance as a fraction of the font size
// when font metrics are not available.
const avgGlyphWidth = 0.5

// tjSpaceThreshold is the TJ displacement (thousandths of an em) beyond which
// a kerning adjustment is read as a word break.
const tjSpaceThreshold = 200

// operand is one value on the content-stream operand stack.
type operand struct {
	num   float64
	isNum bool
	str   []byte
	isStr bool
	array []operand
	isArr bool
}

// matrix is a PDF affine matrix [a b c d e f].
type matrix [6]float64

var identity = matrix{1, 0, 0, 1, 0, 0}

// multiply returns m × n.
func (m matrix) multiply(n matrix) matrix {
	return matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

func translate(tx, ty float64) matrix {
	return matrix{1, 0, 0, 1, tx, ty}
}

// textState tracks the text object state needed to position runs.
type textState struct {
	tm, tlm  matrix
	ctm      matrix
	ctmStack []matrix
	leading  float64
	fontSize float64
}

// scale returns the effective vertical scale of the text matrix.
func (s *textState) scale() float64 {
	m := s.tm.multiply(s.ctm)
	v := math.Hypot(m[2], m[3])
	if v == 0 {
		return 1
	}
	return v
}

func (s *textState) nextLine(tx, ty float64) {
	s.tlm = translate(tx, ty).multiply(s.tlm)
	s.tm = s.tlm
}

// contentVisitor receives text events in stream order.
type contentVisitor struct {
	onRun      func(run textRun)
	onLineMove func()
	onEndText  func()
}

// scanContent tokenizes a decoded page content stream and reports every
// text-showing operator with its position. Unknown operators are ignored.
func scanContent(data []byte, v contentVisitor) {
	lx := &lexer{data: data}
	st := &textState{tm: identity, tlm: identity, ctm: identity, fontSize: 1}
	var stack []operand

	show := func(text string) {
		if v.onRun == nil || text == "" {
			return
		}
		m := st.tm.multiply(st.ctm)
		size := st.fontSize * st.scale()
		width := float64(len([]rune(text))) * size * avgGlyphWidth
		v.onRun(textRun{X: m[4], Y: m[5], Size: size, Width: width, Text: text})
		// Advance along the baseline in text space.
		adv := float64(len([]rune(text))) * st.fontSize * avgGlyphWidth
		st.tm = translate(adv, 0).multiply(st.tm)
	}
	lineMove := func() {
		if v.onLineMove != nil {
			v.onLineMove()
		}
	}

	for {
		tok, ok := lx.next()
		if !ok {
			return
		}
		if tok.kind != tokOperator {
			stack = append(stack, tok.value)
			continue
		}

		nums := func(n int) ([]float64, bool) {
			if len(stack) < n {
				return nil, false
			}
			out := make([]float64, n)
			for i, op := range stack[len(stack)-n:] {
				if !op.isNum {
					return nil, false
				}
				out[i] = op.num
			}
			return out, true
		}
		lastString := func() (operand, bool) {
			if len(stack) == 0 {
				return operand{}, false
			}
			return stack[len(stack)-1], true
		}

		switch tok.op {
		case "q":
			st.ctmStack = append(st.ctmStack, st.ctm)
		case "Q":
			if n := len(st.ctmStack); n > 0 {
				st.ctm = st.ctmStack[n-1]
				st.ctmStack = st.ctmStack[:n-1]
			}
		case "cm":
			if n, ok := nums(6); ok {
				st.ctm = matrix{n[0], n[1], n[2], n[3], n[4], n[5]}.multiply(st.ctm)
			}
		case "BT":
			st.tm, st.tlm = identity, identity
		case "ET":
			if v.onEndText != nil {
				v.onEndText()
			}
		case "Tf":
			if n, ok := nums(1); ok {
				st.fontSize = n[0]
			}
		case "TL":
			if n, ok := nums(1); ok {
				st.leading = n[0]
			}
		case "Td":
			if n, ok := nums(2); ok {
				st.nextLine(n[0], n[1])
				lineMove()
			}
		case "TD":
			if n, ok := nums(2); ok {
				st.leading = -n[1]
				st.nextLine(n[0], n[1])
				lineMove()
			}
		case "Tm":
			if n, ok := nums(6); ok {
				st.tlm = matrix{n[0], n[1], n[2], n[3], n[4], n[5]}
				st.tm = st.tlm
				lineMove()
			}
		case "T*":
			st.nextLine(0, -st.leading)
			lineMove()
		case "Tj":
			if op, ok := lastString(); ok && op.isStr {
				show(decodeText(op.str))
			}
		case "'", "\"":
			st.nextLine(0, -st.leading)
			lineMove()
			if op, ok := lastString(); ok && op.isStr {
				show(decodeText(op.str))
			}
		case "TJ":
			if op, ok := lastString(); ok && op.isArr {
				show(joinTJ(op.array))
			}
		case "ID":
			lx.skipInlineImage()
		}
		stack = stack[:0]
	}
}

// joinTJ concatenates the strings of a TJ array, turning large negative
// displacements into spaces.
func joinTJ(items []operand) string {
	var buf bytes.Buffer
	for _, item := range items {
		switch {
		case item.isStr:
			buf.WriteString(decodeText(item.str))
		case item.isNum && -item.num > tjSpaceThreshold:
			if b := buf.Bytes(); len(b) > 0 && b[len(b)-1] != ' ' {
				buf.WriteByte(' ')
			}
		}
	}
	return buf.String()
}

// decodeText converts string bytes to UTF-8. UTF-16BE strings carry a BOM;
// everything else is read as WinAnsi. Composite-font glyph codes have no
// mapping here and are passed through.
func decodeText(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		u := make([]uint16, 0, (len(b)-2)/2)
		for i := 2; i+1 < len(b); i += 2 {
			u = append(u, uint16(b[i])<<8|uint16(b[i+1]))
		}
		return string(utf16.Decode(u))
	}

	clean := make([]byte, 0, len(b))
	for _, c := range b {
		switch {
		case c == '\t' || c == '\n' || c == '\r':
			clean = append(clean, ' ')
		case c < 0x20:
			continue
		default:
			clean = append(clean, c)
		}
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(clean)
	if err != nil {
		return string(clean)
	}
	return string(out)
}

type tokenKind int

const (
	tokOperand tokenKind = iota
	tokOperator
)

type token struct {
	kind  tokenKind
	value operand
	op    string
}

// lexer splits a content stream into operands and operators.
type lexer struct {
	data []byte
	pos  int
}

func isWhite(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == 0
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if isWhite(c) {
			l.pos++
			continue
		}
		if c == '%' {
			for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
			continue
		}
		return
	}
}

// next returns the next token, or false at end of input.
func (l *lexer) next() (token, bool) {
	for {
		l.skipSpace()
		if l.pos >= len(l.data) {
			return token{}, false
		}

		c := l.data[l.pos]
		switch {
		case c == '(':
			return token{kind: tokOperand, value: operand{str: l.literal(), isStr: true}}, true
		case c == '<' && l.peek(1) == '<':
			l.skipDict()
			continue
		case c == '<':
			return token{kind: tokOperand, value: operand{str: l.hex(), isStr: true}}, true
		case c == '[':
			l.pos++
			return token{kind: tokOperand, value: operand{array: l.array(), isArr: true}}, true
		case c == '/':
			l.pos++
			l.word()
			return token{kind: tokOperand}, true
		case c == ']' || c == '>' || c == ')' || c == '{' || c == '}':
			l.pos++
			continue
		case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
			w := l.word()
			if f, err := strconv.ParseFloat(w, 64); err == nil {
				return token{kind: tokOperand, value: operand{num: f, isNum: true}}, true
			}
			continue
		default:
			w := l.word()
			if w == "" {
				l.pos++
				continue
			}
			return token{kind: tokOperator, op: w}, true
		}
	}
}

func (l *lexer) peek(offset int) byte {
	if l.pos+offset < len(l.data) {
		return l.data[l.pos+offset]
	}
	return 0
}

func (l *lexer) word() string {
	start := l.pos
	for l.pos < len(l.data) && !isWhite(l.data[l.pos]) && !isDelim(l.data[l.pos]) {
		l.pos++
	}
	return string(l.data[start:l.pos])
}

func (l *lexer) array() []operand {
	var items []operand
	for {
		l.skipSpace()
		if l.pos >= len(l.data) {
			return items
		}
		if l.data[l.pos] == ']' {
			l.pos++
			return items
		}
		tok, ok := l.next()
		if !ok {
			return items
		}
		if tok.kind == tokOperand {
			items = append(items, tok.value)
		}
	}
}

// literal reads a balanced (...) string, resolving escapes.
func (l *lexer) literal() []byte {
	l.pos++ // (
	var out []byte
	depth := 1
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		switch c {
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return out
			}
			out = append(out, c)
		case '\\':
			if l.pos >= len(l.data) {
				return out
			}
			e := l.data[l.pos]
			l.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if l.peek(0) == '\n' {
					l.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && l.pos < len(l.data) && l.data[l.pos] >= '0' && l.data[l.pos] <= '7'; i++ {
						v = v*8 + int(l.data[l.pos]-'0')
						l.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
		default:
			out = append(out, c)
		}
	}
	return out
}

// hex reads a <...> string. An odd trailing digit is padded with 0.
func (l *lexer) hex() []byte {
	l.pos++ // <
	var digits []byte
	for l.pos < len(l.data) && l.data[l.pos] != '>' {
		if c := l.data[l.pos]; !isWhite(c) {
			digits = append(digits, c)
		}
		l.pos++
	}
	l.pos++ // >
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, 0, len(digits)/2)
	for i := 0; i < len(digits); i += 2 {
		v, err := strconv.ParseUint(string(digits[i:i+2]), 16, 8)
		if err != nil {
			continue
		}
		out = append(out, byte(v))
	}
	return out
}

// skipDict skips a << ... >> dictionary, including nested ones.
func (l *lexer) skipDict() {
	depth := 0
	for l.pos < len(l.data) {
		switch {
		case l.data[l.pos] == '<' && l.peek(1) == '<':
			depth++
			l.pos += 2
		case l.data[l.pos] == '>' && l.peek(1) == '>':
			depth--
			l.pos += 2
			if depth == 0 {
				return
			}
		case l.data[l.pos] == '(':
			l.literal()
		default:
			l.pos++
		}
	}
}

// skipInlineImage jumps over binary inline image data up to the EI operator.
func (l *lexer) skipInlineImage() {
	if l.pos < len(l.data) && isWhite(l.data[l.pos]) {
		l.pos++
	}
	for l.pos+2 <= len(l.data) {
		if l.data[l.pos] == 'E' && l.peek(1) == 'I' &&
			(l.pos == 0 || isWhite(l.data[l.pos-1])) &&
			(l.pos+2 == len(l.data) || isWhite(l.data[l.pos+2])) {
			l.pos += 2
			return
		}
		l.pos++
	}
	l.pos = len(l.data)
}
