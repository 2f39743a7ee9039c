package style

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Declaration is one name: value pair of a rule.
type Declaration struct {
	Name  string
	Value Value
}

// Rule pairs a selector with its declarations. Declarations are sorted by
// name and unique; a name declared twice in one block keeps the later
// value.
type Rule struct {
	Selector     Selector
	Declarations []Declaration
}

// Get returns the value declared for name.
func (r Rule) Get(name string) (Value, bool) {
	i := sort.Search(len(r.Declarations), func(i int) bool { return r.Declarations[i].Name >= name })
	if i < len(r.Declarations) && r.Declarations[i].Name == name {
		return r.Declarations[i].Value, true
	}
	return nil, false
}

func (r *Rule) set(name string, v Value) {
	i := sort.Search(len(r.Declarations), func(i int) bool { return r.Declarations[i].Name >= name })
	if i < len(r.Declarations) && r.Declarations[i].Name == name {
		r.Declarations[i].Value = v
		return
	}
	r.Declarations = append(r.Declarations, Declaration{})
	copy(r.Declarations[i+1:], r.Declarations[i:])
	r.Declarations[i] = Declaration{Name: name, Value: v}
}

func (r Rule) String() string {
	var b strings.Builder
	b.WriteString(r.Selector.String())
	b.WriteString(" {")
	for _, d := range r.Declarations {
		fmt.Fprintf(&b, " %s: %s;", d.Name, d.Value)
	}
	b.WriteString(" }")
	return b.String()
}

// ParseError points at the byte where parsing stopped.
type ParseError struct {
	Offset int
	Line   int
	Column int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("stylesheet:%d:%d: %s (offset %d)", e.Line, e.Column, e.Msg, e.Offset)
}

// Parse reads a stylesheet into rules in declaration order. A selector
// list such as "a, b { ... }" produces one rule per selector.
func Parse(text string) ([]Rule, error) {
	p := &parser{src: text}
	return p.parse()
}

type parser struct {
	src string
	pos int
}

func (p *parser) errorf(format string, args ...interface{}) error {
	line, col := 1, 1
	for i := 0; i < p.pos && i < len(p.src); i++ {
		if p.src[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return &ParseError{Offset: p.pos, Line: line, Column: col, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) eof() bool {
	return p.pos >= len(p.src)
}

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

// skip consumes whitespace and /* */ comments.
func (p *parser) skip() error {
	for !p.eof() {
		c := p.src[p.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f':
			p.pos++
		case strings.HasPrefix(p.src[p.pos:], "/*"):
			end := strings.Index(p.src[p.pos+2:], "*/")
			if end < 0 {
				return p.errorf("unterminated comment")
			}
			p.pos += end + 4
		default:
			return nil
		}
	}
	return nil
}

func (p *parser) expect(c byte) error {
	if err := p.skip(); err != nil {
		return err
	}
	if p.peek() != c {
		if p.eof() {
			return p.errorf("expected %q, found end of input", c)
		}
		return p.errorf("expected %q, found %q", c, p.peek())
	}
	p.pos++
	return nil
}

func (p *parser) name() (string, error) {
	start := p.pos
	for !p.eof() && isNameByte(p.src[p.pos]) {
		p.pos++
	}
	if start == p.pos {
		if p.eof() {
			return "", p.errorf("expected a name, found end of input")
		}
		return "", p.errorf("expected a name, found %q", p.peek())
	}
	return p.src[start:p.pos], nil
}

func (p *parser) parse() ([]Rule, error) {
	var rules []Rule
	for {
		if err := p.skip(); err != nil {
			return nil, err
		}
		if p.eof() {
			return rules, nil
		}

		selectors, err := p.selectorList()
		if err != nil {
			return nil, err
		}
		if err := p.expect('{'); err != nil {
			return nil, err
		}
		block, err := p.declarations()
		if err != nil {
			return nil, err
		}
		for _, sel := range selectors {
			rules = append(rules, Rule{Selector: sel, Declarations: block.Declarations})
		}
	}
}

func (p *parser) selectorList() ([]Selector, error) {
	var list []Selector
	for {
		sel, err := p.selector()
		if err != nil {
			return nil, err
		}
		list = append(list, sel)

		if err := p.skip(); err != nil {
			return nil, err
		}
		if p.peek() != ',' {
			return list, nil
		}
		p.pos++
	}
}

func (p *parser) selector() (Selector, error) {
	var sel Selector
	if err := p.skip(); err != nil {
		return sel, err
	}

	switch c := p.peek(); {
	case c == '*':
		p.pos++
	case isNameByte(c):
		typ, err := p.name()
		if err != nil {
			return sel, err
		}
		sel = sel.WithType(typ)
	}

	for {
		if err := p.skip(); err != nil {
			return sel, err
		}
		switch p.peek() {
		case '.':
			p.pos++
			class, err := p.name()
			if err != nil {
				return sel, err
			}
			sel = sel.WithClass(class)
		case '#':
			p.pos++
			id, err := p.name()
			if err != nil {
				return sel, err
			}
			sel = sel.WithID(id)
		case '[':
			p.pos++
			key, value, err := p.attribute()
			if err != nil {
				return sel, err
			}
			sel = sel.WithAttribute(key, value)
		case '{', ',':
			return sel, nil
		default:
			if p.eof() {
				return sel, p.errorf("unexpected end of input in selector")
			}
			return sel, p.errorf("unexpected %q in selector", p.peek())
		}
	}
}

func (p *parser) attribute() (string, string, error) {
	if err := p.skip(); err != nil {
		return "", "", err
	}
	key, err := p.name()
	if err != nil {
		return "", "", err
	}
	if err := p.expect('='); err != nil {
		return "", "", err
	}
	if err := p.skip(); err != nil {
		return "", "", err
	}

	var value string
	if c := p.peek(); c == '"' || c == '\'' {
		value, err = p.quoted()
	} else {
		start := p.pos
		for !p.eof() && isAttrValueByte(p.src[p.pos]) {
			p.pos++
		}
		if start == p.pos {
			err = p.errorf("expected an attribute value")
		}
		value = p.src[start:p.pos]
	}
	if err != nil {
		return "", "", err
	}

	if err := p.expect(']'); err != nil {
		return "", "", err
	}
	return key, value, nil
}

func (p *parser) quoted() (string, error) {
	quote := p.src[p.pos]
	p.pos++
	var b strings.Builder
	for !p.eof() {
		c := p.src[p.pos]
		p.pos++
		switch {
		case c == '\\' && !p.eof():
			b.WriteByte(p.src[p.pos])
			p.pos++
		case c == quote:
			return b.String(), nil
		default:
			b.WriteByte(c)
		}
	}
	return "", p.errorf("unterminated string")
}

func (p *parser) declarations() (Rule, error) {
	var block Rule
	for {
		if err := p.skip(); err != nil {
			return block, err
		}
		switch p.peek() {
		case '}':
			p.pos++
			return block, nil
		case ';':
			p.pos++
			continue
		}
		if p.eof() {
			return block, p.errorf("unexpected end of input in declaration block")
		}

		name, err := p.name()
		if err != nil {
			return block, err
		}
		if err := p.expect(':'); err != nil {
			return block, err
		}
		value, err := p.value()
		if err != nil {
			return block, err
		}
		block.set(name, value)

		if err := p.skip(); err != nil {
			return block, err
		}
		switch p.peek() {
		case ';':
			p.pos++
		case '}':
		default:
			if p.eof() {
				return block, p.errorf("unexpected end of input after %s", name)
			}
			return block, p.errorf("expected ';' after %s, found %q", name, p.peek())
		}
	}
}

func (p *parser) value() (Value, error) {
	if err := p.skip(); err != nil {
		return nil, err
	}

	c := p.peek()
	switch {
	case c == '#':
		return p.hexColor()
	case c == '"' || c == '\'':
		s, err := p.quoted()
		return StringValue(s), err
	case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
		return p.number()
	case isNameByte(c):
		ident, err := p.name()
		if err != nil {
			return nil, err
		}
		if ident == "rgb" || ident == "rgba" {
			if err := p.skip(); err != nil {
				return nil, err
			}
			if p.peek() == '(' {
				return p.rgbFunction(ident)
			}
		}
		return StringValue(ident), nil
	}
	if p.eof() {
		return nil, p.errorf("expected a value, found end of input")
	}
	return nil, p.errorf("expected a value, found %q", c)
}

func (p *parser) hexColor() (Value, error) {
	start := p.pos
	p.pos++
	for !p.eof() && isHex(p.src[p.pos]) {
		p.pos++
	}
	digits := p.src[start+1 : p.pos]

	expand := func(s string) string {
		var b strings.Builder
		for i := 0; i < len(s); i++ {
			b.WriteByte(s[i])
			b.WriteByte(s[i])
		}
		return b.String()
	}

	switch len(digits) {
	case 3, 4:
		digits = expand(digits)
	case 6, 8:
	default:
		p.pos = start
		return nil, p.errorf("invalid hex color %q", p.src[start:start+1+len(digits)])
	}

	v, _ := strconv.ParseUint(digits, 16, 32)
	if len(digits) == 6 {
		return ColorValue{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 1}, nil
	}
	return ColorValue{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: float32(uint8(v)) / 255}, nil
}

func (p *parser) rgbFunction(fn string) (Value, error) {
	p.pos++ // (
	want := 3
	if fn == "rgba" {
		want = 4
	}

	var args []float64
	for i := 0; i < want; i++ {
		if i > 0 {
			if err := p.expect(','); err != nil {
				return nil, err
			}
		}
		if err := p.skip(); err != nil {
			return nil, err
		}
		start := p.pos
		f, err := p.float()
		if err != nil {
			return nil, err
		}
		if i < 3 && (f < 0 || f > 255) {
			p.pos = start
			return nil, p.errorf("%s channel %v out of range", fn, f)
		}
		if i == 3 && (f < 0 || f > 1) {
			p.pos = start
			return nil, p.errorf("%s alpha %v out of range", fn, f)
		}
		args = append(args, f)
	}
	if err := p.expect(')'); err != nil {
		return nil, err
	}

	c := ColorValue{R: uint8(args[0]), G: uint8(args[1]), B: uint8(args[2]), A: 1}
	if want == 4 {
		c.A = float32(args[3])
	}
	return c, nil
}

func (p *parser) float() (float64, error) {
	start := p.pos
	if c := p.peek(); c == '-' || c == '+' {
		p.pos++
	}
	for !p.eof() {
		c := p.src[p.pos]
		if (c >= '0' && c <= '9') || c == '.' {
			p.pos++
			continue
		}
		break
	}
	end := p.pos
	f, err := strconv.ParseFloat(p.src[start:end], 64)
	if err != nil {
		p.pos = start
		return 0, p.errorf("invalid number %q", p.src[start:end])
	}
	return f, nil
}

func (p *parser) number() (Value, error) {
	f, err := p.float()
	if err != nil {
		return nil, err
	}
	switch {
	case strings.HasPrefix(p.src[p.pos:], "px"):
		p.pos += 2
		return NumberValue{Value: float32(f), Unit: Px}, nil
	case p.peek() == 'w':
		p.pos++
		return NumberValue{Value: float32(f), Unit: World}, nil
	}
	if !p.eof() && isNameByte(p.peek()) {
		return nil, p.errorf("unknown unit starting at %q", p.peek())
	}
	return NumberValue{Value: float32(f), Unit: Unitless}, nil
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
