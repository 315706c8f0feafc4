package protocol

import (
	"fmt"
	"strconv"
)

// Parse decodes a single JSON document from text. All failures wrap
// ErrMalformed; the caller drops the message and keeps receiving.
func Parse(text string) (Value, error) {
	p := &parser{s: text}
	v, err := p.parseValue()
	if err != nil {
		return Value{}, err
	}
	return v, nil
}

type parser struct {
	s   string
	pos int
}

func (p *parser) parseValue() (Value, error) {
	p.skipWhitespace()
	if p.pos >= len(p.s) {
		return Value{}, fmt.Errorf("%w: unexpected end of input at offset %d", ErrMalformed, p.pos)
	}

	switch c := p.s[p.pos]; {
	case c == '"':
		return p.parseString()
	case c == '{':
		return p.parseObject()
	case c == '[':
		return p.parseArray()
	case c == 't':
		if err := p.expect("true"); err != nil {
			return Value{}, err
		}
		return Value{kind: KindBool, b: true}, nil
	case c == 'f':
		if err := p.expect("false"); err != nil {
			return Value{}, err
		}
		return Value{kind: KindBool, b: false}, nil
	case c == 'n':
		if err := p.expect("null"); err != nil {
			return Value{}, err
		}
		return Value{kind: KindNull}, nil
	case c == '-' || (c >= '0' && c <= '9'):
		return p.parseNumber()
	default:
		return Value{}, fmt.Errorf("%w: unexpected character %q at offset %d", ErrMalformed, c, p.pos)
	}
}

func (p *parser) skipWhitespace() {
	for p.pos < len(p.s) {
		switch p.s[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) expect(lit string) error {
	if p.pos+len(lit) > len(p.s) || p.s[p.pos:p.pos+len(lit)] != lit {
		return fmt.Errorf("%w: unexpected character %q at offset %d", ErrMalformed, p.s[p.pos], p.pos)
	}
	p.pos += len(lit)
	return nil
}

func (p *parser) parseString() (Value, error) {
	p.pos++ // opening quote
	var buf []byte
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		if c == '"' {
			p.pos++
			return Value{kind: KindString, str: string(buf)}, nil
		}
		if c == '\\' {
			p.pos++
			if p.pos >= len(p.s) {
				return Value{}, fmt.Errorf("%w: unexpected end of input in string escape", ErrMalformed)
			}
			switch p.s[p.pos] {
			case '"', '\\', '/':
				buf = append(buf, p.s[p.pos])
			case 'b':
				buf = append(buf, '\b')
			case 'f':
				buf = append(buf, '\f')
			case 'n':
				buf = append(buf, '\n')
			case 'r':
				buf = append(buf, '\r')
			case 't':
				buf = append(buf, '\t')
			default:
				return Value{}, fmt.Errorf("%w: invalid escape sequence \\%c at offset %d", ErrMalformed, p.s[p.pos], p.pos)
			}
			p.pos++
			continue
		}
		buf = append(buf, c)
		p.pos++
	}
	return Value{}, fmt.Errorf("%w: unterminated string", ErrMalformed)
}

func (p *parser) parseNumber() (Value, error) {
	start := p.pos
	if p.s[p.pos] == '-' {
		p.pos++
	}
	for p.pos < len(p.s) && p.s[p.pos] >= '0' && p.s[p.pos] <= '9' {
		p.pos++
	}
	if p.pos < len(p.s) && p.s[p.pos] == '.' {
		p.pos++
		for p.pos < len(p.s) && p.s[p.pos] >= '0' && p.s[p.pos] <= '9' {
			p.pos++
		}
	}
	if p.pos < len(p.s) && (p.s[p.pos] == 'e' || p.s[p.pos] == 'E') {
		p.pos++
		if p.pos < len(p.s) && (p.s[p.pos] == '+' || p.s[p.pos] == '-') {
			p.pos++
		}
		for p.pos < len(p.s) && p.s[p.pos] >= '0' && p.s[p.pos] <= '9' {
			p.pos++
		}
	}

	f, err := strconv.ParseFloat(p.s[start:p.pos], 64)
	if err != nil {
		return Value{}, fmt.Errorf("%w: invalid number %q at offset %d", ErrMalformed, p.s[start:p.pos], start)
	}
	return Value{kind: KindNumber, num: f}, nil
}

func (p *parser) parseObject() (Value, error) {
	p.pos++ // '{'
	obj := make(map[string]Value)

	p.skipWhitespace()
	if p.pos < len(p.s) && p.s[p.pos] == '}' {
		p.pos++
		return Value{kind: KindObject, obj: obj}, nil
	}

	for {
		p.skipWhitespace()
		if p.pos >= len(p.s) || p.s[p.pos] != '"' {
			return Value{}, fmt.Errorf("%w: expected string key at offset %d", ErrMalformed, p.pos)
		}
		key, err := p.parseString()
		if err != nil {
			return Value{}, err
		}

		p.skipWhitespace()
		if p.pos >= len(p.s) || p.s[p.pos] != ':' {
			return Value{}, fmt.Errorf("%w: expected ':' at offset %d", ErrMalformed, p.pos)
		}
		p.pos++

		val, err := p.parseValue()
		if err != nil {
			return Value{}, err
		}
		obj[key.str] = val

		p.skipWhitespace()
		if p.pos >= len(p.s) {
			return Value{}, fmt.Errorf("%w: unexpected end of input in object", ErrMalformed)
		}
		if p.s[p.pos] == '}' {
			p.pos++
			return Value{kind: KindObject, obj: obj}, nil
		}
		if p.s[p.pos] != ',' {
			return Value{}, fmt.Errorf("%w: expected ',' or '}' at offset %d", ErrMalformed, p.pos)
		}
		p.pos++
	}
}

func (p *parser) parseArray() (Value, error) {
	p.pos++ // '['
	var arr []Value

	p.skipWhitespace()
	if p.pos < len(p.s) && p.s[p.pos] == ']' {
		p.pos++
		return Value{kind: KindArray, arr: arr}, nil
	}

	for {
		val, err := p.parseValue()
		if err != nil {
			return Value{}, err
		}
		arr = append(arr, val)

		p.skipWhitespace()
		if p.pos >= len(p.s) {
			return Value{}, fmt.Errorf("%w: unexpected end of input in array", ErrMalformed)
		}
		if p.s[p.pos] == ']' {
			p.pos++
			return Value{kind: KindArray, arr: arr}, nil
		}
		if p.s[p.pos] != ',' {
			return Value{}, fmt.Errorf("%w: expected ',' or ']' at offset %d", ErrMalformed, p.pos)
		}
		p.pos++
	}
}
