package echo

import (
	"fmt"
	"strconv"
	"strings"
)

// evalExpr evaluates an integer arithmetic expression with the usual
// precedence and parentheses.
func evalExpr(input string) (int64, error) {
	p := &parser{input: input}
	value, err := p.expr()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("unexpected input at position %d", p.pos)
	}
	return value, nil
}

type parser struct {
	input string
	pos   int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *parser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *parser) expr() (int64, error) {
	left, err := p.term()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.term()
			if err != nil {
				return 0, err
			}
			left += right
		case '-':
			p.pos++
			right, err := p.term()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *parser) term() (int64, error) {
	left, err := p.atom()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '*':
			p.pos++
			right, err := p.atom()
			if err != nil {
				return 0, err
			}
			left *= right
		case '/':
			p.pos++
			right, err := p.atom()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		default:
			return left, nil
		}
	}
}

func (p *parser) atom() (int64, error) {
	switch c := p.peek(); {
	case c == '(':
		p.pos++
		value, err := p.expr()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return value, nil
	case c == '-':
		p.pos++
		value, err := p.atom()
		if err != nil {
			return 0, err
		}
		return -value, nil
	case c >= '0' && c <= '9':
		start := p.pos
		for p.pos < len(p.input) && p.input[p.pos] >= '0' && p.input[p.pos] <= '9' {
			p.pos++
		}
		return strconv.ParseInt(p.input[start:p.pos], 10, 64)
	case c == 0:
		return 0, fmt.Errorf("unexpected end of input")
	default:
		return 0, fmt.Errorf("unexpected character %q", string(c))
	}
}

// firstToken returns the leading identifier of a line, used by the
// inspect handler.
func firstToken(code string) string {
	code = strings.TrimSpace(code)
	end := 0
	for end < len(code) && (code[end] == '_' ||
		(code[end] >= 'a' && code[end] <= 'z') ||
		(code[end] >= 'A' && code[end] <= 'Z')) {
		end++
	}
	return code[:end]
}
