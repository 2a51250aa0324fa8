// mathexpr.go implements the restricted arithmetic evaluator used by the
// math handler. The grammar admits numbers, + - * / %, and parentheses;
// no identifiers, no calls. Input is sanitized to that character set first,
// so arbitrary text degrades to "empty expression" rather than an injection
// vector.
package assistant

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrEmptyExpression means nothing evaluable remained after sanitizing.
	ErrEmptyExpression = errors.New("empty expression")

	// ErrDivisionByZero is returned for x/0 and x%0.
	ErrDivisionByZero = errors.New("division by zero")
)

// SanitizeExpression strips every character outside the evaluator's
// alphabet (digits, + - * / % ( ) . and spaces) from the input.
func SanitizeExpression(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case strings.ContainsRune("+-*/%(). ", r):
			b.WriteRune(r)
		case r == '×':
			b.WriteRune('*')
		case r == '÷':
			b.WriteRune('/')
		}
	}
	return strings.TrimSpace(b.String())
}

// EvalExpression evaluates a sanitized arithmetic expression.
func EvalExpression(expr string) (float64, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return 0, ErrEmptyExpression
	}
	p := &exprParser{input: expr}
	v, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpaces()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("unexpected character %q at position %d", p.input[p.pos], p.pos)
	}
	return v, nil
}

// FormatNumber renders a result the way users expect: integers without a
// decimal point, everything else in minimal form.
func FormatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// exprParser is a recursive-descent parser over the restricted grammar:
//
//	expr   := term   (('+' | '-') term)*
//	term   := factor (('*' | '/' | '%') factor)*
//	factor := ('+' | '-')* (number | '(' expr ')')
type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) skipSpaces() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *exprParser) peek() byte {
	p.skipSpaces()
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *exprParser) parseExpr() (float64, error) {
	v, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			rhs, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			v += rhs
		case '-':
			p.pos++
			rhs, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			v -= rhs
		default:
			return v, nil
		}
	}
}

func (p *exprParser) parseTerm() (float64, error) {
	v, err := p.parseFactor()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '*':
			p.pos++
			rhs, err := p.parseFactor()
			if err != nil {
				return 0, err
			}
			v *= rhs
		case '/':
			p.pos++
			rhs, err := p.parseFactor()
			if err != nil {
				return 0, err
			}
			if rhs == 0 {
				return 0, ErrDivisionByZero
			}
			v /= rhs
		case '%':
			p.pos++
			rhs, err := p.parseFactor()
			if err != nil {
				return 0, err
			}
			if rhs == 0 {
				return 0, ErrDivisionByZero
			}
			v = math.Mod(v, rhs)
		default:
			return v, nil
		}
	}
}

func (p *exprParser) parseFactor() (float64, error) {
	switch p.peek() {
	case 0:
		return 0, errors.New("unexpected end of expression")
	case '+':
		p.pos++
		return p.parseFactor()
	case '-':
		p.pos++
		v, err := p.parseFactor()
		return -v, err
	case '(':
		p.pos++
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, errors.New("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	}
	return p.parseNumber()
}

func (p *exprParser) parseNumber() (float64, error) {
	p.skipSpaces()
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if (c >= '0' && c <= '9') || c == '.' {
			p.pos++
			continue
		}
		break
	}
	if start == p.pos {
		return 0, fmt.Errorf("expected number at position %d", start)
	}
	v, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("malformed number %q", p.input[start:p.pos])
	}
	return v, nil
}
