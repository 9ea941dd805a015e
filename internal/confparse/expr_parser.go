package confparse

import (
	"strconv"
	"strings"

	"dhcpd/internal/expr"
)

// parseExpr parses the boolean/data expression grammar used by `if`
// conditions and `match if` class predicates: a small subset of spec
// §4.3's full expression language — boolean and/or/not, equality,
// exists/known/static, and `option <universe>.<name>` references —
// sufficient for the configuration forms the rest of this parser
// produces scopes for. Anything beyond this subset is a parse error
// rather than a silent misinterpretation.
func (p *Parser) parseExpr() (*expr.Expression, error) {
	return p.parseOr()
}

func (p *Parser) parseOr() (*expr.Expression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peekKeyword("or") {
		p.lex.Next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &expr.Expression{Op: expr.OpOr, Kids: []*expr.Expression{left, right}}
	}
	return left, nil
}

func (p *Parser) parseAnd() (*expr.Expression, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.peekKeyword("and") {
		p.lex.Next()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = &expr.Expression{Op: expr.OpAnd, Kids: []*expr.Expression{left, right}}
	}
	return left, nil
}

func (p *Parser) parseEquality() (*expr.Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.lex.Peek(0).Kind == TokEquals {
		p.lex.Next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &expr.Expression{Op: expr.OpEqual, Kids: []*expr.Expression{left, right}}, nil
	}
	return left, nil
}

func (p *Parser) parseUnary() (*expr.Expression, error) {
	t := p.lex.Peek(0)
	if t.Kind == TokNot || p.peekKeyword("not") {
		p.lex.Next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &expr.Expression{Op: expr.OpNot, Kids: []*expr.Expression{inner}}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (*expr.Expression, error) {
	t := p.lex.Peek(0)
	switch {
	case t.Kind == TokLParen:
		p.lex.Next()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen, ")"); err != nil {
			return nil, err
		}
		return e, nil

	case t.Kind == TokString:
		p.lex.Next()
		return expr.Literal(expr.DataValue([]byte(t.Text), true)), nil

	case t.Kind == TokHexString:
		p.lex.Next()
		return expr.Literal(expr.DataValue(parseHexColon(t.Text), false)), nil

	case t.Kind == TokIPAddr:
		p.lex.Next()
		ip, err := parseIPv4(t.Text)
		if err != nil {
			return nil, err
		}
		return expr.Literal(expr.DataValue(ip[:], false)), nil

	case t.Kind == TokNumber:
		p.lex.Next()
		n, err := strconv.ParseInt(t.Text, 10, 64)
		if err != nil {
			return nil, p.errorf(t, "invalid number %q", t.Text)
		}
		return expr.Literal(expr.Num(n)), nil

	case t.Kind == TokIdent && strings.EqualFold(t.Text, "exists"):
		p.lex.Next()
		universe, code, err := p.parseOptionRef()
		if err != nil {
			return nil, err
		}
		return &expr.Expression{Op: expr.OpExists, Universe: universe, Code: code}, nil

	case t.Kind == TokIdent && strings.EqualFold(t.Text, "known"):
		p.lex.Next()
		return &expr.Expression{Op: expr.OpKnown}, nil

	case t.Kind == TokIdent && strings.EqualFold(t.Text, "static"):
		p.lex.Next()
		return &expr.Expression{Op: expr.OpStatic}, nil

	case t.Kind == TokIdent && strings.EqualFold(t.Text, "option"):
		p.lex.Next()
		universe, code, err := p.parseOptionRefAfterKeyword()
		if err != nil {
			return nil, err
		}
		return &expr.Expression{Op: expr.OpOption, Universe: universe, Code: code}, nil

	default:
		return nil, p.errorf(t, "unexpected token %q in expression", t.Text)
	}
}

func (p *Parser) peekKeyword(kw string) bool {
	t := p.lex.Peek(0)
	return t.Kind == TokIdent && strings.EqualFold(t.Text, kw)
}

// parseOptionRef parses `option <universe>.<name>` or `option <name>`
// after the `exists` keyword, consuming the leading `option` itself.
func (p *Parser) parseOptionRef() (string, uint8, error) {
	if _, err := p.expectKeyword("option"); err != nil {
		return "", 0, err
	}
	return p.parseOptionRefAfterKeyword()
}

func (p *Parser) parseOptionRefAfterKeyword() (string, uint8, error) {
	nameTok, err := p.expect(TokIdent, "option name")
	if err != nil {
		return "", 0, err
	}
	universe, name := "dhcp", nameTok.Text
	if p.lex.Peek(0).Kind == TokDot {
		p.lex.Next()
		universe = nameTok.Text
		nameTok2, err := p.expect(TokIdent, "option name")
		if err != nil {
			return "", 0, err
		}
		name = nameTok2.Text
	}
	u, ok := p.reg.Universe(universe)
	if !ok {
		return universe, 0, p.errorf(nameTok, "unknown option universe %q", universe)
	}
	def, ok := u.ByName(name)
	if !ok {
		return universe, 0, p.errorf(nameTok, "unknown option %q in universe %q", name, universe)
	}
	return universe, def.Code, nil
}
