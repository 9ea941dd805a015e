package confparse

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"strings"

	"dhcpd/internal/expr"
	"dhcpd/internal/group"
	"dhcpd/internal/options"
)

// PoolDecl is one parsed `pool { range a b; }` block, resolved to the
// scope it belongs to so the caller can hand it to lease.Database.NewPool.
type PoolDecl struct {
	Scope *group.Group
	Start [4]byte
	End   [4]byte
}

// HostDecl is one parsed `host name { ... }` declaration.
type HostDecl struct {
	Name         string
	HWAddr       []byte
	ClientID     []byte
	FixedAddress [4]byte
	HasFixed     bool
	Scope        *group.Group
}

// Result is everything the parser produced from one configuration
// file: the scope tree rooted at Root, every pool and host
// declaration encountered, and the option registry the parser
// resolved option names against. The registry only grows by the empty
// universes Declare creates for `option <universe>.<name>` references
// to an unknown universe; `option space` and `option <name> code N =
// <type>` declarations are skipped and register nothing.
type Result struct {
	Root      *group.Group
	Pools     []PoolDecl
	Hosts     []HostDecl
	Classes   map[string]*group.Class
	Registry  *options.Registry
}

// Parser is the recursive-descent parser over a Lexer.
type Parser struct {
	lex *Lexer
	reg *options.Registry
}

// NewParser creates a parser using reg to resolve option names; reg is
// mutated in place only when an option reference names a universe it
// does not yet have (custom option declarations are not parsed).
func NewParser(src string, reg *options.Registry) *Parser {
	return &Parser{lex: NewLexer(src), reg: reg}
}

// ParseError carries the lexer's two-line diagnostic context alongside
// the message, per spec §4.5.
type ParseError struct {
	Msg     string
	Line    int
	Context string
}

func (e *ParseError) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
	}
	return fmt.Sprintf("line %d: %s\n%s", e.Line, e.Msg, e.Context)
}

func (p *Parser) errorf(tok Token, format string, args ...any) error {
	return &ParseError{Msg: fmt.Sprintf(format, args...), Line: tok.Line, Context: p.lex.DiagContext()}
}

func (p *Parser) expect(kind TokenKind, what string) (Token, error) {
	t := p.lex.Next()
	if t.Kind != kind {
		return t, p.errorf(t, "expected %s, got %q", what, t.Text)
	}
	return t, nil
}

// Parse runs the parser over the whole input, returning the populated
// scope tree and declarations.
func (p *Parser) Parse() (*Result, error) {
	res := &Result{
		Root:     group.New(group.KindRoot, "", nil),
		Classes:  make(map[string]*group.Class),
		Registry: p.reg,
	}
	if err := p.parseBlockBody(res.Root, res); err != nil {
		return nil, err
	}
	return res, nil
}

// parseBlockBody parses statements until EOF or a closing brace
// (already consumed by the caller for the brace case), attaching
// declarations to scope.
func (p *Parser) parseBlockBody(scope *group.Group, res *Result) error {
	for {
		t := p.lex.Peek(0)
		if t.Kind == TokEOF || t.Kind == TokRBrace {
			return nil
		}
		if err := p.parseStatement(scope, res); err != nil {
			return err
		}
	}
}

func (p *Parser) parseStatement(scope *group.Group, res *Result) error {
	t := p.lex.Peek(0)
	if t.Kind != TokIdent {
		return p.errorf(t, "expected statement, got %q", t.Text)
	}

	switch strings.ToLower(t.Text) {
	case "subnet":
		return p.parseSubnet(scope, res)
	case "shared-network":
		return p.parseSharedNetwork(scope, res)
	case "pool":
		return p.parsePool(scope, res)
	case "host":
		return p.parseHost(scope, res)
	case "group":
		return p.parseGroup(scope, res)
	case "class":
		return p.parseClass(scope, res)
	case "authoritative":
		p.lex.Next()
		_, err := p.expect(TokSemicolon, ";")
		scope.Authoritative = true
		return err
	case "option":
		return p.parseOptionStatement(scope, res)
	case "if":
		_, err := p.parseIf(scope, res)
		return err
	case "range":
		return p.parseRangeAsPool(scope, res)
	default:
		return p.skipStatement()
	}
}

// skipStatement consumes tokens up to and including the next top-level
// semicolon, for statement forms this parser doesn't model in depth
// (e.g. allow/deny member lists, ddns knobs), so they are ignored
// rather than rejected.
func (p *Parser) skipStatement() error {
	depth := 0
	for {
		t := p.lex.Next()
		switch t.Kind {
		case TokEOF:
			return nil
		case TokLBrace:
			depth++
		case TokRBrace:
			if depth == 0 {
				return nil
			}
			depth--
		case TokSemicolon:
			if depth == 0 {
				return nil
			}
		}
	}
}

func (p *Parser) parseSubnet(scope *group.Group, res *Result) error {
	p.lex.Next() // "subnet"
	ipTok, err := p.expect(TokIPAddr, "subnet address")
	if err != nil {
		return err
	}
	if _, err := p.expectKeyword("netmask"); err != nil {
		return err
	}
	maskTok, err := p.expect(TokIPAddr, "netmask")
	if err != nil {
		return err
	}
	sub := group.New(group.KindSubnet, ipTok.Text+"/"+maskTok.Text, scope)
	if _, err := p.expect(TokLBrace, "{"); err != nil {
		return err
	}
	if err := p.parseBlockBody(sub, res); err != nil {
		return err
	}
	_, err = p.expect(TokRBrace, "}")
	return err
}

func (p *Parser) parseSharedNetwork(scope *group.Group, res *Result) error {
	p.lex.Next()
	name, err := p.parseNameToken()
	if err != nil {
		return err
	}
	sn := group.New(group.KindSharedNetwork, name, scope)
	if _, err := p.expect(TokLBrace, "{"); err != nil {
		return err
	}
	if err := p.parseBlockBody(sn, res); err != nil {
		return err
	}
	_, err = p.expect(TokRBrace, "}")
	return err
}

func (p *Parser) parsePool(scope *group.Group, res *Result) error {
	p.lex.Next()
	pool := group.New(group.KindPool, "pool", scope)
	if _, err := p.expect(TokLBrace, "{"); err != nil {
		return err
	}
	for p.lex.Peek(0).Kind != TokRBrace {
		t := p.lex.Peek(0)
		if t.Kind == TokIdent && strings.EqualFold(t.Text, "range") {
			if err := p.parseRangeAsPool(pool, res); err != nil {
				return err
			}
			continue
		}
		if err := p.parseStatement(pool, res); err != nil {
			return err
		}
	}
	_, err := p.expect(TokRBrace, "}")
	return err
}

func (p *Parser) parseRangeAsPool(scope *group.Group, res *Result) error {
	p.lex.Next() // "range"
	startTok, err := p.expect(TokIPAddr, "range start address")
	if err != nil {
		return err
	}
	var end [4]byte
	start, err := parseIPv4(startTok.Text)
	if err != nil {
		return p.errorf(startTok, "%s", err)
	}
	if p.lex.Peek(0).Kind == TokIPAddr {
		endTok := p.lex.Next()
		end, err = parseIPv4(endTok.Text)
		if err != nil {
			return p.errorf(endTok, "%s", err)
		}
	} else {
		end = start
	}
	if _, err := p.expect(TokSemicolon, ";"); err != nil {
		return err
	}
	res.Pools = append(res.Pools, PoolDecl{Scope: scope, Start: start, End: end})
	return nil
}

func (p *Parser) parseHost(scope *group.Group, res *Result) error {
	p.lex.Next()
	name, err := p.parseNameToken()
	if err != nil {
		return err
	}
	hg := group.New(group.KindHost, name, scope)
	if _, err := p.expect(TokLBrace, "{"); err != nil {
		return err
	}
	decl := HostDecl{Name: name, Scope: hg}
	for p.lex.Peek(0).Kind != TokRBrace {
		t := p.lex.Peek(0)
		switch {
		case t.Kind == TokIdent && strings.EqualFold(t.Text, "hardware"):
			p.lex.Next()
			if _, err := p.expectKeyword("ethernet"); err != nil {
				return err
			}
			hwTok, err := p.expect(TokHexString, "hardware address")
			if err != nil {
				return err
			}
			decl.HWAddr = parseHexColon(hwTok.Text)
			if _, err := p.expect(TokSemicolon, ";"); err != nil {
				return err
			}
		case t.Kind == TokIdent && strings.EqualFold(t.Text, "fixed-address"):
			p.lex.Next()
			ipTok, err := p.expect(TokIPAddr, "fixed address")
			if err != nil {
				return err
			}
			ip, err := parseIPv4(ipTok.Text)
			if err != nil {
				return p.errorf(ipTok, "%s", err)
			}
			decl.FixedAddress = ip
			decl.HasFixed = true
			if _, err := p.expect(TokSemicolon, ";"); err != nil {
				return err
			}
		default:
			if err := p.parseStatement(hg, res); err != nil {
				return err
			}
		}
	}
	_, err = p.expect(TokRBrace, "}")
	res.Hosts = append(res.Hosts, decl)
	return err
}

func (p *Parser) parseGroup(scope *group.Group, res *Result) error {
	p.lex.Next()
	name := ""
	if p.lex.Peek(0).Kind == TokString {
		name = p.lex.Next().Text
	}
	g := group.New(groupKindGroup(), name, scope)
	if _, err := p.expect(TokLBrace, "{"); err != nil {
		return err
	}
	if err := p.parseBlockBody(g, res); err != nil {
		return err
	}
	_, err := p.expect(TokRBrace, "}")
	return err
}

// groupKindGroup returns the Kind value used for a plain `group {}`
// scope. It has no dedicated group.Kind constant of its own (spec
// treats a bare group the same as the shared-network level for option
// inheritance purposes) so it reuses KindSharedNetwork's position in
// the chain.
func groupKindGroup() group.Kind { return group.KindSharedNetwork }

func (p *Parser) parseClass(scope *group.Group, res *Result) error {
	p.lex.Next()
	nameTok, err := p.expect(TokString, "class name")
	if err != nil {
		return err
	}
	cls := group.NewClass(nameTok.Text, nil, scope)
	if _, err := p.expect(TokLBrace, "{"); err != nil {
		return err
	}
	for p.lex.Peek(0).Kind != TokRBrace {
		t := p.lex.Peek(0)
		if t.Kind == TokIdent && strings.EqualFold(t.Text, "match") {
			p.lex.Next()
			if p.lex.Peek(0).Kind == TokIdent && strings.EqualFold(p.lex.Peek(0).Text, "if") {
				p.lex.Next()
			}
			e, err := p.parseExpr()
			if err != nil {
				return err
			}
			cls.Match = e
			if _, err := p.expect(TokSemicolon, ";"); err != nil {
				return err
			}
			continue
		}
		if err := p.parseStatement(cls.Group, res); err != nil {
			return err
		}
	}
	_, err = p.expect(TokRBrace, "}")
	res.Classes[cls.Name] = cls
	return err
}

func (p *Parser) parseIf(scope *group.Group, res *Result) (*expr.Statement, error) {
	p.lex.Next() // "if"
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	then, err := p.parseStatementBlock(scope, res)
	if err != nil {
		return nil, err
	}
	stmt := &expr.Statement{Op: expr.StmtIf, Cond: cond, Then: then}
	for p.lex.Peek(0).Kind == TokIdent && strings.EqualFold(p.lex.Peek(0).Text, "elsif") {
		p.lex.Next()
		ec, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		eb, err := p.parseStatementBlock(scope, res)
		if err != nil {
			return nil, err
		}
		stmt.Elifs = append(stmt.Elifs, struct {
			Cond *expr.Expression
			Body []*expr.Statement
		}{Cond: ec, Body: eb})
	}
	if p.lex.Peek(0).Kind == TokIdent && strings.EqualFold(p.lex.Peek(0).Text, "else") {
		p.lex.Next()
		eb, err := p.parseStatementBlock(scope, res)
		if err != nil {
			return nil, err
		}
		stmt.Else = eb
	}
	scope.Statement = append(scope.Statement, stmt)
	return stmt, nil
}

// parseStatementBlock parses a brace-delimited block of scope-level
// statements purely for their option side-effects; expression
// statement bodies for `if` nested inside config blocks are modeled
// coarsely as nested option assignments scoped to the same group, the
// depth this parser commits to for conditional configuration.
func (p *Parser) parseStatementBlock(scope *group.Group, res *Result) ([]*expr.Statement, error) {
	if _, err := p.expect(TokLBrace, "{"); err != nil {
		return nil, err
	}
	for p.lex.Peek(0).Kind != TokRBrace {
		if p.lex.Peek(0).Kind == TokIdent && strings.EqualFold(p.lex.Peek(0).Text, "option") {
			if err := p.parseOptionStatement(scope, res); err != nil {
				return nil, err
			}
			continue
		}
		if err := p.skipStatement(); err != nil {
			return nil, err
		}
	}
	_, err := p.expect(TokRBrace, "}")
	return nil, err
}

func (p *Parser) parseOptionStatement(scope *group.Group, res *Result) error {
	p.lex.Next() // "option"
	nameTok, err := p.expect(TokIdent, "option name")
	if err != nil {
		return err
	}
	universe, name := "dhcp", nameTok.Text
	if p.lex.Peek(0).Kind == TokDot {
		p.lex.Next()
		universe = nameTok.Text
		nameTok2, err := p.expect(TokIdent, "option name")
		if err != nil {
			return err
		}
		name = nameTok2.Text
	}

	u, ok := p.reg.Universe(universe)
	if !ok {
		u, _ = p.reg.Declare(universe)
	}
	def, ok := u.ByName(name)
	if !ok {
		// Unknown option name: skip its value tokens so parsing can
		// continue. `option space ...;` and `option <name> code N =
		// <type>;` declarations also end up here, so they define no
		// option.
		return p.skipStatement()
	}

	data, err := p.parseOptionValue(def)
	if err != nil {
		return err
	}
	if _, err := p.expect(TokSemicolon, ";"); err != nil {
		return err
	}
	scope.Options.Set(universe, def.Code, &options.Cache{Data: data})
	return nil
}

func (p *Parser) parseOptionValue(def *options.Def) ([]byte, error) {
	return p.parseValueByType(def.Type, def.Elems)
}

func (p *Parser) parseValueByType(t options.ValueType, elems []options.ValueType) ([]byte, error) {
	switch t {
	case options.TypeIPAddress:
		tok, err := p.expect(TokIPAddr, "ip address")
		if err != nil {
			return nil, err
		}
		ip, err := parseIPv4(tok.Text)
		if err != nil {
			return nil, err
		}
		return ip[:], nil

	case options.TypeText, options.TypeString:
		tok, err := p.expect(TokString, "string")
		if err != nil {
			return nil, err
		}
		if t == options.TypeText {
			return append([]byte(tok.Text), 0), nil
		}
		return []byte(tok.Text), nil

	case options.TypeBoolean:
		tok := p.lex.Next()
		v := strings.EqualFold(tok.Text, "true") || strings.EqualFold(tok.Text, "on")
		if v {
			return []byte{1}, nil
		}
		return []byte{0}, nil

	case options.TypeUint8, options.TypeInt8:
		n, err := p.parseIntToken()
		if err != nil {
			return nil, err
		}
		return []byte{byte(n)}, nil

	case options.TypeUint16, options.TypeInt16:
		n, err := p.parseIntToken()
		if err != nil {
			return nil, err
		}
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(n))
		return b, nil

	case options.TypeUint32, options.TypeInt32:
		n, err := p.parseIntToken()
		if err != nil {
			return nil, err
		}
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(n))
		return b, nil

	case options.TypeArray:
		if len(elems) == 0 {
			return nil, fmt.Errorf("confparse: array option with no element type")
		}
		var out []byte
		for {
			v, err := p.parseValueByType(elems[0], nil)
			if err != nil {
				return nil, err
			}
			out = append(out, v...)
			if p.lex.Peek(0).Kind == TokComma {
				p.lex.Next()
				continue
			}
			break
		}
		return out, nil

	default:
		return nil, fmt.Errorf("confparse: unsupported option value type %v", t)
	}
}

func (p *Parser) parseIntToken() (int64, error) {
	tok := p.lex.Next()
	if tok.Kind != TokNumber {
		return 0, p.errorf(tok, "expected number, got %q", tok.Text)
	}
	n, err := strconv.ParseInt(tok.Text, 10, 64)
	if err != nil {
		return 0, p.errorf(tok, "invalid number %q", tok.Text)
	}
	return n, nil
}

func (p *Parser) parseNameToken() (string, error) {
	t := p.lex.Next()
	if t.Kind == TokString || t.Kind == TokIdent {
		return t.Text, nil
	}
	return "", p.errorf(t, "expected name, got %q", t.Text)
}

func (p *Parser) expectKeyword(kw string) (Token, error) {
	t := p.lex.Next()
	if t.Kind != TokIdent || !strings.EqualFold(t.Text, kw) {
		return t, p.errorf(t, "expected %q, got %q", kw, t.Text)
	}
	return t, nil
}

func parseIPv4(s string) ([4]byte, error) {
	var out [4]byte
	ip := net.ParseIP(s)
	if ip == nil {
		return out, fmt.Errorf("confparse: invalid ip address %q", s)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return out, fmt.Errorf("confparse: not an ipv4 address %q", s)
	}
	copy(out[:], ip4)
	return out, nil
}

func parseHexColon(s string) []byte {
	parts := strings.Split(s, ":")
	out := make([]byte, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			continue
		}
		out = append(out, byte(n))
	}
	return out
}
