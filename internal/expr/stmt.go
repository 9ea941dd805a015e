package expr

// StmtOp enumerates the executable statement forms from spec §4.3.
type StmtOp int

const (
	StmtIf StmtOp = iota
	StmtSwitch
	StmtSet
	StmtEval
	StmtReturn
	StmtBreak
	StmtLog
	StmtAddClass
	StmtDefaultOption
	StmtSupersedeOption
	StmtPrependOption
	StmtAppendOption
	StmtOnCommit
	StmtOnExpiry
	StmtOnRelease
	StmtNSUpdate
)

// ExecResult controls statement-tree iteration the way the source's
// execute_statements return codes do: a block normally falls through
// to its successor, `break` stops the enclosing switch, and `return`
// (the "halt processing further config" verb from a client-class or
// subnet scope) stops the entire tree.
type ExecResult int

const (
	ExecContinue ExecResult = iota
	ExecBreak
	ExecReturn
)

// Logger receives the text of a `log` statement.
type Logger interface {
	Log(priority, message string)
}

// ClassAdder implements `add class "name"` by splicing a class into
// the packet's active class list (internal/group owns the chain).
type ClassAdder interface {
	AddClass(name string) error
}

// Statement is the tagged-union executable node.
type Statement struct {
	Op StmtOp

	// StmtIf / StmtSwitch
	Cond   *Expression
	Then   []*Statement
	Elifs  []struct {
		Cond *Expression
		Body []*Statement
	}
	Else []*Statement

	// StmtSwitch cases, matched against Cond's value.
	Cases []SwitchCase

	// StmtSet
	VarName string
	VarExpr *Expression

	// StmtEval / StmtReturn value
	Expr *Expression

	// StmtLog
	Priority string
	Message  *Expression

	// StmtAddClass
	ClassName string

	// Option statements
	Universe string
	Code     uint8
	OptExpr  *Expression

	// StmtOnCommit/OnExpiry/OnRelease
	Body []*Statement

	// StmtNSUpdate wraps an ns-update expression for its side effect,
	// discarding the RCODE it produces (spec: DNS-update failure never
	// aborts the statement tree).
	NSExpr *Expression
}

// SwitchCase pairs a case value expression with its body; a nil Value
// marks the default arm.
type SwitchCase struct {
	Value *Expression
	Body  []*Statement
}

// ExecContext extends Context with the collaborators statement
// execution needs beyond pure expression evaluation.
type ExecContext struct {
	*Context
	Vars    map[string]Value
	Logger  Logger
	Classes ClassAdder

	// Out is the outgoing reply's option state; {default,supersede,
	// prepend,append}-option all mutate it.
	Out OptionStateWriter
}

// OptionStateWriter is the minimal seam stmt.go needs onto the
// outgoing reply's option state: the four option-statement mutations,
// beyond what Context.In/Cfg already expose read-only.
type OptionStateWriter interface {
	Default(universe string, code uint8, data []byte)
	Supersede(universe string, code uint8, data []byte)
	Prepend(universe string, code uint8, data []byte)
	Append(universe string, code uint8, data []byte)
}

// ExecList runs a statement list in order, short-circuiting on break or
// return the way the source's execute_statements does.
func ExecList(list []*Statement, ctx *ExecContext) ExecResult {
	for _, s := range list {
		switch s.Exec(ctx) {
		case ExecBreak:
			return ExecBreak
		case ExecReturn:
			return ExecReturn
		}
	}
	return ExecContinue
}

// Exec evaluates one statement.
func (s *Statement) Exec(ctx *ExecContext) ExecResult {
	switch s.Op {
	case StmtIf:
		b, _ := s.Cond.Eval(ctx.Context).AsBool()
		if b {
			return ExecList(s.Then, ctx)
		}
		for _, e := range s.Elifs {
			b, _ := e.Cond.Eval(ctx.Context).AsBool()
			if b {
				return ExecList(e.Body, ctx)
			}
		}
		if s.Else != nil {
			return ExecList(s.Else, ctx)
		}
		return ExecContinue

	case StmtSwitch:
		v := s.Cond.Eval(ctx.Context)
		var defaultCase *SwitchCase
		for i := range s.Cases {
			c := &s.Cases[i]
			if c.Value == nil {
				defaultCase = c
				continue
			}
			cv := c.Value.Eval(ctx.Context)
			if v.Defined && cv.Defined && valuesEqual(v, cv) {
				r := ExecList(c.Body, ctx)
				if r == ExecBreak {
					return ExecContinue
				}
				return r
			}
		}
		if defaultCase != nil {
			r := ExecList(defaultCase.Body, ctx)
			if r == ExecBreak {
				return ExecContinue
			}
			return r
		}
		return ExecContinue

	case StmtSet:
		if ctx.Vars == nil {
			ctx.Vars = map[string]Value{}
		}
		ctx.Vars[s.VarName] = s.VarExpr.Eval(ctx.Context)
		return ExecContinue

	case StmtEval:
		s.Expr.Eval(ctx.Context)
		return ExecContinue

	case StmtReturn:
		return ExecReturn

	case StmtBreak:
		return ExecBreak

	case StmtLog:
		if ctx.Logger == nil {
			return ExecContinue
		}
		msg := s.Message.Eval(ctx.Context)
		ctx.Logger.Log(s.Priority, string(msg.Data))
		return ExecContinue

	case StmtAddClass:
		if ctx.Classes != nil {
			_ = ctx.Classes.AddClass(s.ClassName)
		}
		return ExecContinue

	case StmtDefaultOption, StmtSupersedeOption, StmtPrependOption, StmtAppendOption:
		if ctx.Out == nil {
			return ExecContinue
		}
		v := s.OptExpr.Eval(ctx.Context)
		if !v.Defined {
			return ExecContinue
		}
		switch s.Op {
		case StmtDefaultOption:
			ctx.Out.Default(s.Universe, s.Code, v.Data)
		case StmtSupersedeOption:
			ctx.Out.Supersede(s.Universe, s.Code, v.Data)
		case StmtPrependOption:
			ctx.Out.Prepend(s.Universe, s.Code, v.Data)
		case StmtAppendOption:
			ctx.Out.Append(s.Universe, s.Code, v.Data)
		}
		return ExecContinue

	case StmtOnCommit, StmtOnExpiry, StmtOnRelease:
		// The statement node is inert during normal reply-building
		// traversal; its body is exposed through CommitBody, and no
		// lease-state transition in this repository executes it.
		return ExecContinue

	case StmtNSUpdate:
		s.NSExpr.Eval(ctx.Context)
		return ExecContinue

	default:
		return ExecContinue
	}
}

// CommitBody returns the statements of an on-commit/on-expiry/
// on-release handler. Nothing in this repository calls it, so these
// bodies are not run at lease-state transitions.
func (s *Statement) CommitBody() []*Statement { return s.Body }
