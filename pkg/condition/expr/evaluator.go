package expr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-rentreport/pkg/condition"
	"github.com/goliatone/go-rentreport/pkg/model"
)

// Evaluator compiles and evaluates condition rules, caching compiled rules.
//
// Supported syntax:
//   - truthiness: `verifyWithLandlord`
//   - comparisons: `addressUnchanged == false`, `plan != "basic"`, `rent >= 1000`
//   - composition: `a && (b || !c)`
//
// Identifiers read the local scope (dotted paths allowed). The `form.` prefix
// reads the whole form from inside a section entry.
type Evaluator struct {
	mu       sync.RWMutex
	compiled map[string]node
}

var _ condition.Evaluator = (*Evaluator)(nil)

// New returns an Evaluator with an empty compile cache.
func New() *Evaluator {
	return &Evaluator{compiled: make(map[string]node)}
}

// Eval evaluates rule against scope. Empty rules hold.
func (e *Evaluator) Eval(rule string, scope condition.Scope) (bool, error) {
	compiled, err := e.compile(rule)
	if err != nil {
		return false, err
	}
	if compiled == nil {
		return true, nil
	}
	return compiled.eval(scope)
}

// Check compiles rule without evaluating it; form loaders use it to reject
// malformed definitions early.
func (e *Evaluator) Check(rule string) error {
	_, err := e.compile(rule)
	return err
}

func (e *Evaluator) compile(rule string) (node, error) {
	key := strings.TrimSpace(rule)
	if key == "" {
		return nil, nil
	}

	e.mu.RLock()
	cached, ok := e.compiled[key]
	e.mu.RUnlock()
	if ok {
		return cached, nil
	}

	tokens, err := scan(key)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	compiled, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		return nil, fmt.Errorf("condition/expr: unexpected token %q", p.tokens[p.pos].text)
	}

	e.mu.Lock()
	e.compiled[key] = compiled
	e.mu.Unlock()
	return compiled, nil
}

type node interface {
	eval(scope condition.Scope) (bool, error)
}

type orNode struct{ left, right node }

func (n orNode) eval(scope condition.Scope) (bool, error) {
	ok, err := n.left.eval(scope)
	if err != nil || ok {
		return ok, err
	}
	return n.right.eval(scope)
}

type andNode struct{ left, right node }

func (n andNode) eval(scope condition.Scope) (bool, error) {
	ok, err := n.left.eval(scope)
	if err != nil || !ok {
		return false, err
	}
	return n.right.eval(scope)
}

type notNode struct{ inner node }

func (n notNode) eval(scope condition.Scope) (bool, error) {
	ok, err := n.inner.eval(scope)
	return !ok, err
}

type truthyNode struct{ ident string }

func (n truthyNode) eval(scope condition.Scope) (bool, error) {
	value, ok := resolve(scope, n.ident)
	if !ok {
		return false, nil
	}
	return truthy(value), nil
}

type compareNode struct {
	ident string
	op    tokenKind
	lit   token
}

func (n compareNode) eval(scope condition.Scope) (bool, error) {
	value, found := resolve(scope, n.ident)
	if !found {
		value = nil
	}

	switch n.lit.kind {
	case tokenNull:
		return applyEquality(n.op, model.IsEmpty(value))
	case tokenBool:
		got, _ := value.(bool)
		if s, ok := value.(string); ok {
			got, _ = strconv.ParseBool(s)
		}
		return applyEquality(n.op, got == (n.lit.text == "true"))
	case tokenNumber:
		want, _ := strconv.ParseFloat(n.lit.text, 64)
		got, ok := number(value)
		if !ok {
			return n.op == tokenNeq, nil
		}
		return applyOrdering(n.op, compareFloats(got, want))
	default:
		return applyOrdering(n.op, strings.Compare(text(value), n.lit.text))
	}
}

func applyEquality(op tokenKind, equal bool) (bool, error) {
	switch op {
	case tokenEq:
		return equal, nil
	case tokenNeq:
		return !equal, nil
	default:
		return false, errors.New("condition/expr: only == and != apply to bool and null literals")
	}
}

func applyOrdering(op tokenKind, cmp int) (bool, error) {
	switch op {
	case tokenEq:
		return cmp == 0, nil
	case tokenNeq:
		return cmp != 0, nil
	case tokenLt:
		return cmp < 0, nil
	case tokenLte:
		return cmp <= 0, nil
	case tokenGt:
		return cmp > 0, nil
	case tokenGte:
		return cmp >= 0, nil
	default:
		return false, errors.New("condition/expr: unsupported operator")
	}
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.accept(tokenOr) {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.accept(tokenAnd) {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = andNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.accept(tokenNot) {
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notNode{inner: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	if p.accept(tokenLParen) {
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.accept(tokenRParen) {
			return nil, errors.New("condition/expr: missing closing ')'")
		}
		return inner, nil
	}

	if p.pos >= len(p.tokens) {
		return nil, errors.New("condition/expr: unexpected end of expression")
	}
	ident := p.tokens[p.pos]
	if ident.kind != tokenIdent {
		return nil, fmt.Errorf("condition/expr: expected field name, got %q", ident.text)
	}
	p.pos++

	if p.pos < len(p.tokens) {
		switch op := p.tokens[p.pos].kind; op {
		case tokenEq, tokenNeq, tokenLt, tokenLte, tokenGt, tokenGte:
			p.pos++
			lit, err := p.literal()
			if err != nil {
				return nil, err
			}
			if op != tokenEq && op != tokenNeq && (lit.kind == tokenBool || lit.kind == tokenNull) {
				return nil, fmt.Errorf("condition/expr: operator %q needs a number or string", p.tokens[p.pos-2].text)
			}
			return compareNode{ident: ident.text, op: op, lit: lit}, nil
		}
	}
	return truthyNode{ident: ident.text}, nil
}

func (p *parser) literal() (token, error) {
	if p.pos >= len(p.tokens) {
		return token{}, errors.New("condition/expr: missing value after operator")
	}
	tok := p.tokens[p.pos]
	p.pos++
	switch tok.kind {
	case tokenString, tokenNumber, tokenBool, tokenNull:
		return tok, nil
	case tokenIdent:
		// bare words compare as strings
		return token{kind: tokenString, text: tok.text}, nil
	default:
		return token{}, fmt.Errorf("condition/expr: expected value, got %q", tok.text)
	}
}

func (p *parser) accept(kind tokenKind) bool {
	if p.pos < len(p.tokens) && p.tokens[p.pos].kind == kind {
		p.pos++
		return true
	}
	return false
}

func resolve(scope condition.Scope, ident string) (any, bool) {
	if rest, ok := strings.CutPrefix(ident, "form."); ok {
		return scope.Form.Get(rest)
	}
	if value, ok := scope.Local.Get(ident); ok {
		return value, true
	}
	return scope.Form.Get(ident)
}

func truthy(value any) bool {
	switch typed := value.(type) {
	case bool:
		return typed
	case float64:
		return typed != 0
	default:
		return !model.IsEmpty(value)
	}
}

func number(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, true
	case int:
		return float64(typed), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func text(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case time.Time:
		return typed.Format(model.DateLayout)
	default:
		return fmt.Sprint(typed)
	}
}
