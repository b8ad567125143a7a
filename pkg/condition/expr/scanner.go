package expr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokenIdent tokenKind = iota
	tokenString
	tokenNumber
	tokenBool
	tokenNull
	tokenEq
	tokenNeq
	tokenLt
	tokenLte
	tokenGt
	tokenGte
	tokenAnd
	tokenOr
	tokenNot
	tokenLParen
	tokenRParen
)

type token struct {
	kind tokenKind
	text string
}

type scanner struct {
	src    string
	pos    int
	tokens []token
}

func scan(src string) ([]token, error) {
	s := &scanner{src: src}
	for {
		s.skipSpace()
		if s.pos >= len(s.src) {
			return s.tokens, nil
		}
		if err := s.next(); err != nil {
			return nil, err
		}
	}
}

func (s *scanner) skipSpace() {
	for s.pos < len(s.src) && strings.ContainsRune(" \t\r\n", rune(s.src[s.pos])) {
		s.pos++
	}
}

func (s *scanner) peek(offset int) byte {
	if s.pos+offset >= len(s.src) {
		return 0
	}
	return s.src[s.pos+offset]
}

func (s *scanner) emit(kind tokenKind, text string, width int) {
	s.tokens = append(s.tokens, token{kind: kind, text: text})
	s.pos += width
}

func (s *scanner) next() error {
	ch := s.peek(0)
	switch {
	case ch == '(':
		s.emit(tokenLParen, "(", 1)
	case ch == ')':
		s.emit(tokenRParen, ")", 1)
	case ch == '=' && s.peek(1) == '=':
		s.emit(tokenEq, "==", 2)
	case ch == '!' && s.peek(1) == '=':
		s.emit(tokenNeq, "!=", 2)
	case ch == '!':
		s.emit(tokenNot, "!", 1)
	case ch == '<' && s.peek(1) == '=':
		s.emit(tokenLte, "<=", 2)
	case ch == '<':
		s.emit(tokenLt, "<", 1)
	case ch == '>' && s.peek(1) == '=':
		s.emit(tokenGte, ">=", 2)
	case ch == '>':
		s.emit(tokenGt, ">", 1)
	case ch == '&' && s.peek(1) == '&':
		s.emit(tokenAnd, "&&", 2)
	case ch == '|' && s.peek(1) == '|':
		s.emit(tokenOr, "||", 2)
	case ch == '=' || ch == '&' || ch == '|':
		return fmt.Errorf("condition/expr: unexpected %q at offset %d", ch, s.pos)
	case ch == '"' || ch == '\'':
		return s.quoted(ch)
	default:
		s.word()
	}
	return nil
}

func (s *scanner) quoted(quote byte) error {
	start := s.pos
	s.pos++
	for s.pos < len(s.src) {
		switch s.src[s.pos] {
		case '\\':
			s.pos += 2
			continue
		case quote:
			body := s.src[start+1 : s.pos]
			if quote == '\'' {
				body = strings.ReplaceAll(body, `"`, `\"`)
				body = strings.ReplaceAll(body, `\'`, `'`)
			}
			value, err := strconv.Unquote(`"` + body + `"`)
			if err != nil {
				return fmt.Errorf("condition/expr: invalid string literal: %w", err)
			}
			s.pos++
			s.tokens = append(s.tokens, token{kind: tokenString, text: value})
			return nil
		}
		s.pos++
	}
	return errors.New("condition/expr: unterminated string literal")
}

func (s *scanner) word() {
	start := s.pos
	for s.pos < len(s.src) && !strings.ContainsRune(" \t\r\n()!=<>&|\"'", rune(s.src[s.pos])) {
		s.pos++
	}
	text := s.src[start:s.pos]
	switch lower := strings.ToLower(text); {
	case lower == "true" || lower == "false":
		s.tokens = append(s.tokens, token{kind: tokenBool, text: lower})
	case lower == "null" || lower == "nil":
		s.tokens = append(s.tokens, token{kind: tokenNull, text: "null"})
	case isNumberLiteral(text):
		s.tokens = append(s.tokens, token{kind: tokenNumber, text: text})
	default:
		s.tokens = append(s.tokens, token{kind: tokenIdent, text: text})
	}
}

func isNumberLiteral(text string) bool {
	if text == "" || !strings.ContainsRune("0123456789+-.", rune(text[0])) {
		return false
	}
	_, err := strconv.ParseFloat(text, 64)
	return err == nil
}
