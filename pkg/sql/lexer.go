package sql

import (
	"errors"
	"strings"
)

var (
	// ErrUnterminatedString indicates a string literal without a closing quote.
	ErrUnterminatedString = errors.New("unterminated string literal")
	// ErrUnterminatedIdentifier indicates a quoted identifier without a closing quote.
	ErrUnterminatedIdentifier = errors.New("unterminated quoted identifier")
	// ErrUnterminatedComment indicates a block comment without a closing */.
	ErrUnterminatedComment = errors.New("unterminated block comment")
	// ErrUnbalancedParentheses indicates mismatched ( and ).
	ErrUnbalancedParentheses = errors.New("unbalanced parentheses")
)

type tokenKind int

const (
	tokWord        tokenKind = iota // bare identifier or keyword
	tokQuotedIdent                  // "name" or `name`, text holds the unquoted name
	tokString                       // 'literal', text holds the unescaped content
	tokNumber
	tokPunct // single byte: ( ) , . ; * = and friends
)

type token struct {
	kind tokenKind
	text string
	pos  int // byte offset of the token's first character
	end  int // byte offset just past the token
}

func (t token) is(kind tokenKind, text string) bool {
	if t.kind != kind {
		return false
	}
	if kind == tokWord {
		return strings.EqualFold(t.text, text)
	}
	return t.text == text
}

func (t token) isPunct(c byte) bool {
	return t.kind == tokPunct && len(t.text) == 1 && t.text[0] == c
}

func (t token) upper() string {
	return strings.ToUpper(t.text)
}

// isName reports whether the token can be part of a (possibly quoted) object name.
func (t token) isName() bool {
	return t.kind == tokWord || t.kind == tokQuotedIdent
}

// tokenize splits SQL into tokens, dropping whitespace and comments. On a lexical
// error it returns the tokens read so far together with the error.
func tokenize(sqlQuery string) ([]token, error) {
	var toks []token
	n := len(sqlQuery)
	i := 0

	for i < n {
		c := sqlQuery[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f':
			i++

		case c == '-' && i+1 < n && sqlQuery[i+1] == '-':
			for i < n && sqlQuery[i] != '\n' {
				i++
			}

		case c == '/' && i+1 < n && sqlQuery[i+1] == '*':
			end := strings.Index(sqlQuery[i+2:], "*/")
			if end < 0 {
				return toks, ErrUnterminatedComment
			}
			i += end + 4

		case c == '\'':
			text, next, ok := readQuoted(sqlQuery, i, '\'')
			if !ok {
				return toks, ErrUnterminatedString
			}
			toks = append(toks, token{kind: tokString, text: text, pos: i, end: next})
			i = next

		case c == '"' || c == '`':
			text, next, ok := readQuoted(sqlQuery, i, c)
			if !ok {
				return toks, ErrUnterminatedIdentifier
			}
			toks = append(toks, token{kind: tokQuotedIdent, text: text, pos: i, end: next})
			i = next

		case isIdentStart(c):
			start := i
			for i < n && isIdentPart(sqlQuery[i]) {
				i++
			}
			toks = append(toks, token{kind: tokWord, text: sqlQuery[start:i], pos: start, end: i})

		case c >= '0' && c <= '9':
			start := i
			for i < n && (isIdentPart(sqlQuery[i]) || sqlQuery[i] == '.') {
				i++
			}
			toks = append(toks, token{kind: tokNumber, text: sqlQuery[start:i], pos: start, end: i})

		default:
			toks = append(toks, token{kind: tokPunct, text: sqlQuery[i : i+1], pos: i, end: i + 1})
			i++
		}
	}

	return toks, nil
}

// readQuoted reads a quoted run starting at sqlQuery[start] == quote. A doubled
// quote inside the run is an escaped quote.
func readQuoted(sqlQuery string, start int, quote byte) (string, int, bool) {
	var b strings.Builder
	for i := start + 1; i < len(sqlQuery); i++ {
		if sqlQuery[i] != quote {
			b.WriteByte(sqlQuery[i])
			continue
		}
		if i+1 < len(sqlQuery) && sqlQuery[i+1] == quote {
			b.WriteByte(quote)
			i++
			continue
		}
		return b.String(), i + 1, true
	}
	return "", len(sqlQuery), false
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9') || c == '$'
}

// CheckStructure verifies basic syntactic sanity: every string literal, quoted
// identifier and block comment is closed and parentheses balance.
func CheckStructure(sqlQuery string) error {
	toks, err := tokenize(sqlQuery)
	if err != nil {
		return err
	}

	depth := 0
	for _, t := range toks {
		switch {
		case t.isPunct('('):
			depth++
		case t.isPunct(')'):
			depth--
			if depth < 0 {
				return ErrUnbalancedParentheses
			}
		}
	}
	if depth != 0 {
		return ErrUnbalancedParentheses
	}
	return nil
}
