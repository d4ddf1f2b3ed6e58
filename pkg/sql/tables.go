package sql

import (
	"strings"
)

// TableRef is a table named in a FROM or JOIN clause, split into its dotted parts
// with quoting removed.
type TableRef struct {
	Parts []string
}

// String returns the dotted name as written, without quotes.
func (r TableRef) String() string {
	return strings.Join(r.Parts, ".")
}

// Key returns the lowercased dotted name used for comparisons.
func (r TableRef) Key() string {
	return strings.ToLower(r.String())
}

// Qualified returns true when the reference carries at least a schema prefix.
func (r TableRef) Qualified() bool {
	return len(r.Parts) > 1
}

// FullyQualified returns true for catalog.schema.table references.
func (r TableRef) FullyQualified() bool {
	return len(r.Parts) == 3
}

// clauseWords end a table reference; they can never be an implicit alias.
var clauseWords = map[string]struct{}{
	"WHERE": {}, "JOIN": {}, "INNER": {}, "LEFT": {}, "RIGHT": {}, "FULL": {}, "CROSS": {},
	"NATURAL": {}, "OUTER": {}, "ON": {}, "USING": {}, "GROUP": {}, "ORDER": {}, "HAVING": {},
	"LIMIT": {}, "OFFSET": {}, "FETCH": {}, "UNION": {}, "EXCEPT": {}, "INTERSECT": {},
	"WINDOW": {}, "TABLESAMPLE": {}, "FOR": {}, "WITH": {}, "SELECT": {}, "FROM": {}, "AS": {},
	"LATERAL": {}, "UNNEST": {}, "TABLE": {},
}

// nonCallWords can precede "(" without that paren being a function call.
var nonCallWords = map[string]struct{}{
	"FROM": {}, "JOIN": {}, "IN": {}, "EXISTS": {}, "AS": {}, "ON": {}, "AND": {}, "OR": {},
	"NOT": {}, "SELECT": {}, "WHERE": {}, "HAVING": {}, "UNION": {}, "EXCEPT": {}, "INTERSECT": {},
	"ALL": {}, "ANY": {}, "SOME": {}, "LATERAL": {}, "WITH": {}, "THEN": {}, "ELSE": {}, "WHEN": {},
	"VALUES": {}, "BY": {}, "USING": {}, "RECURSIVE": {},
}

// TableRefs extracts the distinct tables referenced by FROM and JOIN clauses,
// including those in subqueries. CTE names, table functions and subqueries are
// not table references. FROM inside function calls, as in EXTRACT(YEAR FROM d),
// is ignored.
func TableRefs(sqlQuery string) []TableRef {
	toks, _ := tokenize(sqlQuery)
	ctes := cteNames(toks)

	var refs []TableRef
	seen := make(map[string]bool)
	add := func(ref TableRef) {
		if !ref.Qualified() {
			if _, isCTE := ctes[ref.Key()]; isCTE {
				return
			}
		}
		if !seen[ref.Key()] {
			seen[ref.Key()] = true
			refs = append(refs, ref)
		}
	}

	var calls []bool // one entry per open paren: true when it opened a function call
	for i, t := range toks {
		switch {
		case t.isPunct('('):
			calls = append(calls, i > 0 && isCallName(toks[i-1]))
			continue
		case t.isPunct(')'):
			if len(calls) > 0 {
				calls = calls[:len(calls)-1]
			}
			continue
		}

		if t.kind != tokWord || (len(calls) > 0 && calls[len(calls)-1]) {
			continue
		}

		kw := t.upper()
		if kw != "FROM" && kw != "JOIN" {
			continue
		}

		j := i + 1
		for {
			ref, next, ok := parseTableName(toks, j)
			if ok {
				add(ref)
			}
			j = skipAlias(toks, next)
			if kw == "FROM" && j < len(toks) && toks[j].isPunct(',') {
				j++
				continue
			}
			break
		}
	}

	return refs
}

func isCallName(t token) bool {
	if t.kind == tokQuotedIdent {
		return true
	}
	if t.kind != tokWord {
		return false
	}
	_, notCall := nonCallWords[t.upper()]
	return !notCall
}

// parseTableName reads name(.name)* at toks[j]. It reports ok=false for
// subqueries, table functions and keywords such as LATERAL or UNNEST.
func parseTableName(toks []token, j int) (TableRef, int, bool) {
	if j >= len(toks) || !toks[j].isName() {
		return TableRef{}, j, false
	}
	if toks[j].kind == tokWord {
		if _, kw := clauseWords[toks[j].upper()]; kw {
			return TableRef{}, j, false
		}
	}

	parts := []string{toks[j].text}
	k := j + 1
	for k+1 < len(toks) && toks[k].isPunct('.') && toks[k+1].isName() {
		parts = append(parts, toks[k+1].text)
		k += 2
	}

	if k < len(toks) && toks[k].isPunct('(') {
		// table function call, e.g. TABLE(system.sequence(...))
		return TableRef{}, k, false
	}
	return TableRef{Parts: parts}, k, true
}

// skipAlias moves past an optional [AS] alias [(col, ...)] following a table name.
func skipAlias(toks []token, k int) int {
	if k >= len(toks) {
		return k
	}
	if toks[k].is(tokWord, "AS") {
		k++
	} else if toks[k].kind == tokWord {
		if _, kw := clauseWords[toks[k].upper()]; kw {
			return k
		}
	}
	if k < len(toks) && toks[k].isName() {
		k++
		if k < len(toks) && toks[k].isPunct('(') {
			k = skipParens(toks, k)
		}
	}
	return k
}

// skipParens returns the index just past the paren group opened at toks[k].
func skipParens(toks []token, k int) int {
	depth := 0
	for ; k < len(toks); k++ {
		switch {
		case toks[k].isPunct('('):
			depth++
		case toks[k].isPunct(')'):
			depth--
			if depth == 0 {
				return k + 1
			}
		}
	}
	return k
}

// cteNames collects names defined as "WITH name [(cols)] AS (" or ", name [(cols)] AS (".
func cteNames(toks []token) map[string]struct{} {
	names := make(map[string]struct{})
	for i := 1; i < len(toks); i++ {
		prev := toks[i-1]
		if !toks[i].isName() {
			continue
		}
		if !prev.is(tokWord, "WITH") && !prev.is(tokWord, "RECURSIVE") && !prev.isPunct(',') {
			continue
		}
		k := i + 1
		if k < len(toks) && toks[k].isPunct('(') {
			k = skipParens(toks, k)
		}
		if k+1 < len(toks) && toks[k].is(tokWord, "AS") && toks[k+1].isPunct('(') {
			names[strings.ToLower(toks[i].text)] = struct{}{}
		}
	}
	return names
}
