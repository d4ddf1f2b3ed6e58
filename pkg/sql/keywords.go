package sql

// destructiveKeywords are data-definition and data-modification verbs that are
// never allowed in a generated query, wherever they appear.
var destructiveKeywords = map[string]struct{}{
	"INSERT":   {},
	"UPDATE":   {},
	"DELETE":   {},
	"MERGE":    {},
	"UPSERT":   {},
	"DROP":     {},
	"CREATE":   {},
	"ALTER":    {},
	"TRUNCATE": {},
	"RENAME":   {},
	"GRANT":    {},
	"REVOKE":   {},
	"CALL":     {},
	"EXECUTE":  {},
	"EXEC":     {},
}

// DestructiveKeywords returns the forbidden keywords used in the statement, in
// order of first appearance. Words inside string literals, quoted identifiers and
// comments are ignored, as are parts of dotted names such as t.update.
func DestructiveKeywords(sqlQuery string) []string {
	toks, _ := tokenize(sqlQuery)

	var found []string
	seen := make(map[string]bool)
	for i, t := range toks {
		if t.kind != tokWord {
			continue
		}
		if (i > 0 && toks[i-1].isPunct('.')) || (i+1 < len(toks) && toks[i+1].isPunct('.')) {
			continue
		}
		kw := t.upper()
		if _, bad := destructiveKeywords[kw]; bad && !seen[kw] {
			seen[kw] = true
			found = append(found, kw)
		}
	}
	return found
}
