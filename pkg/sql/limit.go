package sql

import (
	"strconv"
	"strings"
)

// EnsureLimit bounds a read query to maxRows. A top-level LIMIT above maxRows (or
// LIMIT ALL) is lowered to maxRows; a query with no top-level LIMIT or FETCH
// clause gets one appended. Non-SELECT statements are only normalised and
// multi-statement input is returned unchanged; the validator rejects both.
func EnsureLimit(sqlQuery string, maxRows int) string {
	norm := ValidateAndNormalize(sqlQuery)
	if norm.Error != nil || norm.NormalizedSQL == "" || maxRows <= 0 {
		return sqlQuery
	}
	normalized := norm.NormalizedSQL

	if DetectStatementType(normalized) != StatementSelect {
		return normalized
	}

	toks, err := tokenize(normalized)
	if err != nil {
		return normalized
	}

	depth := 0
	for i, t := range toks {
		switch {
		case t.isPunct('('):
			depth++
			continue
		case t.isPunct(')'):
			depth--
			continue
		}
		if depth != 0 || t.kind != tokWord {
			continue
		}

		switch t.upper() {
		case "FETCH":
			return normalized
		case "LIMIT":
			if i+1 >= len(toks) {
				return normalized
			}
			arg := toks[i+1]
			if arg.is(tokWord, "ALL") {
				return normalized[:arg.pos] + strconv.Itoa(maxRows) + normalized[arg.end:]
			}
			if arg.kind == tokNumber {
				if n, err := strconv.Atoi(arg.text); err == nil && n > maxRows {
					return normalized[:arg.pos] + strconv.Itoa(maxRows) + normalized[arg.end:]
				}
			}
			return normalized
		}
	}

	// A trailing line comment would swallow a same-line LIMIT.
	return strings.TrimRight(normalized, " \t\r\n") + "\nLIMIT " + strconv.Itoa(maxRows)
}
