// Package sql provides static analysis of generated SQL: normalisation, statement
// classification, forbidden keyword detection, table reference extraction and row limits.
package sql

import (
	"errors"
	"strings"
)

var (
	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")
)

// ValidationResult contains the normalized SQL and any validation errors.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateAndNormalize trims the statement, strips trailing semicolons and rejects
// any semicolon left outside literals and comments.
func ValidateAndNormalize(sqlQuery string) ValidationResult {
	sqlQuery = strings.TrimSpace(sqlQuery)
	if sqlQuery == "" {
		return ValidationResult{NormalizedSQL: sqlQuery}
	}

	// Lexical errors are reported by CheckStructure; normalise what could be read.
	toks, _ := tokenize(sqlQuery)

	trailing := len(toks)
	for trailing > 0 && toks[trailing-1].isPunct(';') {
		trailing--
	}

	for _, t := range toks[:trailing] {
		if t.isPunct(';') {
			return ValidationResult{Error: ErrMultipleStatements}
		}
	}

	normalized := sqlQuery
	if trailing < len(toks) {
		normalized = strings.TrimRight(sqlQuery[:toks[trailing].pos], " \t\n\r")
	}

	return ValidationResult{NormalizedSQL: normalized}
}
