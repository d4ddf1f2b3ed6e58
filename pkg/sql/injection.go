package sql

import (
	"fmt"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult contains the result of an injection check on a value.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	Source      string // Where the value came from, e.g. "literal 2"
	Value       string // The value that was checked
}

// CheckValueForInjection uses libinjection to detect SQL injection patterns in a
// string value. Returns nil when the value is clean.
func CheckValueForInjection(source, value string) *InjectionCheckResult {
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{
		IsSQLi:      true,
		Fingerprint: string(fingerprint),
		Source:      source,
		Value:       value,
	}
}

// CheckLiteralsForInjection runs every string literal in the statement through
// libinjection. Generated SQL embeds user phrasing in literals (names, cities,
// search terms), so a literal that itself parses as an injection payload is
// reported.
func CheckLiteralsForInjection(sqlQuery string) []*InjectionCheckResult {
	toks, _ := tokenize(sqlQuery)

	var results []*InjectionCheckResult
	literal := 0
	for _, t := range toks {
		if t.kind != tokString {
			continue
		}
		literal++
		if result := CheckValueForInjection(fmt.Sprintf("literal %d", literal), t.text); result != nil {
			results = append(results, result)
		}
	}
	return results
}
