package services

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ekaya-inc/ekaya-vkg/pkg/models"
	sqlpkg "github.com/ekaya-inc/ekaya-vkg/pkg/sql"
)

// selectStarPattern matches a projection of every column.
var selectStarPattern = regexp.MustCompile(`(?i)\bSELECT\s+(DISTINCT\s+)?\*`)

// SQLValidator statically checks generated SQL against the mapping table.
// It holds no state: the same input always yields the same result.
type SQLValidator interface {
	Validate(sql string, mappings *models.MappingTable) *models.ValidationResult
}

type sqlValidator struct{}

// NewSQLValidator creates a SQLValidator.
func NewSQLValidator() SQLValidator {
	return sqlValidator{}
}

var _ SQLValidator = sqlValidator{}

func (sqlValidator) Validate(query string, mappings *models.MappingTable) *models.ValidationResult {
	result := &models.ValidationResult{Errors: []string{}, Warnings: []string{}}
	addError := func(format string, args ...any) {
		result.Errors = append(result.Errors, fmt.Sprintf(format, args...))
	}
	addWarning := func(format string, args ...any) {
		result.Warnings = append(result.Warnings, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(query) == "" {
		addError("empty SQL statement")
		return result
	}

	if err := sqlpkg.CheckStructure(query); err != nil {
		addError("malformed SQL: %v", err)
	}
	if norm := sqlpkg.ValidateAndNormalize(query); norm.Error != nil {
		addError("%v", norm.Error)
	}
	for _, kw := range sqlpkg.DestructiveKeywords(query) {
		addError("forbidden operation: %s", kw)
	}
	if stmtType := sqlpkg.DetectStatementType(query); !stmtType.IsReadOnly() {
		addError("only SELECT statements are allowed, got %s", stmtType)
	}

	checkTables(query, mappings, addError, addWarning)

	if selectStarPattern.MatchString(query) {
		addWarning("query uses SELECT * instead of an explicit column list")
	}
	for _, inj := range sqlpkg.CheckLiteralsForInjection(query) {
		addWarning("%s matches SQL injection fingerprint %q", inj.Source, inj.Fingerprint)
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// checkTables enforces the source table whitelist. With an empty mapping table
// the whitelist cannot be enforced and only a warning is produced.
func checkTables(query string, mappings *models.MappingTable, addError, addWarning func(string, ...any)) {
	refs := sqlpkg.TableRefs(query)
	if mappings.IsEmpty() {
		addWarning("no mapping table available; table references were not checked")
		return
	}
	if len(refs) == 0 {
		addWarning("query does not reference any mapped table")
		return
	}

	known := mappings.SourceTables()
	for _, ref := range refs {
		if _, ok := known[ref.Key()]; ok {
			continue
		}
		if !ref.FullyQualified() {
			if suggestion := suggestTable(ref, known); suggestion != "" {
				addError("table %s is not fully qualified; use %s", ref, suggestion)
				continue
			}
		}
		addError("table %s is not in the mapping table", ref)
	}
}

// suggestTable returns the known tables whose trailing parts equal ref.
func suggestTable(ref sqlpkg.TableRef, known map[string]struct{}) string {
	suffix := "." + ref.Key()
	var matches []string
	for table := range known {
		if strings.HasSuffix(table, suffix) {
			matches = append(matches, table)
		}
	}
	sort.Strings(matches)
	return strings.Join(matches, " or ")
}
