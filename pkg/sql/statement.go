package sql

// StatementType represents the type of SQL statement.
type StatementType string

const (
	StatementSelect  StatementType = "SELECT"
	StatementInsert  StatementType = "INSERT"
	StatementUpdate  StatementType = "UPDATE"
	StatementDelete  StatementType = "DELETE"
	StatementMerge   StatementType = "MERGE"
	StatementCall    StatementType = "CALL"
	StatementDDL     StatementType = "DDL"     // CREATE, ALTER, DROP, TRUNCATE
	StatementUnknown StatementType = "UNKNOWN" // Unrecognized or blocked statement types
)

// DetectStatementType determines the statement type from its first keyword.
// A WITH query whose CTE body modifies data is StatementUnknown.
func DetectStatementType(sqlQuery string) StatementType {
	toks, _ := tokenize(sqlQuery)

	// Skip leading parentheses: (SELECT ...) UNION (SELECT ...)
	i := 0
	for i < len(toks) && toks[i].isPunct('(') {
		i++
	}
	if i >= len(toks) || toks[i].kind != tokWord {
		return StatementUnknown
	}

	switch toks[i].upper() {
	case "SELECT", "VALUES":
		return StatementSelect
	case "WITH":
		if containsModifyingCTE(toks) {
			return StatementUnknown
		}
		return StatementSelect
	case "INSERT":
		return StatementInsert
	case "UPDATE":
		return StatementUpdate
	case "DELETE":
		return StatementDelete
	case "MERGE":
		return StatementMerge
	case "CALL", "EXECUTE":
		return StatementCall
	case "CREATE", "ALTER", "DROP", "TRUNCATE":
		return StatementDDL
	default:
		// Transaction control, SET SESSION, SHOW and friends are not queries.
		return StatementUnknown
	}
}

// IsReadOnly returns true if the statement type only reads data.
func (t StatementType) IsReadOnly() bool {
	return t == StatementSelect
}

// containsModifyingCTE detects CTEs like: WITH d AS (DELETE FROM t RETURNING *) SELECT * FROM d
func containsModifyingCTE(toks []token) bool {
	for i := 0; i+2 < len(toks); i++ {
		if !toks[i].is(tokWord, "AS") || !toks[i+1].isPunct('(') || toks[i+2].kind != tokWord {
			continue
		}
		switch toks[i+2].upper() {
		case "INSERT", "UPDATE", "DELETE", "MERGE":
			return true
		}
	}
	return false
}
