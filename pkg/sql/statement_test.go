package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectStatementType(t *testing.T) {
	tests := []struct {
		input string
		want  StatementType
	}{
		{"SELECT 1", StatementSelect},
		{"  select * from t", StatementSelect},
		{"(SELECT a FROM t) UNION (SELECT a FROM u)", StatementSelect},
		{"-- leading comment\nSELECT 1", StatementSelect},
		{"WITH c AS (SELECT 1) SELECT * FROM c", StatementSelect},
		{"WITH d AS (DELETE FROM t RETURNING *) SELECT * FROM d", StatementUnknown},
		{"INSERT INTO t VALUES (1)", StatementInsert},
		{"UPDATE t SET a = 1", StatementUpdate},
		{"DELETE FROM t", StatementDelete},
		{"MERGE INTO t USING u ON t.id = u.id WHEN MATCHED THEN DELETE", StatementMerge},
		{"CALL system.flush()", StatementCall},
		{"DROP TABLE t", StatementDDL},
		{"create table t (a int)", StatementDDL},
		{"TRUNCATE TABLE t", StatementDDL},
		{"SET SESSION query_max_run_time = '1m'", StatementUnknown},
		{"COMMIT", StatementUnknown},
		{"", StatementUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectStatementType(tt.input))
		})
	}
}

func TestStatementType_IsReadOnly(t *testing.T) {
	assert.True(t, StatementSelect.IsReadOnly())
	assert.False(t, StatementDDL.IsReadOnly())
	assert.False(t, StatementUnknown.IsReadOnly())
}
