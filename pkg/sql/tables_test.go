package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func refStrings(refs []TableRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.String()
	}
	return out
}

func TestTableRefs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "single three-part table",
			input: "SELECT id FROM mysql.sales.customers",
			want:  []string{"mysql.sales.customers"},
		},
		{
			name:  "two-part table",
			input: "SELECT id FROM sales.customers",
			want:  []string{"sales.customers"},
		},
		{
			name:  "aliases and joins",
			input: "SELECT c.name, o.total FROM mysql.sales.customers c JOIN pg.shop.orders AS o ON o.customer_id = c.id LEFT OUTER JOIN pg.shop.items i ON i.order_id = o.id",
			want:  []string{"mysql.sales.customers", "pg.shop.orders", "pg.shop.items"},
		},
		{
			name:  "comma join",
			input: "SELECT * FROM a.b.c x, d.e.f AS y, g.h.i WHERE x.id = y.id",
			want:  []string{"a.b.c", "d.e.f", "g.h.i"},
		},
		{
			name:  "quoted identifiers",
			input: `SELECT 1 FROM "mysql"."Sales"."customers"`,
			want:  []string{"mysql.Sales.customers"},
		},
		{
			name:  "subquery in FROM and IN",
			input: "SELECT * FROM (SELECT id FROM pg.shop.orders) o WHERE o.id IN (SELECT order_id FROM pg.shop.items)",
			want:  []string{"pg.shop.orders", "pg.shop.items"},
		},
		{
			name:  "cte names are not tables",
			input: "WITH recent AS (SELECT * FROM pg.shop.orders), top (id) AS (SELECT id FROM recent) SELECT * FROM recent JOIN top ON recent.id = top.id",
			want:  []string{"pg.shop.orders"},
		},
		{
			name:  "from inside function calls",
			input: "SELECT EXTRACT(YEAR FROM o.created_at), SUBSTRING(o.code FROM 1 FOR 3) FROM pg.shop.orders o",
			want:  []string{"pg.shop.orders"},
		},
		{
			name:  "scalar subquery inside function",
			input: "SELECT COALESCE((SELECT max(total) FROM pg.shop.orders), 0)",
			want:  []string{"pg.shop.orders"},
		},
		{
			name:  "unnest is not a table",
			input: "SELECT t.x FROM pg.shop.orders o CROSS JOIN UNNEST(o.tags) AS t(x)",
			want:  []string{"pg.shop.orders"},
		},
		{
			name:  "unqualified table",
			input: "SELECT * FROM customers",
			want:  []string{"customers"},
		},
		{
			name:  "duplicates collapse case-insensitively",
			input: "SELECT * FROM pg.shop.orders a JOIN PG.SHOP.ORDERS b ON a.id = b.parent_id",
			want:  []string{"pg.shop.orders"},
		},
		{
			name:  "from in string literal",
			input: "SELECT 'from x.y.z' AS note FROM pg.shop.orders",
			want:  []string{"pg.shop.orders"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, refStrings(TableRefs(tt.input)))
		})
	}
}

func TestTableRef_Qualification(t *testing.T) {
	refs := TableRefs("SELECT * FROM a JOIN b.c ON 1=1 JOIN d.e.f ON 1=1")

	assert.False(t, refs[0].Qualified())
	assert.True(t, refs[1].Qualified())
	assert.False(t, refs[1].FullyQualified())
	assert.True(t, refs[2].FullyQualified())
	assert.Equal(t, "d.e.f", refs[2].Key())
}
