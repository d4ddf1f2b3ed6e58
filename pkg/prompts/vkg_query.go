package prompts

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ekaya-inc/ekaya-vkg/pkg/models"
)

// SQLGenerationSystemPrompt instructs the oracle to plan and write one federated query.
const SQLGenerationSystemPrompt = `You translate business questions into a single read-only SQL query for a federated SQL engine (Trino dialect).

Rules:
- Use ONLY the source tables and columns listed in the mapping section.
- Always reference tables by their fully-qualified three-part name: catalog.schema.table.
- Write exactly one SELECT statement. Never modify data or schema.
- Join through the listed relationship conditions; do not invent join keys.
- Select the identifier column of every entity you return so results can be traced.
- Prefer explicit column lists over SELECT *.

Respond with JSON only, in this exact shape:
{
  "plan": {
    "entities": ["ClassName", ...],
    "single_hop": true,
    "aggregation": "count|sum|avg|min|max|none",
    "reasoning": "one or two sentences on how the query answers the question"
  },
  "sql": "SELECT ..."
}`

// AnswerSystemPrompt instructs the oracle to answer strictly from the returned rows.
const AnswerSystemPrompt = `You answer business questions using only the query results you are given.
Be concise and specific: quote the numbers and names that appear in the rows.
If the rows only partially answer the question, say what is missing.
Do not mention SQL, tables, or how the data was retrieved.`

// xsdSQLTypes maps declared value ranges to the SQL types the engine exposes them as.
var xsdSQLTypes = map[string]string{
	"integer":            "BIGINT",
	"int":                "BIGINT",
	"long":               "BIGINT",
	"short":              "BIGINT",
	"nonnegativeinteger": "BIGINT",
	"positiveinteger":    "BIGINT",
	"decimal":            "DECIMAL",
	"double":             "DOUBLE",
	"float":              "DOUBLE",
	"date":               "DATE",
	"datetime":           "TIMESTAMP",
	"time":               "TIME",
	"boolean":            "BOOLEAN",
	"string":             "VARCHAR",
}

// SQLTypeHint infers the SQL column type from a declared range such as
// "xsd:integer". It returns "" when the range is not a known datatype.
func SQLTypeHint(rangeType string) string {
	return xsdSQLTypes[strings.ToLower(models.LocalName(rangeType))]
}

// BuildSQLGenerationPrompt renders the user turn for plan+SQL generation.
func BuildSQLGenerationPrompt(question string, schema *models.OntologySchema, mappings *models.MappingTable) string {
	var prompt strings.Builder

	prompt.WriteString("# Ontology\n\n")
	prompt.WriteString(BuildSchemaDescription(schema))

	prompt.WriteString("\n# Mappings\n\n")
	prompt.WriteString(BuildMappingDescription(schema, mappings))

	prompt.WriteString("\n# Question\n\n")
	prompt.WriteString(strings.TrimSpace(question))
	prompt.WriteString("\n")

	return prompt.String()
}

// BuildSchemaDescription renders classes and properties as a markdown outline.
func BuildSchemaDescription(schema *models.OntologySchema) string {
	if schema.IsEmpty() {
		return "(no ontology defined)\n"
	}

	var b strings.Builder
	if len(schema.Classes) > 0 {
		b.WriteString("## Classes\n")
		for _, c := range schema.Classes {
			b.WriteString(fmt.Sprintf("- %s", c.Name))
			if c.Label != "" && c.Label != c.Name {
				b.WriteString(fmt.Sprintf(" (%s)", c.Label))
			}
			b.WriteString("\n")
		}
	}
	if len(schema.ObjectProperties) > 0 {
		b.WriteString("## Relationships\n")
		for _, p := range schema.ObjectProperties {
			b.WriteString(fmt.Sprintf("- %s: %s -> %s\n", p.Name, strings.Join(p.Domain, "|"), p.Range))
		}
	}
	if len(schema.DataProperties) > 0 {
		b.WriteString("## Attributes\n")
		for _, p := range schema.DataProperties {
			b.WriteString(fmt.Sprintf("- %s", p.Name))
			if len(p.Domain) > 0 {
				b.WriteString(fmt.Sprintf(" of %s", strings.Join(p.Domain, "|")))
			}
			if p.Range != "" {
				b.WriteString(fmt.Sprintf(" [%s]", p.Range))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// BuildMappingDescription renders the mapping table with SQL type hints taken
// from the ranges of matching data properties.
func BuildMappingDescription(schema *models.OntologySchema, mappings *models.MappingTable) string {
	if mappings.IsEmpty() {
		return "(no mappings generated yet; infer tables from the ontology names)\n"
	}

	ranges := make(map[string]string)
	if schema != nil {
		for _, p := range schema.DataProperties {
			ranges[p.Name] = p.Range
		}
	}

	var b strings.Builder
	if len(mappings.Classes) > 0 {
		b.WriteString("## Entity tables\n")
		for _, name := range sortedKeys(mappings.Classes) {
			m := mappings.Classes[name]
			b.WriteString(fmt.Sprintf("- %s -> %s (id column: %s)\n", name, m.SourceTable, m.SourceIDColumn))
		}
	}
	if len(mappings.Properties) > 0 {
		b.WriteString("## Columns\n")
		for _, name := range sortedKeys(mappings.Properties) {
			m := mappings.Properties[name]
			b.WriteString(fmt.Sprintf("- %s -> %s.%s", name, m.SourceTable, m.SourceColumn))
			if hint := SQLTypeHint(ranges[name]); hint != "" {
				b.WriteString(fmt.Sprintf(" [%s]", hint))
			}
			b.WriteString("\n")
		}
	}
	if len(mappings.Relationships) > 0 {
		b.WriteString("## Join conditions\n")
		for _, name := range sortedKeys(mappings.Relationships) {
			b.WriteString(fmt.Sprintf("- %s: %s\n", name, mappings.Relationships[name].JoinSQL))
		}
	}
	return b.String()
}

// BuildPriorAttemptTurn renders a previous (plan, sql) pair as the assistant turn
// that precedes a correction request.
func BuildPriorAttemptTurn(plan *models.QueryPlan, sql string) string {
	payload := struct {
		Plan *models.QueryPlan `json:"plan,omitempty"`
		SQL  string            `json:"sql"`
	}{Plan: plan, SQL: sql}

	data, err := json.Marshal(payload)
	if err != nil {
		return sql
	}
	return string(data)
}

// BuildCorrectionMessage renders the user turn asking for a corrected query.
// reason is included verbatim.
func BuildCorrectionMessage(reason string) string {
	var b strings.Builder
	b.WriteString("The previous query failed:\n\n")
	b.WriteString(reason)
	b.WriteString("\n\nReturn a corrected query in the same JSON format. ")
	b.WriteString("Use fully-qualified three-part table names (catalog.schema.table) exactly as listed in the mappings, ")
	b.WriteString("and only the mapped tables and columns.")
	return b.String()
}

// BuildAnswerPrompt renders the user turn for answer synthesis with at most
// sampleRows rows of the result.
func BuildAnswerPrompt(question string, result *models.ExecutionResult, stats models.GraphStatistics, sampleRows int) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Question: %s\n\n", strings.TrimSpace(question)))
	b.WriteString(fmt.Sprintf("Columns: %s\n", strings.Join(result.ColumnNames(), ", ")))
	b.WriteString(fmt.Sprintf("Rows (%d total):\n", result.RowCount))

	shown := len(result.Rows)
	if sampleRows > 0 && shown > sampleRows {
		shown = sampleRows
	}
	for _, row := range result.Rows[:shown] {
		values := make([]string, len(row))
		for i, v := range row {
			values[i] = formatValue(v)
		}
		b.WriteString(strings.Join(values, " | "))
		b.WriteString("\n")
	}
	if result.RowCount > shown {
		b.WriteString(fmt.Sprintf("... and %d more rows\n", result.RowCount-shown))
	}

	b.WriteString(fmt.Sprintf("\nEvidence graph: %d entities, %d relationships\n", stats.NodeCount, stats.EdgeCount))
	return b.String()
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
