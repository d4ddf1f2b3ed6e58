package models

import (
	"strings"
)

// ============================================================================
// Ontology Schema
// ============================================================================

// PropertyKind distinguishes attributes from relationships.
type PropertyKind string

const (
	PropertyKindData   PropertyKind = "data"
	PropertyKindObject PropertyKind = "object"
)

// OntologyClass is a domain entity type. SourceTable is empty when the class
// has not been mapped to a physical table.
type OntologyClass struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	SourceTable string `json:"source_table,omitempty"`
}

// OntologyProperty is an attribute (kind=data) or relationship (kind=object).
// Object properties carry a JoinCondition instead of a SourceColumn.
type OntologyProperty struct {
	Name          string       `json:"name"`
	Label         string       `json:"label"`
	Kind          PropertyKind `json:"kind"`
	Domain        []string     `json:"domain,omitempty"`
	Range         string       `json:"range,omitempty"`
	SourceColumn  string       `json:"source_column,omitempty"`
	SourceTable   string       `json:"source_table,omitempty"`
	JoinCondition string       `json:"join_condition,omitempty"`
}

// OntologySchema is the class/property view of one tenant workspace.
type OntologySchema struct {
	Classes          []OntologyClass    `json:"classes"`
	ObjectProperties []OntologyProperty `json:"object_properties"`
	DataProperties   []OntologyProperty `json:"data_properties"`
}

// IsEmpty returns true when the schema has no classes or properties.
func (s *OntologySchema) IsEmpty() bool {
	return s == nil || (len(s.Classes) == 0 && len(s.ObjectProperties) == 0 && len(s.DataProperties) == 0)
}

// ElementCount returns the total number of classes and properties.
func (s *OntologySchema) ElementCount() int {
	if s == nil {
		return 0
	}
	return len(s.Classes) + len(s.ObjectProperties) + len(s.DataProperties)
}

// LocalName strips a namespace prefix from an ontology identifier:
// "http://example.org/onto#Customer", "ex:Customer" and "Customer" all yield "Customer".
func LocalName(name string) string {
	if i := strings.LastIndexAny(name, "#/:"); i >= 0 && i < len(name)-1 {
		return name[i+1:]
	}
	return name
}

// ============================================================================
// Mapping Table
// ============================================================================

// ClassMapping binds a class to its source table and identifier column.
type ClassMapping struct {
	SourceTable    string `json:"source_table"`
	SourceIDColumn string `json:"source_id_column"`
}

// PropertyMapping binds a data property to a source column.
type PropertyMapping struct {
	SourceColumn string `json:"source_column"`
	SourceTable  string `json:"source_table"`
}

// RelationshipMapping binds an object property to a SQL join condition.
type RelationshipMapping struct {
	JoinSQL string `json:"join_sql"`
}

// MappingTable associates ontology element names with physical sources.
type MappingTable struct {
	Classes       map[string]ClassMapping        `json:"classes"`
	Properties    map[string]PropertyMapping     `json:"properties"`
	Relationships map[string]RelationshipMapping `json:"relationships"`
}

// NewMappingTable returns a MappingTable with all maps allocated.
func NewMappingTable() *MappingTable {
	return &MappingTable{
		Classes:       make(map[string]ClassMapping),
		Properties:    make(map[string]PropertyMapping),
		Relationships: make(map[string]RelationshipMapping),
	}
}

// Size returns the number of entries across all three maps.
func (m *MappingTable) Size() int {
	if m == nil {
		return 0
	}
	return len(m.Classes) + len(m.Properties) + len(m.Relationships)
}

// IsEmpty returns true when no VKG mapping has been generated yet.
func (m *MappingTable) IsEmpty() bool {
	return m.Size() == 0
}

// SourceTables returns the distinct source tables referenced by class and
// property mappings, lowercased for comparison.
func (m *MappingTable) SourceTables() map[string]struct{} {
	tables := make(map[string]struct{})
	if m == nil {
		return tables
	}
	for _, c := range m.Classes {
		if c.SourceTable != "" {
			tables[strings.ToLower(c.SourceTable)] = struct{}{}
		}
	}
	for _, p := range m.Properties {
		if p.SourceTable != "" {
			tables[strings.ToLower(p.SourceTable)] = struct{}{}
		}
	}
	return tables
}

// Clone returns a deep copy so cached mappings are never mutated by callers.
func (m *MappingTable) Clone() *MappingTable {
	out := NewMappingTable()
	if m == nil {
		return out
	}
	for k, v := range m.Classes {
		out.Classes[k] = v
	}
	for k, v := range m.Properties {
		out.Properties[k] = v
	}
	for k, v := range m.Relationships {
		out.Relationships[k] = v
	}
	return out
}

// CatalogDatabase records that a federated catalog exposes a source database.
type CatalogDatabase struct {
	Catalog  string `json:"catalog"`
	Database string `json:"database"`
}
