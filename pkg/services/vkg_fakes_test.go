package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-vkg/pkg/cache"
	"github.com/ekaya-inc/ekaya-vkg/pkg/models"
	"github.com/ekaya-inc/ekaya-vkg/pkg/repositories"
)

// fakeOntologyRepository serves a fixed ontology and counts reads.
type fakeOntologyRepository struct {
	mu           sync.Mutex
	schema       *models.OntologySchema
	mappings     *models.MappingTable
	catalogs     []models.CatalogDatabase
	err          error
	schemaCalls  int
	mappingCalls int
	catalogCalls int
}

var _ repositories.OntologyRepository = (*fakeOntologyRepository)(nil)

func (f *fakeOntologyRepository) GetSchema(ctx context.Context, tenantID, workspaceID string) (*models.OntologySchema, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schemaCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.schema, nil
}

func (f *fakeOntologyRepository) GetMappings(ctx context.Context, tenantID, workspaceID string) (*models.MappingTable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mappingCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.mappings.Clone(), nil
}

func (f *fakeOntologyRepository) ListCatalogDatabases(ctx context.Context, tenantID, workspaceID string) ([]models.CatalogDatabase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catalogCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.catalogs, nil
}

// fakeExecutor returns queued results or errors, one per call, and records the SQL it ran.
type fakeExecutor struct {
	mu      sync.Mutex
	results []*models.ExecutionResult
	errs    []error
	queries []string
}

func (f *fakeExecutor) Execute(ctx context.Context, query string) (*models.ExecutionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.queries)
	f.queries = append(f.queries, query)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.results) && f.results[i] != nil {
		return f.results[i], nil
	}
	return nil, fmt.Errorf("fake executor: nothing queued for call %d", i+1)
}

func (f *fakeExecutor) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

// salesSchema is a small two-source ontology: customers in mysql, orders in postgresql.
func salesSchema() *models.OntologySchema {
	return &models.OntologySchema{
		Classes: []models.OntologyClass{
			{Name: "ex:Customer", Label: "Customer", SourceTable: "sales.customers"},
			{Name: "ex:Order", Label: "Order", SourceTable: "billing.orders"},
			{Name: "ex:Supplier", Label: "Supplier"},
		},
		ObjectProperties: []models.OntologyProperty{
			{Name: "placedBy", Label: "placed by", Kind: models.PropertyKindObject, Domain: []string{"ex:Order"}, Range: "ex:Customer"},
			{Name: "suppliedBy", Label: "supplied by", Kind: models.PropertyKindObject, Domain: []string{"ex:Supplier"}, Range: "ex:Order"},
		},
		DataProperties: []models.OntologyProperty{
			{Name: "customerName", Label: "customer name", Kind: models.PropertyKindData, Domain: []string{"ex:Customer"}, Range: "xsd:string"},
			{Name: "orderTotal", Label: "order total", Kind: models.PropertyKindData, Domain: []string{"ex:Order"}, Range: "xsd:decimal"},
			{Name: "supplierRating", Label: "supplier rating", Kind: models.PropertyKindData, Domain: []string{"ex:Supplier"}, Range: "xsd:integer"},
		},
	}
}

// salesMappings is already resolved to three-part names.
func salesMappings() *models.MappingTable {
	m := models.NewMappingTable()
	m.Classes["Customer"] = models.ClassMapping{SourceTable: "mysql.sales.customers", SourceIDColumn: "id"}
	m.Classes["Order"] = models.ClassMapping{SourceTable: "postgresql.billing.orders", SourceIDColumn: "order_id"}
	m.Properties["customerName"] = models.PropertyMapping{SourceTable: "mysql.sales.customers", SourceColumn: "name"}
	m.Relationships["placedBy"] = models.RelationshipMapping{JoinSQL: "o.customer_id = c.id"}
	return m
}

func salesCatalogs() []models.CatalogDatabase {
	return []models.CatalogDatabase{
		{Catalog: "mysql", Database: "sales"},
		{Catalog: "postgresql", Database: "billing"},
	}
}

func salesSchemaContext() *SchemaContext {
	mappings := salesMappings()
	return &SchemaContext{Schema: FilterSchema(salesSchema(), mappings), Mappings: mappings}
}

func newTestLoader(t *testing.T, repo repositories.OntologyRepository) SchemaContextLoader {
	t.Helper()
	caches := NewSchemaContextCaches(cache.Config{TTL: time.Minute}, nil, zap.NewNop())
	t.Cleanup(caches.Stop)
	return NewSchemaContextLoader(repo, caches.Schema, caches.Mappings, zap.NewNop())
}

func planSQLResponse(sql string) string {
	return fmt.Sprintf(`{"plan": {"entities": ["Customer"], "single_hop": true, "aggregation": "none", "reasoning": "list customers"}, "sql": %q}`, sql)
}

func customersResult() *models.ExecutionResult {
	return &models.ExecutionResult{
		Columns: []models.ResultColumn{{Name: "id", Type: "bigint"}, {Name: "name", Type: "varchar"}},
		Rows: [][]any{
			{int64(1), "Acme"},
			{int64(2), "Globex"},
		},
		RowCount:   2,
		DurationMs: 12,
	}
}
