package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-vkg/pkg/database"
	"github.com/ekaya-inc/ekaya-vkg/pkg/models"
)

// Mapping element kinds stored in vkg_mappings.element_kind.
const (
	mappingKindClass        = "class"
	mappingKindProperty     = "property"
	mappingKindRelationship = "relationship"
)

// OntologyRepository is the read-only view of the ontology store the query pipeline consumes.
type OntologyRepository interface {
	// GetSchema returns the classes, object properties and data properties of a workspace.
	GetSchema(ctx context.Context, tenantID, workspaceID string) (*models.OntologySchema, error)
	// GetMappings returns the class, property and relationship mappings of a workspace.
	// An empty MappingTable means no VKG mapping has been generated yet.
	GetMappings(ctx context.Context, tenantID, workspaceID string) (*models.MappingTable, error)
	// ListCatalogDatabases returns which federated catalog exposes which source database.
	ListCatalogDatabases(ctx context.Context, tenantID, workspaceID string) ([]models.CatalogDatabase, error)
}

type ontologyRepository struct {
	db *database.DB
}

// NewOntologyRepository creates an OntologyRepository over the ontology store database.
func NewOntologyRepository(db *database.DB) OntologyRepository {
	return &ontologyRepository{db: db}
}

var _ OntologyRepository = (*ontologyRepository)(nil)

func (r *ontologyRepository) GetSchema(ctx context.Context, tenantID, workspaceID string) (*models.OntologySchema, error) {
	scope, err := r.db.WithTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer scope.Close()

	schema := &models.OntologySchema{
		Classes:          make([]models.OntologyClass, 0),
		ObjectProperties: make([]models.OntologyProperty, 0),
		DataProperties:   make([]models.OntologyProperty, 0),
	}

	classRows, err := scope.Conn.Query(ctx, `
		SELECT name, label, COALESCE(source_table, '')
		FROM vkg_ontology_classes
		WHERE tenant_id = $1 AND workspace_id = $2
		ORDER BY name`, tenantID, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ontology classes: %w", err)
	}
	classes, err := pgx.CollectRows(classRows, func(row pgx.CollectableRow) (models.OntologyClass, error) {
		var c models.OntologyClass
		err := row.Scan(&c.Name, &c.Label, &c.SourceTable)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan ontology classes: %w", err)
	}
	schema.Classes = append(schema.Classes, classes...)

	propRows, err := scope.Conn.Query(ctx, `
		SELECT name, label, kind, domain_classes, COALESCE(range_type, ''),
		       COALESCE(source_column, ''), COALESCE(source_table, ''), COALESCE(join_condition, '')
		FROM vkg_ontology_properties
		WHERE tenant_id = $1 AND workspace_id = $2
		ORDER BY kind, name`, tenantID, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ontology properties: %w", err)
	}
	defer propRows.Close()

	for propRows.Next() {
		p, err := scanOntologyProperty(propRows)
		if err != nil {
			return nil, err
		}
		if p.Kind == models.PropertyKindObject {
			schema.ObjectProperties = append(schema.ObjectProperties, p)
		} else {
			schema.DataProperties = append(schema.DataProperties, p)
		}
	}
	if err := propRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ontology properties: %w", err)
	}

	return schema, nil
}

func scanOntologyProperty(row pgx.Row) (models.OntologyProperty, error) {
	var p models.OntologyProperty
	var kind string
	err := row.Scan(&p.Name, &p.Label, &kind, &p.Domain, &p.Range, &p.SourceColumn, &p.SourceTable, &p.JoinCondition)
	if err != nil {
		return p, fmt.Errorf("failed to scan ontology property: %w", err)
	}
	p.Kind = models.PropertyKind(kind)
	return p, nil
}

func (r *ontologyRepository) GetMappings(ctx context.Context, tenantID, workspaceID string) (*models.MappingTable, error) {
	scope, err := r.db.WithTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer scope.Close()

	rows, err := scope.Conn.Query(ctx, `
		SELECT element_kind, element_name, COALESCE(source_table, ''), COALESCE(source_id_column, ''),
		       COALESCE(source_column, ''), COALESCE(join_sql, '')
		FROM vkg_mappings
		WHERE tenant_id = $1 AND workspace_id = $2
		ORDER BY element_kind, element_name`, tenantID, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	defer rows.Close()

	mappings := models.NewMappingTable()
	for rows.Next() {
		var kind, name, sourceTable, sourceIDColumn, sourceColumn, joinSQL string
		if err := rows.Scan(&kind, &name, &sourceTable, &sourceIDColumn, &sourceColumn, &joinSQL); err != nil {
			return nil, fmt.Errorf("failed to scan mapping: %w", err)
		}
		switch kind {
		case mappingKindClass:
			mappings.Classes[name] = models.ClassMapping{SourceTable: sourceTable, SourceIDColumn: sourceIDColumn}
		case mappingKindProperty:
			mappings.Properties[name] = models.PropertyMapping{SourceColumn: sourceColumn, SourceTable: sourceTable}
		case mappingKindRelationship:
			mappings.Relationships[name] = models.RelationshipMapping{JoinSQL: joinSQL}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mappings: %w", err)
	}

	return mappings, nil
}

func (r *ontologyRepository) ListCatalogDatabases(ctx context.Context, tenantID, workspaceID string) ([]models.CatalogDatabase, error) {
	scope, err := r.db.WithTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer scope.Close()

	rows, err := scope.Conn.Query(ctx, `
		SELECT catalog_name, database_name
		FROM vkg_catalogs
		WHERE tenant_id = $1 AND workspace_id = $2
		ORDER BY catalog_name, database_name`, tenantID, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalogs: %w", err)
	}

	catalogs, err := pgx.CollectRows(rows, pgx.RowToStructByPos[models.CatalogDatabase])
	if err != nil {
		return nil, fmt.Errorf("failed to scan catalogs: %w", err)
	}
	return catalogs, nil
}
