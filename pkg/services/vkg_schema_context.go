package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-vkg/pkg/cache"
	"github.com/ekaya-inc/ekaya-vkg/pkg/models"
	"github.com/ekaya-inc/ekaya-vkg/pkg/repositories"
)

// SchemaContext is the read-only ontology view one pipeline run works against.
type SchemaContext struct {
	// Schema is filtered down to mapped elements, or complete when no mapping exists yet.
	Schema *models.OntologySchema
	// Mappings has every resolvable two-part source table rewritten to catalog.schema.table.
	Mappings *models.MappingTable
	// Unresolved lists two-part source tables no registered catalog exposes.
	Unresolved []string
}

// SchemaContextLoader loads the schema context for a tenant workspace.
type SchemaContextLoader interface {
	Load(ctx context.Context, tenantID, workspaceID string) (*SchemaContext, error)
}

// ResolvedMappings is the cached, catalog-resolved mapping table of a workspace.
type ResolvedMappings struct {
	Mappings   *models.MappingTable `json:"mappings"`
	Unresolved []string             `json:"unresolved"`
}

type schemaContextLoader struct {
	repo         repositories.OntologyRepository
	schemaCache  *cache.TieredCache[*models.OntologySchema]
	mappingCache *cache.TieredCache[*ResolvedMappings]
	logger       *zap.Logger
}

// NewSchemaContextLoader creates a SchemaContextLoader backed by the given caches.
func NewSchemaContextLoader(
	repo repositories.OntologyRepository,
	schemaCache *cache.TieredCache[*models.OntologySchema],
	mappingCache *cache.TieredCache[*ResolvedMappings],
	logger *zap.Logger,
) SchemaContextLoader {
	return &schemaContextLoader{
		repo:         repo,
		schemaCache:  schemaCache,
		mappingCache: mappingCache,
		logger:       logger.Named("schema-context"),
	}
}

// SchemaContextCaches holds the caches used by the loader. Entries are keyed by
// tenant and workspace.
type SchemaContextCaches struct {
	Schema   *cache.TieredCache[*models.OntologySchema]
	Mappings *cache.TieredCache[*ResolvedMappings]
}

// NewSchemaContextCaches creates the schema and mapping caches sharing one config.
func NewSchemaContextCaches(cfg cache.Config, remote *redis.Client, logger *zap.Logger) *SchemaContextCaches {
	schemaCfg, mappingCfg := cfg, cfg
	schemaCfg.Name = "schema"
	mappingCfg.Name = "mappings"
	return &SchemaContextCaches{
		Schema:   cache.New[*models.OntologySchema](schemaCfg, remote, logger),
		Mappings: cache.New[*ResolvedMappings](mappingCfg, remote, logger),
	}
}

// Stop halts both caches.
func (c *SchemaContextCaches) Stop() {
	c.Schema.Stop()
	c.Mappings.Stop()
}

var _ SchemaContextLoader = (*schemaContextLoader)(nil)

func cacheKey(tenantID, workspaceID string) string {
	return tenantID + ":" + workspaceID
}

// Load fetches schema and mappings concurrently, then filters the schema to
// mapped elements.
func (l *schemaContextLoader) Load(ctx context.Context, tenantID, workspaceID string) (*SchemaContext, error) {
	key := cacheKey(tenantID, workspaceID)

	var schema *models.OntologySchema
	var mappings *ResolvedMappings

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		schema, err = l.schemaCache.GetOrLoad(gctx, key, func(ctx context.Context) (*models.OntologySchema, error) {
			return l.repo.GetSchema(ctx, tenantID, workspaceID)
		})
		if err != nil {
			return fmt.Errorf("failed to load ontology schema: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		mappings, err = l.mappingCache.GetOrLoad(gctx, key, func(ctx context.Context) (*ResolvedMappings, error) {
			return l.loadMappings(ctx, tenantID, workspaceID)
		})
		if err != nil {
			return fmt.Errorf("failed to load mappings: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if mappings.Mappings.IsEmpty() {
		l.logger.Debug("No mappings for workspace; using full schema",
			zap.String("tenant_id", tenantID),
			zap.String("workspace_id", workspaceID))
	}

	filtered := FilterSchema(schema, mappings.Mappings)
	l.logger.Debug("Schema context loaded",
		zap.String("tenant_id", tenantID),
		zap.String("workspace_id", workspaceID),
		zap.Int("schema_elements", schema.ElementCount()),
		zap.Int("mapped_elements", filtered.ElementCount()),
		zap.Int("unresolved_tables", len(mappings.Unresolved)))

	return &SchemaContext{
		Schema:     filtered,
		Mappings:   mappings.Mappings.Clone(),
		Unresolved: append([]string(nil), mappings.Unresolved...),
	}, nil
}

func (l *schemaContextLoader) loadMappings(ctx context.Context, tenantID, workspaceID string) (*ResolvedMappings, error) {
	raw, err := l.repo.GetMappings(ctx, tenantID, workspaceID)
	if err != nil {
		return nil, err
	}
	catalogs, err := l.repo.ListCatalogDatabases(ctx, tenantID, workspaceID)
	if err != nil {
		return nil, err
	}

	resolved, unresolved := ResolveTableNames(raw, catalogs)
	if len(unresolved) > 0 {
		l.logger.Warn("Source tables could not be resolved to a catalog",
			zap.String("tenant_id", tenantID),
			zap.String("workspace_id", workspaceID),
			zap.Strings("tables", unresolved))
	}
	return &ResolvedMappings{Mappings: resolved, Unresolved: unresolved}, nil
}

// ResolveTableNames rewrites every two-part database.table source in the mapping
// table to catalog.database.table using the catalog directory. Three-part names
// pass through. A two-part name is left as-is and reported when no catalog, or
// more than one catalog, exposes its database.
func ResolveTableNames(mappings *models.MappingTable, catalogs []models.CatalogDatabase) (*models.MappingTable, []string) {
	byDatabase := make(map[string][]string)
	for _, c := range catalogs {
		db := strings.ToLower(c.Database)
		byDatabase[db] = append(byDatabase[db], c.Catalog)
	}

	unresolvedSet := make(map[string]struct{})
	resolve := func(table string) string {
		parts := strings.Split(table, ".")
		if len(parts) != 2 {
			return table
		}
		owners := byDatabase[strings.ToLower(parts[0])]
		if len(owners) != 1 {
			unresolvedSet[table] = struct{}{}
			return table
		}
		return owners[0] + "." + table
	}

	out := mappings.Clone()
	for name, m := range out.Classes {
		m.SourceTable = resolve(m.SourceTable)
		out.Classes[name] = m
	}
	for name, m := range out.Properties {
		m.SourceTable = resolve(m.SourceTable)
		out.Properties[name] = m
	}

	unresolved := make([]string, 0, len(unresolvedSet))
	for t := range unresolvedSet {
		unresolved = append(unresolved, t)
	}
	sort.Strings(unresolved)
	return out, unresolved
}

// FilterSchema keeps the classes and properties that have a mapping entry. A
// class matches a class mapping by label or local name. A property matches a
// property or relationship mapping the same way, or is kept when any of its
// domain classes is mapped. An empty mapping table returns the schema unfiltered.
func FilterSchema(schema *models.OntologySchema, mappings *models.MappingTable) *models.OntologySchema {
	if schema == nil {
		return &models.OntologySchema{}
	}
	if mappings.IsEmpty() {
		return schema
	}

	classKeys := mappingKeys(mappings.Classes)
	propertyKeys := mappingKeys(mappings.Properties)
	for k := range mappingKeys(mappings.Relationships) {
		propertyKeys[k] = struct{}{}
	}

	filtered := &models.OntologySchema{
		Classes:          make([]models.OntologyClass, 0),
		ObjectProperties: make([]models.OntologyProperty, 0),
		DataProperties:   make([]models.OntologyProperty, 0),
	}

	mappedClasses := make(map[string]struct{})
	for _, c := range schema.Classes {
		if matchesMapping(c.Name, c.Label, classKeys) {
			filtered.Classes = append(filtered.Classes, c)
			mappedClasses[strings.ToLower(models.LocalName(c.Name))] = struct{}{}
		}
	}

	keep := func(p models.OntologyProperty) bool {
		if matchesMapping(p.Name, p.Label, propertyKeys) {
			return true
		}
		for _, d := range p.Domain {
			if _, ok := mappedClasses[strings.ToLower(models.LocalName(d))]; ok {
				return true
			}
			if matchesMapping(d, "", classKeys) {
				return true
			}
		}
		return false
	}
	for _, p := range schema.ObjectProperties {
		if keep(p) {
			filtered.ObjectProperties = append(filtered.ObjectProperties, p)
		}
	}
	for _, p := range schema.DataProperties {
		if keep(p) {
			filtered.DataProperties = append(filtered.DataProperties, p)
		}
	}
	return filtered
}

// mappingKeys indexes mapping names by exact name and by local name.
func mappingKeys[V any](m map[string]V) map[string]struct{} {
	keys := make(map[string]struct{}, len(m)*2)
	for name := range m {
		keys[name] = struct{}{}
		keys["#"+models.LocalName(name)] = struct{}{}
	}
	return keys
}

func matchesMapping(name, label string, keys map[string]struct{}) bool {
	if label != "" {
		if _, ok := keys[label]; ok {
			return true
		}
	}
	_, ok := keys["#"+models.LocalName(name)]
	return ok
}
