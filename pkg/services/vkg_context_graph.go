package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-vkg/pkg/models"
	sqlpkg "github.com/ekaya-inc/ekaya-vkg/pkg/sql"
)

// maxTraceSources bounds the node ids cited by one reasoning step.
const maxTraceSources = 10

// ColumnRole says how a result column contributes to the context graph.
type ColumnRole int

const (
	// RoleAttribute columns become properties of the nearest identifier's node.
	RoleAttribute ColumnRole = iota
	// RoleIdentifier columns produce one node per distinct value.
	RoleIdentifier
)

// ColumnClassification is the role assigned to one result column.
type ColumnClassification struct {
	Index int
	Name  string
	Role  ColumnRole
	// Class is the ontology class of an identifier column.
	Class string
}

// GraphSources describes where the result rows came from.
type GraphSources struct {
	SQL       string
	Databases []string
}

// ColumnClassifier decides which result columns identify entities.
type ColumnClassifier interface {
	Classify(columns []models.ResultColumn, schema *models.OntologySchema, mappings *models.MappingTable, sources GraphSources) []ColumnClassification
}

// ContextGraphBuilder turns result rows into a typed node/edge graph and a
// reasoning trace. It never calls the oracle.
type ContextGraphBuilder struct {
	classifier ColumnClassifier
	logger     *zap.Logger
}

// NewContextGraphBuilder creates a builder. A nil classifier uses NamingClassifier.
func NewContextGraphBuilder(classifier ColumnClassifier, logger *zap.Logger) *ContextGraphBuilder {
	if classifier == nil {
		classifier = NamingClassifier{}
	}
	return &ContextGraphBuilder{
		classifier: classifier,
		logger:     logger.Named("context-graph"),
	}
}

// Build derives the context graph. Any internal failure, including a panic in
// the classifier, is returned as a graph_build *PipelineFault together with an
// empty graph, so callers can always continue with the returned graph.
func (b *ContextGraphBuilder) Build(result *models.ExecutionResult, schema *models.OntologySchema, mappings *models.MappingTable, sources GraphSources) (graph *models.ContextGraph, err error) {
	defer func() {
		if r := recover(); r != nil {
			graph = models.EmptyContextGraph()
			err = &PipelineFault{Kind: FaultGraphBuild, Message: fmt.Sprintf("graph builder panicked: %v", r)}
		}
	}()

	graph = models.EmptyContextGraph()
	if result == nil || len(result.Columns) == 0 {
		return graph, nil
	}

	classes := b.classifier.Classify(result.Columns, schema, mappings, sources)
	var identifiers []ColumnClassification
	for _, c := range classes {
		if c.Role == RoleIdentifier && c.Index >= 0 && c.Index < len(result.Columns) {
			identifiers = append(identifiers, c)
		}
	}
	if len(identifiers) == 0 {
		return graph, nil
	}

	relations := relationIndex(schema)
	nodeIndex := make(map[string]int)
	edgeSeen := make(map[models.GraphEdge]bool)

	for _, row := range result.Rows {
		rowNodes := make(map[int]string, len(identifiers))

		for _, id := range identifiers {
			if id.Index >= len(row) || row[id.Index] == nil {
				continue
			}
			nodeID := fmt.Sprintf("%s:%v", id.Class, row[id.Index])
			rowNodes[id.Index] = nodeID

			if _, ok := nodeIndex[nodeID]; !ok {
				nodeIndex[nodeID] = len(graph.Nodes)
				graph.Nodes = append(graph.Nodes, models.GraphNode{
					ID:         nodeID,
					Label:      fmt.Sprintf("%v", row[id.Index]),
					Class:      id.Class,
					Properties: make(map[string]any),
				})
			}
		}

		// Attributes belong to the closest identifier column to their left.
		owner := -1
		for _, c := range classes {
			if c.Index >= len(row) {
				continue
			}
			if c.Role == RoleIdentifier {
				owner = c.Index
				continue
			}
			ownerIdx := owner
			if ownerIdx < 0 {
				ownerIdx = identifiers[0].Index
			}
			nodeID, ok := rowNodes[ownerIdx]
			if !ok || row[c.Index] == nil {
				continue
			}
			node := &graph.Nodes[nodeIndex[nodeID]]
			if _, exists := node.Properties[c.Name]; !exists {
				node.Properties[c.Name] = row[c.Index]
			}
			if isLabelColumn(c.Name) && node.Label == strings.TrimPrefix(nodeID, node.Class+":") {
				node.Label = fmt.Sprintf("%v", row[c.Index])
			}
		}

		for i, a := range identifiers {
			for _, z := range identifiers[i+1:] {
				src, okA := rowNodes[a.Index]
				dst, okZ := rowNodes[z.Index]
				if !okA || !okZ || a.Class == z.Class {
					continue
				}
				for _, edge := range relations.edges(a.Class, src, z.Class, dst) {
					if !edgeSeen[edge] {
						edgeSeen[edge] = true
						graph.Edges = append(graph.Edges, edge)
					}
				}
			}
		}
	}

	graph.Statistics = models.GraphStatistics{NodeCount: len(graph.Nodes), EdgeCount: len(graph.Edges)}
	b.logger.Debug("Built context graph",
		zap.Int("nodes", graph.Statistics.NodeCount),
		zap.Int("edges", graph.Statistics.EdgeCount))
	return graph, nil
}

// Trace explains the graph as an ordered list of reasoning steps.
func (b *ContextGraphBuilder) Trace(graph *models.ContextGraph, question string, sources GraphSources) []models.ReasoningStep {
	steps := make([]models.ReasoningStep, 0, 4)

	databases := append([]string{}, sources.Databases...)
	steps = append(steps, models.ReasoningStep{
		Step:     "Queried federated sources",
		Evidence: fmt.Sprintf("Ran one federated query across %d source database(s) to answer: %s", len(databases), strings.TrimSpace(question)),
		Sources:  databases,
	})

	if graph == nil || graph.Statistics.NodeCount == 0 {
		steps = append(steps, models.ReasoningStep{
			Step:     "Identified entities",
			Evidence: "No result column could be linked to an ontology class",
			Sources:  []string{},
		})
		return steps
	}

	byClass := make(map[string][]string)
	for _, n := range graph.Nodes {
		byClass[n.Class] = append(byClass[n.Class], n.ID)
	}
	classNames := make([]string, 0, len(byClass))
	for c := range byClass {
		classNames = append(classNames, c)
	}
	sort.Strings(classNames)

	parts := make([]string, len(classNames))
	var entitySources []string
	for i, c := range classNames {
		parts[i] = fmt.Sprintf("%d %s", len(byClass[c]), c)
		entitySources = append(entitySources, byClass[c]...)
	}
	steps = append(steps, models.ReasoningStep{
		Step:     "Identified entities",
		Evidence: fmt.Sprintf("Found %s", strings.Join(parts, ", ")),
		Sources:  truncateSources(entitySources),
	})

	if graph.Statistics.EdgeCount > 0 {
		byType := make(map[string]int)
		var edgeSources []string
		for _, e := range graph.Edges {
			byType[e.Type]++
			edgeSources = append(edgeSources, e.Source+" -> "+e.Target)
		}
		types := make([]string, 0, len(byType))
		for t := range byType {
			types = append(types, t)
		}
		sort.Strings(types)
		relParts := make([]string, len(types))
		for i, t := range types {
			relParts[i] = fmt.Sprintf("%s (%d)", t, byType[t])
		}
		steps = append(steps, models.ReasoningStep{
			Step:     "Linked related entities",
			Evidence: fmt.Sprintf("Followed %s", strings.Join(relParts, ", ")),
			Sources:  truncateSources(edgeSources),
		})
	}

	return steps
}

func truncateSources(sources []string) []string {
	if len(sources) > maxTraceSources {
		return sources[:maxTraceSources]
	}
	return sources
}

func isLabelColumn(name string) bool {
	n := strings.ToLower(name)
	return n == "name" || n == "title" || n == "label" || strings.HasSuffix(n, "_name")
}

// relationSet indexes object properties by (domain class, range class).
type relationSet map[[2]string][]string

func relationIndex(schema *models.OntologySchema) relationSet {
	rel := make(relationSet)
	if schema == nil {
		return rel
	}
	for _, p := range schema.ObjectProperties {
		rangeClass := models.LocalName(p.Range)
		for _, d := range p.Domain {
			key := [2]string{models.LocalName(d), rangeClass}
			rel[key] = append(rel[key], p.Name)
		}
	}
	return rel
}

// edges returns the known relationships between two nodes, in either direction.
func (r relationSet) edges(classA, nodeA, classB, nodeB string) []models.GraphEdge {
	var out []models.GraphEdge
	for _, name := range r[[2]string{classA, classB}] {
		out = append(out, models.GraphEdge{Source: nodeA, Target: nodeB, Type: name})
	}
	for _, name := range r[[2]string{classB, classA}] {
		out = append(out, models.GraphEdge{Source: nodeB, Target: nodeA, Type: name})
	}
	return out
}

// NamingClassifier treats a column as an entity identifier when its name
// matches a mapped class: the class's id column, <class>_id, or
// <singular table>_<id column>. A bare id column shared by several classes is
// given to the class whose table appears first in the query.
type NamingClassifier struct{}

var _ ColumnClassifier = NamingClassifier{}

func (NamingClassifier) Classify(columns []models.ResultColumn, schema *models.OntologySchema, mappings *models.MappingTable, sources GraphSources) []ColumnClassification {
	out := make([]ColumnClassification, len(columns))

	patterns := make(map[string]string)     // column name -> class
	bareID := make(map[string][]classTable) // id column -> candidate classes
	if mappings != nil {
		for _, name := range sortedClassNames(mappings.Classes) {
			m := mappings.Classes[name]
			local := models.LocalName(name)
			idCol := strings.ToLower(m.SourceIDColumn)
			if idCol == "" {
				idCol = "id"
			}
			table := strings.ToLower(lastPart(m.SourceTable))

			for _, p := range []string{
				strings.ToLower(local) + "_" + idCol,
				strings.ToLower(inflection.Singular(table)) + "_" + idCol,
				strings.ToLower(local) + "_id",
			} {
				if _, taken := patterns[p]; !taken {
					patterns[p] = local
				}
			}
			bareID[idCol] = append(bareID[idCol], classTable{class: local, table: strings.ToLower(m.SourceTable)})
		}
	}

	order := tableOrder(sources.SQL)
	for i, col := range columns {
		name := strings.ToLower(lastPart(col.Name))
		out[i] = ColumnClassification{Index: i, Name: col.Name, Role: RoleAttribute}

		if class, ok := patterns[name]; ok {
			out[i].Role, out[i].Class = RoleIdentifier, class
			continue
		}
		if candidates := bareID[name]; len(candidates) > 0 {
			out[i].Role, out[i].Class = RoleIdentifier, pickByTableOrder(candidates, order)
		}
	}
	return out
}

type classTable struct {
	class string
	table string
}

func pickByTableOrder(candidates []classTable, order map[string]int) string {
	best := candidates[0]
	bestPos, found := order[best.table]
	for _, c := range candidates[1:] {
		if pos, ok := order[c.table]; ok && (!found || pos < bestPos) {
			best, bestPos, found = c, pos, true
		}
	}
	return best.class
}

// tableOrder maps each table referenced by the query to its position.
func tableOrder(query string) map[string]int {
	order := make(map[string]int)
	if query == "" {
		return order
	}
	for i, ref := range sqlpkg.TableRefs(query) {
		order[ref.Key()] = i
	}
	return order
}

func lastPart(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func sortedClassNames(m map[string]models.ClassMapping) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
