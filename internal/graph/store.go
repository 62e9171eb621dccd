// Package graph manages the Neo4j knowledge graph of companies,
// lawsuits, executives, subsidiaries, and regulatory actions.
//
// The graph is an optional backend: when Neo4j is unreachable the rest
// of the system keeps working and litigation scoring falls back to a
// neutral default.
package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog"
)

// Store wraps the Neo4j driver with domain queries
type Store struct {
	driver neo4j.DriverWithContext
	log    zerolog.Logger
}

// NewStore connects to Neo4j, verifies connectivity, and ensures the
// uniqueness constraints exist.
func NewStore(ctx context.Context, uri, user, password string, log zerolog.Logger) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify neo4j connectivity: %w", err)
	}

	s := &Store{
		driver: driver,
		log:    log.With().Str("component", "graph_store").Logger(),
	}

	s.createConstraints(ctx)
	s.log.Info().Str("uri", uri).Msg("Connected to Neo4j")

	return s, nil
}

// Close shuts down the underlying driver
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// Ping verifies the connection is still alive
func (s *Store) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// createConstraints creates uniqueness constraints and indices.
// Failures are logged and skipped; the constraint may already exist.
func (s *Store) createConstraints(ctx context.Context) {
	constraints := []string{
		"CREATE CONSTRAINT company_ticker IF NOT EXISTS FOR (c:Company) REQUIRE c.ticker IS UNIQUE",
		"CREATE CONSTRAINT executive_id IF NOT EXISTS FOR (e:Executive) REQUIRE e.id IS UNIQUE",
		"CREATE CONSTRAINT lawsuit_id IF NOT EXISTS FOR (l:Lawsuit) REQUIRE l.id IS UNIQUE",
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	for _, constraint := range constraints {
		if _, err := session.Run(ctx, constraint, nil); err != nil {
			s.log.Warn().Err(err).Msg("Constraint may already exist")
		}
	}
}

// activeStatuses are the lawsuit statuses that contribute to litigation risk
var activeStatuses = []string{"Filed", "In Litigation", "Active"}

// LawsuitSummary aggregates active lawsuits for risk scoring
type LawsuitSummary struct {
	LawsuitCount      int     `json:"lawsuit_count"`
	AvgImpact         float64 `json:"avg_impact"`
	HighSeverityCount int     `json:"high_severity_count"`
	TotalImpact       float64 `json:"total_impact"`
}

// LawsuitSummary returns active lawsuit aggregates for a ticker. A ticker
// with no active lawsuits (or no company node) yields a zero summary.
func (s *Store) LawsuitSummary(ctx context.Context, ticker string) (*LawsuitSummary, error) {
	query := `
		MATCH (c:Company {ticker: $ticker})-[:INVOLVED_IN]->(l:Lawsuit)
		WHERE l.status IN $statuses
		RETURN
			count(l) as lawsuit_count,
			avg(l.impact_score) as avg_impact,
			collect({
				severity: l.severity,
				impact: l.impact_score,
				type: l.lawsuit_type
			}) as lawsuits
	`

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	summary, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, map[string]any{
			"ticker":   ticker,
			"statuses": activeStatuses,
		})
		if err != nil {
			return nil, err
		}

		record, err := result.Single(ctx)
		if err != nil {
			return nil, err
		}

		count, _ := record.Get("lawsuit_count")
		avg, _ := record.Get("avg_impact")
		lawsuits, _ := record.Get("lawsuits")

		items, _ := lawsuits.([]any)
		return summarizeLawsuits(asInt64(count), avg, items), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query lawsuit summary for %s: %w", ticker, err)
	}

	return summary.(*LawsuitSummary), nil
}

// summarizeLawsuits shapes the raw aggregate record into a LawsuitSummary.
// High severity is counted client side from the collected lawsuit maps.
func summarizeLawsuits(count int64, avgImpact any, lawsuits []any) *LawsuitSummary {
	if count == 0 {
		return &LawsuitSummary{}
	}

	summary := &LawsuitSummary{
		LawsuitCount: int(count),
		AvgImpact:    asFloat64(avgImpact),
	}

	for _, item := range lawsuits {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if severity, _ := m["severity"].(string); severity == "High" {
			summary.HighSeverityCount++
		}
		summary.TotalImpact += asFloat64(m["impact"])
	}

	return summary
}

// GraphNode is a visualization-ready graph node (vis.js/D3 compatible)
type GraphNode struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Type       string         `json:"type"`
	Group      string         `json:"group"`
	Properties map[string]any `json:"properties"`
	Color      string         `json:"color"`
	Size       int            `json:"size"`
}

// GraphEdge is a visualization-ready graph edge
type GraphEdge struct {
	ID     string `json:"id"`
	From   string `json:"from"`
	To     string `json:"to"`
	Label  string `json:"label"`
	Arrows string `json:"arrows"`
	Color  string `json:"color"`
}

// GraphStats summarizes a rendered graph
type GraphStats struct {
	TotalNodes int `json:"total_nodes"`
	TotalEdges int `json:"total_edges"`
}

// CompanyGraph is the full visualization payload for one company
type CompanyGraph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
	Stats GraphStats  `json:"stats"`
}

// CompanyGraph returns the company node and its direct relationships
// formatted for visualization. Returns nil when the company has no node.
func (s *Store) CompanyGraph(ctx context.Context, ticker string) (*CompanyGraph, error) {
	query := `
		MATCH (c:Company {ticker: $ticker})
		OPTIONAL MATCH (c)-[r1]-(n)
		WITH c, collect({node: n, relType: type(r1)}) as connections
		RETURN c, connections
	`

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	graphData, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, map[string]any{"ticker": ticker})
		if err != nil {
			return nil, err
		}

		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return (*CompanyGraph)(nil), nil
		}

		record := records[0]
		companyVal, _ := record.Get("c")
		connectionsVal, _ := record.Get("connections")

		company, ok := companyVal.(neo4j.Node)
		if !ok {
			return (*CompanyGraph)(nil), nil
		}
		connections, _ := connectionsVal.([]any)

		return buildCompanyGraph(ticker, company, connections), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query company graph for %s: %w", ticker, err)
	}

	return graphData.(*CompanyGraph), nil
}

// Node styling for the frontend legend
var (
	nodeColors = map[string]string{
		"Company":          "#4A90E2",
		"Lawsuit":          "#E74C3C",
		"Executive":        "#F39C12",
		"Subsidiary":       "#27AE60",
		"RegulatoryAction": "#8E44AD",
	}
	nodeSizes = map[string]int{
		"Lawsuit":          20,
		"Executive":        15,
		"Subsidiary":       18,
		"RegulatoryAction": 20,
	}
)

// NodeLegend describes one node type for frontend rendering
type NodeLegend struct {
	Color       string `json:"color"`
	Description string `json:"description"`
}

// Legend returns the node type legend served alongside graphs
func Legend() map[string]NodeLegend {
	return map[string]NodeLegend{
		"Company":          {Color: nodeColors["Company"], Description: "Public Company"},
		"Lawsuit":          {Color: nodeColors["Lawsuit"], Description: "Legal Action"},
		"Executive":        {Color: nodeColors["Executive"], Description: "Company Executive"},
		"Subsidiary":       {Color: nodeColors["Subsidiary"], Description: "Subsidiary Entity"},
		"RegulatoryAction": {Color: nodeColors["RegulatoryAction"], Description: "Regulatory Action"},
	}
}

// buildCompanyGraph formats a company node and its connections for the
// frontend. The company anchors the graph; every connected node gets an
// edge from it.
func buildCompanyGraph(ticker string, company neo4j.Node, connections []any) *CompanyGraph {
	graph := &CompanyGraph{
		Nodes: []GraphNode{},
		Edges: []GraphEdge{},
	}

	companyLabel := ticker
	if name, ok := company.Props["name"].(string); ok && name != "" {
		companyLabel = name
	}
	graph.Nodes = append(graph.Nodes, GraphNode{
		ID:         ticker,
		Label:      companyLabel,
		Type:       "Company",
		Group:      "company",
		Properties: company.Props,
		Color:      nodeColors["Company"],
		Size:       30,
	})

	nodeCounter := 1
	for _, connVal := range connections {
		conn, ok := connVal.(map[string]any)
		if !ok {
			continue
		}
		node, ok := conn["node"].(neo4j.Node)
		if !ok {
			// OPTIONAL MATCH with no relationships yields a null node
			continue
		}

		nodeType := "Unknown"
		if len(node.Labels) > 0 {
			nodeType = node.Labels[0]
		}

		nodeID, _ := node.Props["id"].(string)
		if nodeID == "" {
			nodeID = fmt.Sprintf("%s_%d", nodeType, nodeCounter)
		}
		nodeCounter++

		label := nodeLabel(node.Props, nodeType)

		color, ok := nodeColors[nodeType]
		if !ok {
			color = "#95A5A6"
		}
		size, ok := nodeSizes[nodeType]
		if !ok {
			size = 15
		}

		graph.Nodes = append(graph.Nodes, GraphNode{
			ID:         nodeID,
			Label:      label,
			Type:       nodeType,
			Group:      strings.ToLower(nodeType),
			Properties: node.Props,
			Color:      color,
			Size:       size,
		})

		relType, _ := conn["relType"].(string)
		if relType == "" {
			relType = "RELATED_TO"
		}
		graph.Edges = append(graph.Edges, GraphEdge{
			ID:     fmt.Sprintf("edge_%s_%s", ticker, nodeID),
			From:   ticker,
			To:     nodeID,
			Label:  strings.ReplaceAll(relType, "_", " "),
			Arrows: "to",
			Color:  "#95A5A6",
		})
	}

	graph.Stats = GraphStats{
		TotalNodes: len(graph.Nodes),
		TotalEdges: len(graph.Edges),
	}
	return graph
}

// nodeLabel picks a display label from node properties by precedence
func nodeLabel(props map[string]any, fallback string) string {
	for _, key := range []string{"title", "name", "agency"} {
		if v, ok := props[key].(string); ok && v != "" {
			return v
		}
	}
	return fallback
}

// ExecutiveInfo is a related executive in the entities listing
type ExecutiveInfo struct {
	Name     string `json:"name"`
	Position string `json:"position"`
}

// LawsuitInfo is a related lawsuit in the entities listing
type LawsuitInfo struct {
	Title    string `json:"title"`
	Status   string `json:"status"`
	Severity string `json:"severity"`
}

// RegulatoryInfo is a related regulatory action in the entities listing
type RegulatoryInfo struct {
	Agency string `json:"agency"`
	Type   string `json:"type"`
	Status string `json:"status"`
}

// CompanyEntities lists every entity related to a company, without the
// graph structure.
type CompanyEntities struct {
	Subsidiaries      []string         `json:"subsidiaries"`
	Executives        []ExecutiveInfo  `json:"executives"`
	Lawsuits          []LawsuitInfo    `json:"lawsuits"`
	RegulatoryActions []RegulatoryInfo `json:"regulatory_actions"`
}

// CompanyEntities returns all related entities for a ticker
func (s *Store) CompanyEntities(ctx context.Context, ticker string) (*CompanyEntities, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	entities, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		out := &CompanyEntities{
			Subsidiaries:      []string{},
			Executives:        []ExecutiveInfo{},
			Lawsuits:          []LawsuitInfo{},
			RegulatoryActions: []RegulatoryInfo{},
		}

		params := map[string]any{"ticker": ticker}

		subs, err := collectColumn(ctx, tx, `
			MATCH (c:Company {ticker: $ticker})-[:HAS_SUBSIDIARY]->(s:Subsidiary)
			RETURN collect(s.name) as items
		`, params)
		if err != nil {
			return nil, err
		}
		for _, v := range subs {
			if name, ok := v.(string); ok {
				out.Subsidiaries = append(out.Subsidiaries, name)
			}
		}

		execs, err := collectColumn(ctx, tx, `
			MATCH (e:Executive)-[:WORKS_AT]->(c:Company {ticker: $ticker})
			RETURN collect({name: e.name, position: e.position}) as items
		`, params)
		if err != nil {
			return nil, err
		}
		for _, v := range execs {
			if m, ok := v.(map[string]any); ok {
				out.Executives = append(out.Executives, ExecutiveInfo{
					Name:     asString(m["name"]),
					Position: asString(m["position"]),
				})
			}
		}

		suits, err := collectColumn(ctx, tx, `
			MATCH (c:Company {ticker: $ticker})-[:INVOLVED_IN]->(l:Lawsuit)
			RETURN collect({title: l.title, status: l.status, severity: l.severity}) as items
		`, params)
		if err != nil {
			return nil, err
		}
		for _, v := range suits {
			if m, ok := v.(map[string]any); ok {
				out.Lawsuits = append(out.Lawsuits, LawsuitInfo{
					Title:    asString(m["title"]),
					Status:   asString(m["status"]),
					Severity: asString(m["severity"]),
				})
			}
		}

		actions, err := collectColumn(ctx, tx, `
			MATCH (c:Company {ticker: $ticker})-[:SUBJECT_TO]->(r:RegulatoryAction)
			RETURN collect({agency: r.agency, type: r.action_type, status: r.status}) as items
		`, params)
		if err != nil {
			return nil, err
		}
		for _, v := range actions {
			if m, ok := v.(map[string]any); ok {
				out.RegulatoryActions = append(out.RegulatoryActions, RegulatoryInfo{
					Agency: asString(m["agency"]),
					Type:   asString(m["type"]),
					Status: asString(m["status"]),
				})
			}
		}

		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query company entities for %s: %w", ticker, err)
	}

	return entities.(*CompanyEntities), nil
}

// collectColumn runs a single-row collect() query and returns the items
func collectColumn(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) ([]any, error) {
	result, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	record, err := result.Single(ctx)
	if err != nil {
		return nil, err
	}
	items, _ := record.Get("items")
	list, _ := items.([]any)
	return list, nil
}

// asInt64 converts a Neo4j integer value
func asInt64(v any) int64 {
	if n, ok := v.(int64); ok {
		return n
	}
	return 0
}

// asFloat64 converts a Neo4j numeric value, tolerating nulls and integers
func asFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	default:
		return 0
	}
}

// asString converts a Neo4j string value, tolerating nulls
func asString(v any) string {
	s, _ := v.(string)
	return s
}
