package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Company is a company node payload
type Company struct {
	Ticker   string
	Name     string
	Sector   string
	Industry string
}

// Lawsuit is a lawsuit node payload
type Lawsuit struct {
	ID          string
	Title       string
	Status      string
	LawsuitType string
	Severity    string
	ImpactScore float64
	FilingDate  string
	Description string
}

// Executive is an executive node payload
type Executive struct {
	ID       string
	Name     string
	Position string
}

// RegulatoryAction is a regulatory action node payload
type RegulatoryAction struct {
	Agency      string
	ActionType  string
	Status      string
	Date        string
	Description string
}

// UpsertCompany merges a company node by ticker
func (s *Store) UpsertCompany(ctx context.Context, c Company) error {
	query := `
		MERGE (c:Company {ticker: $ticker})
		SET c.name = $name,
			c.sector = $sector,
			c.industry = $industry,
			c.updated_at = datetime()
	`
	return s.write(ctx, query, map[string]any{
		"ticker":   c.Ticker,
		"name":     c.Name,
		"sector":   c.Sector,
		"industry": c.Industry,
	})
}

// CreateLawsuit creates a lawsuit node linked to a company.
// The company node must already exist.
func (s *Store) CreateLawsuit(ctx context.Context, ticker string, l Lawsuit) error {
	query := `
		MATCH (c:Company {ticker: $ticker})
		CREATE (l:Lawsuit {
			id: $id,
			title: $title,
			status: $status,
			lawsuit_type: $lawsuit_type,
			severity: $severity,
			impact_score: $impact_score,
			filing_date: $filing_date,
			description: $description,
			created_at: datetime()
		})
		CREATE (c)-[:INVOLVED_IN]->(l)
	`
	return s.write(ctx, query, map[string]any{
		"ticker":       ticker,
		"id":           l.ID,
		"title":        l.Title,
		"status":       l.Status,
		"lawsuit_type": l.LawsuitType,
		"severity":     l.Severity,
		"impact_score": l.ImpactScore,
		"filing_date":  l.FilingDate,
		"description":  l.Description,
	})
}

// UpsertExecutive merges an executive node and links it to a company
func (s *Store) UpsertExecutive(ctx context.Context, ticker string, e Executive) error {
	query := `
		MATCH (c:Company {ticker: $ticker})
		MERGE (e:Executive {id: $id})
		SET e.name = $name, e.position = $position
		MERGE (e)-[:WORKS_AT]->(c)
	`
	return s.write(ctx, query, map[string]any{
		"ticker":   ticker,
		"id":       e.ID,
		"name":     e.Name,
		"position": e.Position,
	})
}

// CreateSubsidiary creates a subsidiary node linked to a parent company
func (s *Store) CreateSubsidiary(ctx context.Context, parentTicker, name string, ownershipPct float64) error {
	query := `
		MATCH (c:Company {ticker: $ticker})
		CREATE (s:Subsidiary {name: $name, ownership_pct: $ownership_pct})
		CREATE (c)-[:HAS_SUBSIDIARY]->(s)
	`
	return s.write(ctx, query, map[string]any{
		"ticker":        parentTicker,
		"name":          name,
		"ownership_pct": ownershipPct,
	})
}

// CreateRegulatoryAction creates a regulatory action node linked to a company
func (s *Store) CreateRegulatoryAction(ctx context.Context, ticker string, r RegulatoryAction) error {
	query := `
		MATCH (c:Company {ticker: $ticker})
		CREATE (r:RegulatoryAction {
			agency: $agency,
			action_type: $action_type,
			status: $status,
			date: $date,
			description: $description,
			created_at: datetime()
		})
		CREATE (c)-[:SUBJECT_TO]->(r)
	`
	return s.write(ctx, query, map[string]any{
		"ticker":      ticker,
		"agency":      r.Agency,
		"action_type": r.ActionType,
		"status":      r.Status,
		"date":        r.Date,
		"description": r.Description,
	})
}

// write runs a single write query in a managed transaction
func (s *Store) write(ctx context.Context, query string, params map[string]any) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return nil, result.Err()
	})
	if err != nil {
		return fmt.Errorf("failed to run graph write: %w", err)
	}
	return nil
}
