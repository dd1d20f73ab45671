// Copyright (C) 2025 Anchorline Data
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// edgeQuery matches lineage edges where either endpoint carries the
// requested name. Ordering happens here so a cold cache already returns
// newest-first.
const edgeQuery = `
MATCH (a)-[r]->(b)
WHERE a.name = $name OR b.name = $name
RETURN a.name AS from_name,
       coalesce(r.from_field, '') AS from_field,
       b.name AS to_name,
       coalesce(r.to_field, '') AS to_field,
       type(r) AS relation,
       coalesce(r.description, '') AS description,
       r.created_at AS created_at
ORDER BY r.created_at DESC`

// Neo4jEdgeStore implements EdgeStore on the lineage graph.
type Neo4jEdgeStore struct {
	driver neo4j.DriverWithContext
}

// NewNeo4jEdgeStore connects to the lineage graph and verifies
// connectivity before returning.
func NewNeo4jEdgeStore(ctx context.Context, uri, user, password string) (*Neo4jEdgeStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("neo4j connectivity check failed: %w", err)
	}
	return &Neo4jEdgeStore{driver: driver}, nil
}

// EdgesTouching implements EdgeStore.
func (s *Neo4jEdgeStore) EdgesTouching(ctx context.Context, name string) ([]GraphEdge, error) {
	result, err := neo4j.ExecuteQuery(ctx, s.driver, edgeQuery,
		map[string]any{"name": name}, neo4j.EagerResultTransformer)
	if err != nil {
		return nil, fmt.Errorf("lineage query failed: %w", err)
	}

	edges := make([]GraphEdge, 0, len(result.Records))
	for _, record := range result.Records {
		row := record.AsMap()
		edges = append(edges, GraphEdge{
			FromName:    asString(row["from_name"]),
			FromField:   asString(row["from_field"]),
			ToName:      asString(row["to_name"]),
			ToField:     asString(row["to_field"]),
			Relation:    asString(row["relation"]),
			Description: asString(row["description"]),
			CreatedAt:   asTime(row["created_at"]),
		})
	}
	return edges, nil
}

// Close releases the underlying driver.
func (s *Neo4jEdgeStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// asTime tolerates the temporal types the driver may hand back for a
// created_at property, defaulting to the zero time.
func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case dbtype.LocalDateTime:
		return t.Time()
	case dbtype.Date:
		return t.Time()
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

// Compile-time interface check.
var _ EdgeStore = (*Neo4jEdgeStore)(nil)
