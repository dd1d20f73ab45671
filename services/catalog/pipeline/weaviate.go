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
	"log/slog"
	"strconv"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// ArtifactClassName is the Weaviate class holding indexed catalog
// artifacts (stored procedure bodies, view definitions).
const ArtifactClassName = "CatalogArtifact"

// artifactFields are the properties fetched for every hit.
var artifactFields = []graphql.Field{
	{Name: "content"},
	{Name: "tableName"},
	{Name: "viewName"},
	{Name: "entityName"},
	{Name: "_additional", Fields: []graphql.Field{
		{Name: "score"},
		{Name: "certainty"},
		{Name: "vector"},
	}},
}

// WeaviateIndex implements ArtifactIndex on a Weaviate instance.
//
// Vectors are supplied externally (vectorizer "none"), so the effective
// index dimension is fixed by the first object inserted after creation.
type WeaviateIndex struct {
	client *weaviate.Client
}

// NewWeaviateIndex wraps an existing Weaviate client and makes sure the
// artifact class exists.
func NewWeaviateIndex(ctx context.Context, client *weaviate.Client) (*WeaviateIndex, error) {
	idx := &WeaviateIndex{client: client}
	if err := idx.ensureClass(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func artifactClass() *models.Class {
	return &models.Class{
		Class:      ArtifactClassName,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: "content", DataType: []string{"text"}},
			{Name: "tableName", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "viewName", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "entityName", DataType: []string{"text"}, Tokenization: "field"},
		},
	}
}

func (w *WeaviateIndex) ensureClass(ctx context.Context) error {
	_, err := w.client.Schema().ClassGetter().WithClassName(ArtifactClassName).Do(ctx)
	if err == nil {
		return nil
	}
	slog.Info("Creating artifact class", "class", ArtifactClassName)
	if err := w.client.Schema().ClassCreator().WithClass(artifactClass()).Do(ctx); err != nil {
		return fmt.Errorf("creating artifact class: %w", err)
	}
	return nil
}

// Dimension implements ArtifactIndex by sampling one stored object and
// measuring its vector. Returns 0 when the class is empty.
func (w *WeaviateIndex) Dimension(ctx context.Context) (int, error) {
	result, err := w.client.GraphQL().Get().
		WithClassName(ArtifactClassName).
		WithFields(graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "vector"}}}).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("sampling index vector: %w", err)
	}
	if len(result.Errors) > 0 {
		return 0, fmt.Errorf("sampling index vector: %s", result.Errors[0].Message)
	}

	objects := extractObjects(result.Data)
	if len(objects) == 0 {
		return 0, nil
	}
	additional, _ := objects[0]["_additional"].(map[string]interface{})
	vector, _ := additional["vector"].([]interface{})
	return len(vector), nil
}

// Recreate implements ArtifactIndex. The class is dropped and recreated
// empty; the new dimension takes effect with the next insert.
func (w *WeaviateIndex) Recreate(ctx context.Context, dim int) error {
	slog.Warn("Dropping and recreating artifact class", "class", ArtifactClassName, "dim", dim)
	if err := w.client.Schema().ClassDeleter().WithClassName(ArtifactClassName).Do(ctx); err != nil {
		return fmt.Errorf("deleting artifact class: %w", err)
	}
	if err := w.client.Schema().ClassCreator().WithClass(artifactClass()).Do(ctx); err != nil {
		return fmt.Errorf("recreating artifact class: %w", err)
	}
	return nil
}

// HybridSearch implements ArtifactIndex. The where clause is a
// disjunction over the metadata fields, so a hit needs the term in at
// least one of them; ranking blends the BM25 match with the vector.
func (w *WeaviateIndex) HybridSearch(ctx context.Context, term string, vector []float32, k int) ([]ArtifactHit, error) {
	pattern := "*" + term + "*"
	operands := make([]*filters.WhereBuilder, 0, 4)
	for _, field := range []string{"tableName", "viewName", "content", "entityName"} {
		operands = append(operands, filters.Where().
			WithPath([]string{field}).
			WithOperator(filters.Like).
			WithValueString(pattern))
	}
	whereFilter := filters.Where().
		WithOperator(filters.Or).
		WithOperands(operands)

	hybrid := w.client.GraphQL().HybridArgumentBuilder().
		WithQuery(term).
		WithVector(vector)

	result, err := w.client.GraphQL().Get().
		WithClassName(ArtifactClassName).
		WithFields(artifactFields...).
		WithWhere(whereFilter).
		WithHybrid(hybrid).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("hybrid search failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("hybrid search error: %s", result.Errors[0].Message)
	}
	return parseHits(result.Data), nil
}

// KNNSearch implements ArtifactIndex with a pure nearVector query.
func (w *WeaviateIndex) KNNSearch(ctx context.Context, vector []float32, k int) ([]ArtifactHit, error) {
	nearVector := w.client.GraphQL().NearVectorArgBuilder().WithVector(vector)

	result, err := w.client.GraphQL().Get().
		WithClassName(ArtifactClassName).
		WithFields(artifactFields...).
		WithNearVector(nearVector).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("knn search failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("knn search error: %s", result.Errors[0].Message)
	}
	return parseHits(result.Data), nil
}

// extractObjects unwraps the Get response envelope down to the list of
// raw object maps, tolerating absent levels.
func extractObjects(data map[string]models.JSONObject) []map[string]interface{} {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := get[ArtifactClassName].([]interface{})
	if !ok {
		return nil
	}
	objects := make([]map[string]interface{}, 0, len(raw))
	for _, o := range raw {
		if m, ok := o.(map[string]interface{}); ok {
			objects = append(objects, m)
		}
	}
	return objects
}

func parseHits(data map[string]models.JSONObject) []ArtifactHit {
	objects := extractObjects(data)
	hits := make([]ArtifactHit, 0, len(objects))
	for _, m := range objects {
		hits = append(hits, ArtifactHit{
			Body:       stringProp(m, "content"),
			TableName:  stringProp(m, "tableName"),
			ViewName:   stringProp(m, "viewName"),
			EntityName: stringProp(m, "entityName"),
			Score:      hitScore(m),
		})
	}
	return hits
}

func stringProp(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// hitScore prefers the hybrid score (returned as a string) and falls
// back to nearVector certainty.
func hitScore(m map[string]interface{}) float64 {
	additional, ok := m["_additional"].(map[string]interface{})
	if !ok {
		return 0
	}
	if s, ok := additional["score"].(string); ok && s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	if c, ok := additional["certainty"].(float64); ok {
		return c
	}
	return 0
}

// Compile-time interface check.
var _ ArtifactIndex = (*WeaviateIndex)(nil)
