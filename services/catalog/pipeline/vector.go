// Copyright (C) 2025 Anchorline Data
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/anchorline/catalogiq/services/catalog/datatypes"
	"github.com/anchorline/catalogiq/services/catalog/embed"
	"github.com/anchorline/catalogiq/services/llm"
)

var vectorTracer = otel.Tracer("catalogiq.pipeline.vector")

// ArtifactHit is one raw hit from the artifact index.
type ArtifactHit struct {
	Body       string
	TableName  string
	ViewName   string
	EntityName string
	Score      float64
}

// ArtifactIndex abstracts the hybrid lexical/vector index over catalog
// artifacts (stored procedures, view definitions). The production
// implementation is Weaviate (see weaviate.go); tests inject fakes.
type ArtifactIndex interface {
	// Dimension returns the vector dimension of the index, or 0 when it
	// cannot be determined (empty index).
	Dimension(ctx context.Context) (int, error)

	// Recreate drops and recreates the index with the given vector
	// dimension. DESTRUCTIVE: all indexed artifacts are lost.
	Recreate(ctx context.Context, dim int) error

	// HybridSearch runs the filtered hybrid query: a mandatory k-NN
	// clause over the embedding plus a disjunctive match over metadata
	// fields (table name, view name, content, entity name), at least one
	// of which must hit.
	HybridSearch(ctx context.Context, term string, vector []float32, k int) ([]ArtifactHit, error)

	// KNNSearch runs the pure k-NN fallback with no lexical filter.
	KNNSearch(ctx context.Context, vector []float32, k int) ([]ArtifactHit, error)
}

// VectorRetriever searches the hybrid index once per extracted term.
//
// Retrieve never returns an error: backend failures degrade to a
// low-score placeholder so one dead index cannot abort the pipeline.
type VectorRetriever struct {
	embedder  embed.Embedder
	index     ArtifactIndex
	llmClient llm.LLMClient
	k         int

	// filterThreshold is the result count above which the accumulated
	// results are routed through the LLM relevance filter.
	filterThreshold int
}

// NewVectorRetriever wires the retriever to its collaborators. k bounds
// both the hybrid and the fallback k-NN query.
func NewVectorRetriever(embedder embed.Embedder, index ArtifactIndex, llmClient llm.LLMClient, k int) *VectorRetriever {
	if k <= 0 {
		k = 5
	}
	return &VectorRetriever{
		embedder:        embedder,
		index:           index,
		llmClient:       llmClient,
		k:               k,
		filterThreshold: 3,
	}
}

// Retrieve implements Retriever. The error return is always nil.
func (r *VectorRetriever) Retrieve(ctx context.Context, term string, sessionID string) ([]datatypes.RetrievalResult, error) {
	ctx, span := vectorTracer.Start(ctx, "VectorRetriever.Retrieve")
	defer span.End()
	span.SetAttributes(attribute.String("vector.term", term))

	vec, err := r.embedder.Embed(ctx, term)
	if err != nil {
		slog.Warn("Embedding failed for term, returning placeholder", "term", term, "error", err)
		return []datatypes.RetrievalResult{r.notFound(term)}, nil
	}

	r.ensureDimension(ctx, len(vec))

	hits, err := r.index.HybridSearch(ctx, term, vec, r.k)
	if err != nil {
		slog.Warn("Hybrid query failed, returning placeholder", "term", term, "error", err)
		return []datatypes.RetrievalResult{r.notFound(term)}, nil
	}

	// The filtered hybrid query can legitimately match nothing when the
	// term is a paraphrase rather than a catalog name; fall back to pure
	// k-NN with the same k before giving up.
	if len(hits) == 0 {
		span.SetAttributes(attribute.Bool("vector.knn_fallback", true))
		hits, err = r.index.KNNSearch(ctx, vec, r.k)
		if err != nil {
			slog.Warn("k-NN fallback failed, returning placeholder", "term", term, "error", err)
			return []datatypes.RetrievalResult{r.notFound(term)}, nil
		}
	}

	results := make([]datatypes.RetrievalResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, datatypes.RetrievalResult{
			Content:   renderArtifact(term, hit),
			Score:     hit.Score,
			Source:    datatypes.SourceVector,
			CreatedAt: time.Now(),
		})
	}

	if len(results) > r.filterThreshold {
		results = r.filterRelevance(ctx, term, results)
	}

	if len(results) == 0 {
		return []datatypes.RetrievalResult{r.notFound(term)}, nil
	}
	span.SetAttributes(attribute.Int("vector.results", len(results)))
	return results, nil
}

// ensureDimension verifies the index vector dimension against the
// embedding dimension and recreates the index on mismatch. Recreation is
// destructive; losing indexed artifacts on a model swap is accepted
// behavior, not an accident.
func (r *VectorRetriever) ensureDimension(ctx context.Context, embedDim int) {
	idxDim, err := r.index.Dimension(ctx)
	if err != nil {
		slog.Warn("Could not determine index dimension, continuing", "error", err)
		return
	}
	if idxDim == 0 || idxDim == embedDim {
		return
	}
	slog.Warn("Index vector dimension does not match embedding model, recreating index",
		"index_dim", idxDim, "embed_dim", embedDim)
	if err := r.index.Recreate(ctx, embedDim); err != nil {
		slog.Error("Failed to recreate index after dimension mismatch", "error", err)
	}
}

// renderArtifact turns a raw hit into human-readable content annotated
// with the term and any associated table/view names.
func renderArtifact(term string, hit ArtifactHit) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Search term %q", term)
	if hit.TableName != "" {
		fmt.Fprintf(&sb, ", related table: %s", hit.TableName)
	}
	if hit.ViewName != "" {
		fmt.Fprintf(&sb, ", related view: %s", hit.ViewName)
	}
	if hit.EntityName != "" {
		fmt.Fprintf(&sb, ", entity: %s", hit.EntityName)
	}
	sb.WriteString("\n")
	sb.WriteString(hit.Body)
	return sb.String()
}

func (r *VectorRetriever) notFound(term string) datatypes.RetrievalResult {
	return datatypes.NewPlaceholderResult(datatypes.SourceVector,
		fmt.Sprintf("No catalog artifacts found for %q.", term), datatypes.NotFoundScore)
}

const relevanceFilterPrompt = `You filter catalog search results for relevance.

Given the search term and the numbered results below, respond with
STRICTLY a JSON array of the result numbers that are relevant to the
term, dropping irrelevant or duplicate entries, e.g. [1, 3].
Do not add any text outside the JSON array.

Search term: %s

Results:
%s`

// arrayRE matches a bracket-delimited substring for fallback parsing of
// the relevance filter response.
var arrayRE = regexp.MustCompile(`(?s)\[.*\]`)

// filterRelevance routes accumulated results through a secondary LLM
// relevance filter. The original (unfiltered) results are returned
// whenever the response cannot be parsed or would drop everything.
func (r *VectorRetriever) filterRelevance(ctx context.Context, term string,
	results []datatypes.RetrievalResult) []datatypes.RetrievalResult {

	ctx, span := vectorTracer.Start(ctx, "VectorRetriever.filterRelevance")
	defer span.End()

	var sb strings.Builder
	for i, res := range results {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, res.Content)
	}

	start := time.Now()
	generated, err := r.llmClient.Generate(ctx,
		fmt.Sprintf(relevanceFilterPrompt, term, sb.String()), llm.GenerationParams{})
	if err != nil {
		slog.Warn("Relevance filter LLM call failed, keeping unfiltered results", "error", err)
		return results
	}

	keep, ok := parseIndexArray(generated.Text, len(results))
	if !ok || len(keep) == 0 {
		slog.Warn("Could not parse relevance filter response, keeping unfiltered results")
		return results
	}

	filtered := make([]datatypes.RetrievalResult, 0, len(keep))
	for _, idx := range keep {
		filtered = append(filtered, results[idx-1])
	}

	// Usage for the filter call rides on the first surviving result so
	// the coordinator can harvest it into the request ledger.
	filtered[0].TokenUsage = &datatypes.TokenUsageRecord{
		Source:           datatypes.SourceVector,
		Model:            generated.Model,
		InputTokens:      generated.InputTokens,
		OutputTokens:     generated.OutputTokens,
		ExecutionSeconds: time.Since(start).Seconds(),
	}

	span.SetAttributes(
		attribute.Int("vector.filter_in", len(results)),
		attribute.Int("vector.filter_out", len(filtered)),
	)
	return filtered
}

// parseIndexArray parses a JSON array of 1-based result numbers, first
// directly, then from a bracket-delimited substring. Out-of-range and
// duplicate numbers are dropped.
func parseIndexArray(raw string, max int) ([]int, bool) {
	trimmed := strings.TrimSpace(raw)

	candidates := []string{trimmed}
	if sub := arrayRE.FindString(trimmed); sub != "" && sub != trimmed {
		candidates = append(candidates, sub)
	}

	for _, candidate := range candidates {
		var nums []int
		if err := json.Unmarshal([]byte(candidate), &nums); err != nil {
			continue
		}
		seen := make(map[int]bool, len(nums))
		out := make([]int, 0, len(nums))
		for _, n := range nums {
			if n >= 1 && n <= max && !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
		return out, true
	}
	return nil, false
}

// Compile-time interface check.
var _ Retriever = (*VectorRetriever)(nil)
