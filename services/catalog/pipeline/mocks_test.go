// Copyright (C) 2025 Anchorline Data
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"sync"

	"github.com/anchorline/catalogiq/services/catalog/datatypes"
	"github.com/anchorline/catalogiq/services/llm"
)

// =============================================================================
// Shared test doubles
// =============================================================================

type mockLLMResponse struct {
	text string
	err  error
}

// mockLLM returns scripted responses in order; the last one repeats.
type mockLLM struct {
	mu        sync.Mutex
	responses []mockLLMResponse
	prompts   []string
}

func (m *mockLLM) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (*llm.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)

	resp := mockLLMResponse{}
	if len(m.responses) > 0 {
		resp = m.responses[0]
		if len(m.responses) > 1 {
			m.responses = m.responses[1:]
		}
	}
	if resp.err != nil {
		return nil, resp.err
	}
	return &llm.Result{
		Text:         resp.text,
		Model:        "mock-model",
		InputTokens:  10,
		OutputTokens: 5,
	}, nil
}

func (m *mockLLM) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

type fakeIndex struct {
	dim        int
	dimErr     error
	hybridHits []ArtifactHit
	hybridErr  error
	knnHits    []ArtifactHit
	knnErr     error

	recreatedDim int
	hybridCalls  int
	knnCalls     int
}

func (f *fakeIndex) Dimension(ctx context.Context) (int, error) {
	return f.dim, f.dimErr
}

func (f *fakeIndex) Recreate(ctx context.Context, dim int) error {
	f.recreatedDim = dim
	return nil
}

func (f *fakeIndex) HybridSearch(ctx context.Context, term string, vector []float32, k int) ([]ArtifactHit, error) {
	f.hybridCalls++
	return f.hybridHits, f.hybridErr
}

func (f *fakeIndex) KNNSearch(ctx context.Context, vector []float32, k int) ([]ArtifactHit, error) {
	f.knnCalls++
	return f.knnHits, f.knnErr
}

type fakeEdgeStore struct {
	edges []GraphEdge
	err   error
}

func (f *fakeEdgeStore) EdgesTouching(ctx context.Context, name string) ([]GraphEdge, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.edges, nil
}

// fakeAgent fails failures times before answering.
type fakeAgent struct {
	answer   string
	failures int
	err      error
	calls    int
}

func (f *fakeAgent) Ask(ctx context.Context, question string) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeAgent) Model() string { return "mock-sql-model" }

// fakeRetriever returns fixed results or a fixed error.
type fakeRetriever struct {
	results []datatypes.RetrievalResult
	err     error
	calls   int
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query, sessionID string) ([]datatypes.RetrievalResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeGenerator struct {
	ref     *datatypes.ArtifactRef
	err     error
	calls   int
	lastIn  map[datatypes.Source][]datatypes.RetrievalResult
	session string
}

func (f *fakeGenerator) Generate(ctx context.Context, sessionID string,
	entries map[datatypes.Source][]datatypes.RetrievalResult) (*datatypes.ArtifactRef, error) {

	f.calls++
	f.session = sessionID
	f.lastIn = entries
	if f.err != nil {
		return nil, f.err
	}
	return f.ref, nil
}

// recordingSink captures progress events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSink) Progress(step, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, step)
}

func (s *recordingSink) steps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	copy(out, s.events)
	return out
}
