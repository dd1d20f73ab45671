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

	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools/sqldatabase"
	_ "github.com/tmc/langchaingo/tools/sqldatabase/postgresql"
)

// LangchainSQLAgent implements SQLAgent with a LangChain SQL database
// chain over the live catalog database.
//
// The queryable surface is the intersection of the configured searchable
// tables and the tables actually present at startup, so a stale config
// entry cannot leak a dropped table name into prompts.
type LangchainSQLAgent struct {
	chain  chains.SQLDatabaseChain
	db     *sqldatabase.SQLDatabase
	tables []string
	model  string
	topK   int
}

// NewLangchainSQLAgent opens the database, discovers the table
// whitelist, and builds the chain. searchable lists the tables the agent
// is allowed to query; an empty list allows every discovered table.
func NewLangchainSQLAgent(model llms.Model, modelName, dsn string,
	searchable []string, topK int) (*LangchainSQLAgent, error) {

	if topK <= 0 {
		topK = 5
	}

	db, err := sqldatabase.NewSQLDatabaseWithDSN("postgres", dsn, nil)
	if err != nil {
		return nil, fmt.Errorf("opening catalog database: %w", err)
	}

	discovered := db.TableNames()
	tables := whitelistTables(searchable, discovered)
	if len(tables) == 0 {
		return nil, fmt.Errorf("no searchable tables found (configured %d, discovered %d)",
			len(searchable), len(discovered))
	}
	slog.Info("SQL agent table whitelist resolved",
		"configured", len(searchable), "discovered", len(discovered), "usable", len(tables))

	return &LangchainSQLAgent{
		chain:  chains.NewSQLDatabaseChain(model, topK, db),
		db:     db,
		tables: tables,
		model:  modelName,
		topK:   topK,
	}, nil
}

// whitelistTables intersects the configured searchable tables with the
// discovered ones, preserving configured order.
func whitelistTables(searchable, discovered []string) []string {
	present := make(map[string]bool, len(discovered))
	for _, t := range discovered {
		present[t] = true
	}
	if len(searchable) == 0 {
		return discovered
	}
	out := make([]string, 0, len(searchable))
	for _, t := range searchable {
		if present[t] {
			out = append(out, t)
		} else {
			slog.Warn("Configured searchable table not present in database, skipping", "table", t)
		}
	}
	return out
}

// Ask implements SQLAgent.
func (a *LangchainSQLAgent) Ask(ctx context.Context, question string) (string, error) {
	out, err := chains.Call(ctx, a.chain, map[string]any{
		"query":              question,
		"table_names_to_use": a.tables,
	})
	if err != nil {
		return "", fmt.Errorf("sql chain failed: %w", err)
	}
	answer, ok := out["result"].(string)
	if !ok {
		return "", fmt.Errorf("sql chain returned no result")
	}
	return answer, nil
}

// Model implements SQLAgent.
func (a *LangchainSQLAgent) Model() string { return a.model }

// Tables exposes the resolved whitelist, mostly for startup logging.
func (a *LangchainSQLAgent) Tables() []string { return a.tables }

// Compile-time interface check.
var _ SQLAgent = (*LangchainSQLAgent)(nil)
