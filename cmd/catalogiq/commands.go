// Copyright (C) 2025 Anchorline Data
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	sessionID string
	noStream  bool

	rootCmd = &cobra.Command{
		Use:   "catalogiq",
		Short: "A cli to query the CatalogIQ database catalog service",
		Long: `CatalogIQ answers natural-language questions about a database
catalog by combining vector search, lineage graph traversal, and a SQL
agent over the live schema.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			loadConfig()
		},
	}

	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Asks a question about the database catalog",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAskCommand, // Defined in cmd_ask.go
	}

	sessionCmd = &cobra.Command{
		Use:   "session",
		Short: "Manage catalog sessions",
	}
	logoutCmd = &cobra.Command{
		Use:   "logout [session_id]",
		Short: "Deletes all cached data for a session",
		Args:  cobra.ExactArgs(1),
		Run:   runLogoutCommand, // Defined in cmd_session.go
	}
	documentsCmd = &cobra.Command{
		Use:   "documents [session_id]",
		Short: "Shows the cached documents for a session",
		Args:  cobra.ExactArgs(1),
		Run:   runDocumentsCommand, // Defined in cmd_session.go
	}

	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Checks that the catalog service is up",
		Run:   runHealthCommand, // Defined in cmd_session.go
	}
)

func init() {
	askCmd.Flags().StringVar(&sessionID, "session", "", "Reuse an existing session ID")
	askCmd.Flags().BoolVar(&noStream, "no-stream", false, "Wait for the full response instead of streaming")

	sessionCmd.AddCommand(logoutCmd, documentsCmd)
	rootCmd.AddCommand(askCmd, sessionCmd, healthCmd)
}
