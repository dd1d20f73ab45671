// Copyright (C) 2025 Anchorline Data
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var sessionHTTPClient = &http.Client{Timeout: 30 * time.Second}

func runLogoutCommand(cmd *cobra.Command, args []string) {
	req, err := http.NewRequest(http.MethodDelete,
		config.Server.URL+"/v1/sessions/"+args[0], nil)
	if err != nil {
		log.Fatalf("Error building request: %v", err)
	}
	resp, err := sessionHTTPClient.Do(req)
	if err != nil {
		log.Fatalf("Error contacting catalog service: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Logout failed with status %d: %s", resp.StatusCode, string(body))
	}
	var result struct {
		SessionId      string `json:"session_id"`
		EntriesDeleted int    `json:"entries_deleted"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		log.Fatalf("Error decoding response: %v", err)
	}
	fmt.Printf("Session %s cleared (%d entries deleted)\n", result.SessionId, result.EntriesDeleted)
}

func runDocumentsCommand(cmd *cobra.Command, args []string) {
	resp, err := sessionHTTPClient.Get(config.Server.URL + "/v1/sessions/" + args[0] + "/documents")
	if err != nil {
		log.Fatalf("Error contacting catalog service: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		fmt.Println("No cached documents for session (expired or never populated)")
		return
	}
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Request failed with status %d: %s", resp.StatusCode, string(body))
	}
	fmt.Println(string(body))
}

func runHealthCommand(cmd *cobra.Command, args []string) {
	resp, err := sessionHTTPClient.Get(config.Server.URL + "/health")
	if err != nil {
		log.Fatalf("Catalog service unreachable: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Catalog service unhealthy: status %d", resp.StatusCode)
	}
	fmt.Println("Catalog service is up")
}
