// Copyright (C) 2025 Anchorline Data
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/anchorline/catalogiq/services/catalog/datatypes"
)

var askHTTPClient = &http.Client{Timeout: 5 * time.Minute}

func runAskCommand(cmd *cobra.Command, args []string) {
	question := strings.Join(args, " ")
	payload, err := json.Marshal(datatypes.AskRequest{Query: question, SessionId: sessionID})
	if err != nil {
		log.Fatalf("Error building request: %v", err)
	}

	if noStream {
		askOnce(payload)
		return
	}
	askStreaming(payload)
}

func askOnce(payload []byte) {
	resp, err := askHTTPClient.Post(config.Server.URL+"/v1/ask",
		"application/json", bytes.NewBuffer(payload))
	if err != nil {
		log.Fatalf("Error contacting catalog service: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Catalog service returned status %d", resp.StatusCode)
	}
	var answer datatypes.AskResponse
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		log.Fatalf("Error decoding response: %v", err)
	}
	printOutcome(answer)
}

func askStreaming(payload []byte) {
	resp, err := askHTTPClient.Post(config.Server.URL+"/v1/ask/stream",
		"application/json", bytes.NewBuffer(payload))
	if err != nil {
		log.Fatalf("Error contacting catalog service: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Catalog service returned status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event datatypes.StreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			continue
		}
		switch event.Type {
		case datatypes.EventProgress:
			fmt.Printf("  [%s] %s\n", event.Step, event.Message)
		case datatypes.EventDocuments:
			fmt.Printf("Retrieved %d documents\n", len(event.Documents))
		case datatypes.EventAnswer:
			printDecision(event.Decision)
			fmt.Println(event.Answer)
		case datatypes.EventReport:
			printDecision(event.Decision)
			fmt.Printf("Report ready: %s (%s)\n", event.Report.Filename, event.Report.URL)
		case datatypes.EventError:
			log.Fatalf("Stream error: %s", event.Error)
		case datatypes.EventDone:
			fmt.Printf("Session: %s\n", event.SessionId)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("Error reading stream: %v", err)
	}
}

func printOutcome(answer datatypes.AskResponse) {
	printDecision(&answer.Decision)
	if answer.Report != nil {
		fmt.Printf("Report ready: %s (%s)\n", answer.Report.Filename, answer.Report.URL)
	}
	if answer.Answer != "" {
		fmt.Println(answer.Answer)
	}
	fmt.Printf("Session: %s\n", answer.SessionId)
}

func printDecision(decision *datatypes.GateDecision) {
	if decision == nil {
		return
	}
	fmt.Printf("Relevance verdict: %s\n", decision.Verdict)
}
