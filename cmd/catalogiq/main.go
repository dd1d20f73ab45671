// Copyright (C) 2025 Anchorline Data
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the CLI configuration, loaded from config.yaml when
// present. Every field has an environment/default fallback so the CLI
// works without a config file.
type Config struct {
	Server struct {
		URL string `yaml:"url"`
	} `yaml:"server"`
}

var config Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

// loadConfig resolves the server URL from config.yaml, then the
// environment, then the default local port.
func loadConfig() {
	if yamlFile, err := os.ReadFile("config.yaml"); err == nil {
		if err := yaml.Unmarshal(yamlFile, &config); err != nil {
			log.Fatalf("Error parsing config.yaml: %v", err)
		}
	}
	if config.Server.URL == "" {
		config.Server.URL = os.Getenv("CATALOGIQ_SERVER_URL")
	}
	if config.Server.URL == "" {
		config.Server.URL = "http://localhost:12310"
	}
}
