// Copyright (C) 2025 Anchorline Data
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"google.golang.org/grpc/credentials/insecure"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"

	"github.com/anchorline/catalogiq/pkg/logging"
	"github.com/anchorline/catalogiq/services/catalog/cache"
	"github.com/anchorline/catalogiq/services/catalog/datatypes"
	"github.com/anchorline/catalogiq/services/catalog/embed"
	"github.com/anchorline/catalogiq/services/catalog/observability"
	"github.com/anchorline/catalogiq/services/catalog/pipeline"
	"github.com/anchorline/catalogiq/services/catalog/report"
	"github.com/anchorline/catalogiq/services/catalog/routes"
	"github.com/anchorline/catalogiq/services/llm"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "catalogiq-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("catalog-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// envDuration reads a duration env var, logging and defaulting on
// absence or parse failure.
func envDuration(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("Invalid duration in environment, using default",
			"var", name, "value", raw, "default", fallback)
		return fallback
	}
	return d
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("Invalid integer in environment, using default",
			"var", name, "value", raw, "default", fallback)
		return fallback
	}
	return n
}

func newWeaviateClient() (*weaviate.Client, error) {
	rawURL := strings.Trim(os.Getenv("WEAVIATE_SERVICE_URL"), "\"' ")
	parsedURL, err := url.Parse(rawURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		log.Fatalf("WEAVIATE_SERVICE_URL is missing or invalid: %q", rawURL)
	}
	return weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
}

func newLLMClient() (llm.LLMClient, error) {
	switch backend := os.Getenv("LLM_BACKEND_TYPE"); backend {
	case "openai":
		slog.Info("Using OpenAI LLM backend")
		return llm.NewOpenAIClient()
	case "ollama":
		slog.Info("Using Ollama LLM backend")
		return llm.NewOllamaClient()
	default:
		slog.Warn("LLM_BACKEND_TYPE not set or invalid, defaulting to ollama", "value", backend)
		return llm.NewOllamaClient()
	}
}

func main() {
	port := os.Getenv("CATALOG_PORT")
	if port == "" {
		port = "12310"
	}

	logger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		JSON:    true,
		Service: "catalog",
		LogDir:  os.Getenv("CATALOG_LOG_DIR"),
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	metrics := observability.InitMetrics()

	ctx := context.Background()

	// --- Session cache ---
	cachePath := os.Getenv("SESSION_CACHE_PATH")
	if cachePath == "" {
		cachePath = "/var/lib/catalogiq/sessions"
		slog.Warn("SESSION_CACHE_PATH not set, using default", "path", cachePath)
	}
	sessions, err := cache.NewBadgerCache(cache.Config{Path: cachePath})
	if err != nil {
		log.Fatalf("Failed to open session cache: %v", err)
	}
	defer sessions.Close()
	cacheTTL := envDuration("SESSION_CACHE_TTL", 30*time.Minute)

	// --- LLM client ---
	llmClient, err := newLLMClient()
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}

	// --- Vector source ---
	weaviateClient, err := newWeaviateClient()
	if err != nil {
		log.Fatalf("Failed to create Weaviate client: %v", err)
	}
	index, err := pipeline.NewWeaviateIndex(ctx, weaviateClient)
	if err != nil {
		log.Fatalf("Failed to prepare artifact index: %v", err)
	}
	embedder, err := embed.NewClient()
	if err != nil {
		log.Fatalf("Failed to initialize embedding client: %v", err)
	}
	vector := pipeline.NewVectorRetriever(embedder, index, llmClient,
		envInt("VECTOR_TOP_K", 5))

	// --- Graph source ---
	neo4jURI := os.Getenv("NEO4J_URI")
	if neo4jURI == "" {
		log.Fatalf("NEO4J_URI environment variable not set")
	}
	edges, err := pipeline.NewNeo4jEdgeStore(ctx, neo4jURI,
		os.Getenv("NEO4J_USER"), os.Getenv("NEO4J_PASSWORD"))
	if err != nil {
		log.Fatalf("Failed to connect to lineage graph: %v", err)
	}
	defer edges.Close(ctx)
	graph := pipeline.NewGraphRetriever(edges)

	// --- Relational source ---
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		log.Fatalf("DATABASE_DSN environment variable not set")
	}
	agentModelName := os.Getenv("SQL_AGENT_MODEL")
	if agentModelName == "" {
		agentModelName = "gpt-4o-mini"
		slog.Warn("SQL_AGENT_MODEL not set, using default", "model", agentModelName)
	}
	agentLLM, err := lcopenai.New(lcopenai.WithModel(agentModelName))
	if err != nil {
		log.Fatalf("Failed to initialize SQL agent LLM: %v", err)
	}
	var searchable []string
	if raw := os.Getenv("SEARCHABLE_TABLES"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				searchable = append(searchable, t)
			}
		}
	}
	agent, err := pipeline.NewLangchainSQLAgent(agentLLM, agentModelName, dsn,
		searchable, envInt("SQL_AGENT_TOP_K", 5))
	if err != nil {
		log.Fatalf("Failed to initialize SQL agent: %v", err)
	}
	relational := pipeline.NewRelationalRetriever(agent, sessions,
		envInt("RELATIONAL_MAX_RETRIES", 3),
		envDuration("RELATIONAL_RETRY_DELAY", 2*time.Second),
		envDuration("RELATIONAL_CACHE_TTL", 30*time.Minute))

	// --- Report generator (optional) ---
	var reports report.Generator
	if os.Getenv("REPORT_SERVICE_URL") != "" {
		reports, err = report.NewClient()
		if err != nil {
			log.Fatalf("Failed to initialize report client: %v", err)
		}
	} else {
		slog.Warn("REPORT_SERVICE_URL not set, yes verdicts fall back to answer synthesis")
	}

	// --- Pipeline wiring ---
	coordinator := pipeline.NewCoordinator(map[datatypes.Source]pipeline.Retriever{
		datatypes.SourceVector:     vector,
		datatypes.SourceGraph:      graph,
		datatypes.SourceRelational: relational,
	}, sessions, cacheTTL, metrics)
	svc := pipeline.NewAskService(
		pipeline.NewIntentExtractor(llmClient),
		coordinator,
		pipeline.NewResultGate(llmClient),
		llmClient,
		reports,
		sessions,
		metrics)

	router := gin.Default()
	router.Use(otelgin.Middleware("catalog-service"))
	routes.SetupRoutes(router, svc, sessions)

	log.Println("Starting the catalog server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
