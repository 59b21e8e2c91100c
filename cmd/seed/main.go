package main

import (
	"context"
	"flag"
	"log"

	"n8n-mcp/backend/internal/config"
	"n8n-mcp/backend/internal/logging"
	"n8n-mcp/backend/internal/services"
	"n8n-mcp/backend/internal/templates"
)

func main() {
	ctx := context.Background()

	configFile := flag.String("config", "", "Path to config file")
	tag := flag.String("tag", "seeded", "Tag applied to every seeded workflow")
	flag.Parse()

	// Load config
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	engine := services.NewHTTPEngineClient(cfg.N8N.BaseURL, cfg.N8N.APIKey,
		services.WithDefaultTimeout(cfg.N8N.Timeout),
		services.WithLogger(logger),
	)
	svc := services.NewToolService(engine, services.WithServiceLogger(logger))

	// 1. Check for existing workflows to prevent duplicates
	existing, err := engine.ListWorkflows(ctx)
	if err != nil {
		log.Fatalf("Failed to list existing workflows: %v", err)
	}
	existingMap := make(map[string]bool)
	for _, w := range existing {
		existingMap[w.Name] = true
	}

	// 2. Create one workflow per library template
	created := 0
	for _, info := range templates.Catalog() {
		if existingMap[info.Title] {
			logger.Info("Skipping existing workflow", "name", info.Title)
			continue
		}

		resp, err := svc.CreateWorkflow(ctx, services.CreateWorkflowRequest{
			Name:        info.Title,
			Description: info.Description,
			Template:    info.Name,
			Tags:        []string{*tag},
		})
		if err != nil {
			log.Printf("Failed to create workflow %s: %v", info.Title, err)
			continue
		}
		created++
		logger.Info("Seeded workflow", "name", info.Title, "id", resp.WorkflowID)
	}
	logger.Info("Seeding complete!", "created", created)
}
