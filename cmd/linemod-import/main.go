package main

import (
	"errors"
	"flag"
	"log"

	"jordanella.com/linemod/internal/config"
	"jordanella.com/linemod/internal/database"
	"jordanella.com/linemod/pkg/templates"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to an ini settings file (optional)")
	dbPath := flag.String("db", "", "Path to the model database (default from config)")
	objectsDir := flag.String("objects", "", "Directory with object manifests (default from config)")
	replace := flag.Bool("replace", false, "Replace objects that are already stored")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadFromINI(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}
	if *objectsDir != "" {
		cfg.TemplatesDir = *objectsDir
	}
	logger := cfg.Logger("Import")

	log.Printf("Importing manifests from %s into %s", cfg.TemplatesDir, cfg.DatabasePath)

	db, err := database.OpenAndMigrate(cfg.DatabasePath, logger.Child("db"))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	registry := templates.NewObjectRegistry(cfg.TemplatesDir, logger.Child("manifests"))
	if err := registry.LoadFromDirectory(cfg.TemplatesDir); err != nil {
		log.Fatalf("Failed to load manifests: %v", err)
	}

	imported, skipped := 0, 0
	for _, id := range registry.List() {
		def, _ := registry.Get(id)
		set, err := registry.ObjectSet(id)
		if err != nil {
			log.Fatalf("Failed to read %s: %v", id, err)
		}

		if *replace {
			if err := db.DeleteObject(id); err != nil && !errors.Is(err, database.ErrObjectNotFound) {
				log.Fatalf("Failed to replace %s: %v", id, err)
			}
		}

		doc, err := db.SaveObject(set, def.Description)
		if errors.Is(err, database.ErrDuplicateObject) {
			log.Printf("  - %s already stored, skipping (use -replace to overwrite)", id)
			skipped++
			continue
		}
		if err != nil {
			log.Fatalf("Failed to save %s: %v", id, err)
		}
		log.Printf("  ✓ %s: %d templates (document %s)", id, doc.Templates, doc.DocumentID)
		imported++
	}

	// Drop decoded images before printing the summary
	registry.UnloadAll()

	stats, err := db.GetStats()
	if err != nil {
		log.Fatalf("Failed to read database stats: %v", err)
	}
	log.Printf("✓ Import complete: %d imported, %d skipped, %d objects / %d templates stored",
		imported, skipped, stats["objects"], stats["templates"])
}
