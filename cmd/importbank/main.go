// Command importbank builds a subject question bank from an .xlsx export.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/ibpractice/backend/internal/config"
	"github.com/ibpractice/backend/internal/database"
	"github.com/ibpractice/backend/internal/importer"
	"github.com/ibpractice/backend/internal/logger"
)

func main() {
	xlsx := flag.String("xlsx", "", "spreadsheet to import (required)")
	sheet := flag.String("sheet", "", "sheet name; defaults to the first sheet")
	subject := flag.String("subject", "", "subject key whose configured bank receives the rows")
	bank := flag.String("bank", "", "bank file to write; overrides -subject")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if *xlsx == "" {
		flag.Usage()
		os.Exit(2)
	}

	path := *bank
	if path == "" {
		for _, s := range cfg.Subjects {
			if s.Key == *subject {
				path = s.Bank
			}
		}
	}
	if path == "" {
		log.Fatal("no bank to write to", "subject", *subject)
	}

	db, err := database.OpenBankWritable(path)
	if err != nil {
		log.Fatal("failed to open bank", "error", err)
	}
	defer db.Close()

	result, err := importer.Import(context.Background(), importer.ImportConfig{FilePath: *xlsx, SheetName: *sheet}, db)
	if err != nil {
		log.Fatal("import failed", "error", err)
	}

	for _, e := range result.Errors {
		log.Warn("row skipped", "detail", e)
	}
	log.Info("import finished",
		"bank", path,
		"processed", result.TotalProcessed,
		"imported", result.Imported,
		"skipped", result.Skipped,
	)
}
