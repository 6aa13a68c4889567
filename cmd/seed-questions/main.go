package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/stemsi/exstem-prep/internal/config"
	"github.com/stemsi/exstem-prep/internal/database"
	"github.com/stemsi/exstem-prep/internal/logger"
	"github.com/stemsi/exstem-prep/internal/model"
	"github.com/stemsi/exstem-prep/internal/repository"
	"github.com/stemsi/exstem-prep/internal/validator"
)

func main() {
	var path string
	flag.StringVar(&path, "file", "questions.json", "Path to a JSON array of questions")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	raw, err := os.ReadFile(path)
	if err != nil {
		log.Fatal().Err(err).Str("file", path).Msg("Failed to read question file")
	}

	var records []model.SeedQuestion
	if err := json.Unmarshal(raw, &records); err != nil {
		log.Fatal().Err(err).Msg("Question file is not a JSON array of questions")
	}

	fmt.Printf("=== Validating %d questions ===\n", len(records))

	v := validator.New()
	valid := make([]model.SeedQuestion, 0, len(records))
	for i, q := range records {
		if err := v.Struct(q); err != nil {
			fmt.Printf("Skipping question #%d: %v\n", i+1, validator.TranslateErrors(err))
			continue
		}
		if !hasOption(q) {
			fmt.Printf("Skipping question #%d: correct_option_id %q is not one of its options\n", i+1, q.CorrectOptionID)
			continue
		}
		q.ExamType = strings.ToUpper(q.ExamType)
		valid = append(valid, q)
	}

	if len(valid) == 0 {
		log.Fatal().Msg("No valid questions to insert")
	}

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	n, err := repository.NewQuestionRepository(pool).BulkInsert(ctx, valid)
	if err != nil {
		log.Fatal().Err(err).Msg("Bulk insert failed")
	}

	fmt.Printf("\nSeed completed! Inserted %d/%d questions.\n", n, len(records))
}

func hasOption(q model.SeedQuestion) bool {
	for _, o := range q.Options {
		if o.ID == q.CorrectOptionID {
			return true
		}
	}
	return false
}
