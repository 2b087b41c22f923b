/*
Copyright © 2025 Ambor <saltbo@foxmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eslsoft/spacedrep/internal/adapter/repository"
	"github.com/eslsoft/spacedrep/internal/entity"
	"github.com/eslsoft/spacedrep/internal/infrastructure/config"
	"github.com/eslsoft/spacedrep/internal/infrastructure/database"
)

// dbInitCmd creates the schema and optionally loads the content catalogue from CSV.
var dbInitCmd = &cobra.Command{
	Use:   "db-init",
	Short: "Create database tables and optionally seed content difficulties",
	Long: "Runs the idempotent schema migration for the configured driver. With --content-file, " +
		"rows of the form id,difficulty are upserted into content_items. go-sqlite3 requires a CGO_ENABLED=1 build.",
	RunE: func(cmd *cobra.Command, args []string) error {
		contentFile, _ := cmd.Flags().GetString("content-file")

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		driver, err := cfg.DatabaseDriver()
		if err != nil {
			return err
		}
		db, cleanup, err := database.OpenSQL(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := database.Migrate(cmd.Context(), db, driver); err != nil {
			return err
		}
		cmd.Printf("schema ready (%s)\n", driver)
		if contentFile == "" {
			return nil
		}

		f, err := os.Open(filepath.Clean(contentFile))
		if err != nil {
			return fmt.Errorf("open content file: %w", err)
		}
		defer f.Close()

		items, err := parseContentCSV(f)
		if err != nil {
			return err
		}
		repo := repository.NewSQLContentRepository(db, driver)
		for _, item := range items {
			if err := repo.Save(cmd.Context(), item); err != nil {
				return fmt.Errorf("save %s: %w", item.ID, err)
			}
		}
		cmd.Printf("loaded %d content items\n", len(items))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbInitCmd)
	dbInitCmd.Flags().String("content-file", "", "CSV file with id,difficulty rows to load into content_items")
}

// parseContentCSV reads id,difficulty rows. A header row and blank or '#'
// comment lines are skipped; a missing difficulty means the default.
func parseContentCSV(r io.Reader) ([]*entity.ContentItem, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.Comment = '#'
	reader.TrimLeadingSpace = true

	var (
		items []*entity.ContentItem
		line  int
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return items, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read content csv: %w", err)
		}
		line++
		if len(record) == 0 || (len(record) == 1 && strings.TrimSpace(record[0]) == "") {
			continue
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "id") {
			continue
		}

		id, err := entity.ValidateContentID(record[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		difficulty := entity.DefaultDifficulty
		if len(record) > 1 && strings.TrimSpace(record[1]) != "" {
			difficulty, err = strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: difficulty %q: %w", line, record[1], err)
			}
		}
		if difficulty < entity.MinDifficulty || difficulty > entity.MaxDifficulty {
			return nil, fmt.Errorf("line %d: %w", line, entity.NewValidationError("difficulty", entity.ErrInvalidDifficulty))
		}
		items = append(items, &entity.ContentItem{ID: id, Difficulty: difficulty})
	}
}
