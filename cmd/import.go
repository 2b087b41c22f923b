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
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eslsoft/spacedrep/internal/app"
	"github.com/eslsoft/spacedrep/internal/usecase/backup"
)

const (
	importInputKey  = "backup.import.input"
	importGzipKey   = "backup.import.gzip"
	importTablesKey = "backup.import.tables"
	importBatchKey  = "backup.import.batch_size"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Restore learner records and content difficulties from an NDJSON backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		inputPath := viper.GetString(importInputKey)
		gzipEnabled := viper.GetBool(importGzipKey)
		tableList := tablesFromConfig(importTablesKey)
		batchSize := viper.GetInt(importBatchKey)

		if inputPath == "" {
			return fmt.Errorf("pass --input with a backup file, or - for stdin")
		}
		if !gzipEnabled && inputPath != "-" && strings.HasSuffix(strings.ToLower(inputPath), ".gz") {
			gzipEnabled = true
		}

		return withContainer(func(c *app.Container) (err error) {
			service, err := backup.NewService(c.Stores.States, c.Stores.Contents, backup.WithBatchSize(batchSize))
			if err != nil {
				return err
			}

			var (
				reader  = cmd.InOrStdin()
				closers []func() error
			)
			if inputPath != "-" {
				file, openErr := os.Open(filepath.Clean(inputPath))
				if openErr != nil {
					return fmt.Errorf("open backup file: %w", openErr)
				}
				reader = file
				closers = append(closers, file.Close)
			}
			if gzipEnabled {
				gzr, gzErr := gzip.NewReader(reader)
				if gzErr != nil {
					for _, closer := range closers {
						_ = closer()
					}
					return fmt.Errorf("open gzip stream: %w", gzErr)
				}
				reader = gzr
				closers = append([]func() error{gzr.Close}, closers...)
			}
			defer func() {
				for _, closer := range closers {
					if cerr := closer(); cerr != nil && err == nil {
						err = cerr
					}
				}
			}()

			var importOpts []backup.ImportOption
			if len(tableList) > 0 {
				importOpts = append(importOpts, backup.WithImportTables(tableList))
			}
			summary, err := service.Import(cmd.Context(), reader, importOpts...)
			if err != nil {
				return fmt.Errorf("import backup: %w", err)
			}

			tables := make([]string, 0, len(summary))
			for table := range summary {
				tables = append(tables, table)
			}
			sort.Strings(tables)
			for _, table := range tables {
				cmd.Printf("imported %s: %d rows\n", table, summary[table])
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringP("input", "i", "", "backup file path, - for stdin")
	importCmd.Flags().Bool("gzip", false, "input is gzip compressed")
	importCmd.Flags().StringSlice("tables", nil, "only import these tables")
	importCmd.Flags().Int("batch-size", 0, "rows buffered per write batch (default 512)")

	bindFlagToViper(importInputKey, importCmd.Flags().Lookup("input"))
	bindFlagToViper(importGzipKey, importCmd.Flags().Lookup("gzip"))
	bindFlagToViper(importTablesKey, importCmd.Flags().Lookup("tables"))
	bindFlagToViper(importBatchKey, importCmd.Flags().Lookup("batch-size"))
}
