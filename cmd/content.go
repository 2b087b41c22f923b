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
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/eslsoft/spacedrep/internal/app"
	"github.com/eslsoft/spacedrep/internal/entity"
)

var contentCmd = &cobra.Command{
	Use:   "content",
	Short: "Manage the content catalogue",
}

var contentSetCmd = &cobra.Command{
	Use:   "set <content-id> <difficulty>",
	Short: "Create or update a content item's difficulty (1-10)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := entity.ValidateContentID(args[0])
		if err != nil {
			return err
		}
		difficulty, err := strconv.ParseFloat(args[1], 64)
		if err != nil || difficulty < entity.MinDifficulty || difficulty > entity.MaxDifficulty {
			return entity.NewValidationError("difficulty", entity.ErrInvalidDifficulty)
		}
		return withContainer(func(c *app.Container) error {
			if err := c.Stores.Contents.Save(cmd.Context(), &entity.ContentItem{ID: id, Difficulty: difficulty}); err != nil {
				return err
			}
			cmd.Printf("content %s difficulty set to %g\n", id, difficulty)
			return nil
		})
	},
}

var contentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List content items and their difficulties",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(c *app.Container) error {
			items, err := c.Stores.Contents.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, item := range items {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%g\n", item.ID, item.Difficulty)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(contentCmd)
	contentCmd.AddCommand(contentSetCmd, contentListCmd)
}
