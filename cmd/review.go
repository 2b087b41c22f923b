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
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eslsoft/spacedrep/internal/app"
	"github.com/eslsoft/spacedrep/internal/entity"
)

var initContentCmd = &cobra.Command{
	Use:   "init-content <content-id>...",
	Short: "Create review records for a learner; existing records are left untouched",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		learnerID, _ := cmd.Flags().GetString("learner")
		return withContainer(func(c *app.Container) error {
			created, err := c.Review.InitializeContent(cmd.Context(), learnerID, args)
			if err != nil {
				return err
			}
			cmd.Printf("created %d of %d records\n", created, len(args))
			return nil
		})
	},
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Record a review outcome (or a batch from --file) and print the rescheduled records",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if file, _ := flags.GetString("file"); file != "" {
			learnerID, _ := flags.GetString("learner")
			return runBatchReview(cmd, learnerID, file)
		}
		event := entity.ReviewEvent{}
		event.LearnerID, _ = flags.GetString("learner")
		event.ContentID, _ = flags.GetString("content")
		event.Quality, _ = flags.GetInt("quality")
		event.ExerciseType, _ = flags.GetString("exercise-type")
		if flags.Changed("response-time") {
			rt, _ := flags.GetFloat64("response-time")
			event.ResponseTimeSeconds = &rt
		}
		return withContainer(func(c *app.Container) error {
			result, err := c.Review.RecordReview(cmd.Context(), event)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"state":       result.State,
				"half_life":   result.HalfLife,
				"confidence":  result.Confidence,
				"type_weight": result.TypeWeight,
			})
		})
	},
}

func runBatchReview(cmd *cobra.Command, learnerID, file string) error {
	raw, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read reviews: %w", err)
	}
	var events []entity.ReviewEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		return fmt.Errorf("decode reviews: %w", err)
	}
	return withContainer(func(c *app.Container) error {
		results, err := c.Review.BatchReview(cmd.Context(), learnerID, events)
		if err != nil {
			return err
		}
		out := make([]map[string]any, 0, len(results))
		failed := 0
		for _, r := range results {
			item := map[string]any{"content_id": r.ContentID}
			if r.Err != nil {
				failed++
				item["error"] = r.Err.Error()
			} else {
				item["state"] = r.Result.State
				item["half_life"] = r.Result.HalfLife
			}
			out = append(out, item)
		}
		if err := printJSON(cmd, out); err != nil {
			return err
		}
		if failed > 0 {
			cmd.PrintErrf("%d of %d reviews failed\n", failed, len(results))
		}
		return nil
	})
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore a record's default schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		learnerID, _ := cmd.Flags().GetString("learner")
		contentID, _ := cmd.Flags().GetString("content")
		return withContainer(func(c *app.Container) error {
			state, err := c.Review.ResetItem(cmd.Context(), learnerID, contentID)
			if err != nil {
				return err
			}
			return printJSON(cmd, state)
		})
	},
}

func init() {
	rootCmd.AddCommand(initContentCmd, reviewCmd, resetCmd)

	initContentCmd.Flags().String("learner", "", "learner id")
	_ = initContentCmd.MarkFlagRequired("learner")

	reviewCmd.Flags().String("learner", "", "learner id")
	reviewCmd.Flags().String("content", "", "content id")
	reviewCmd.Flags().Int("quality", 0, "response quality 1-5")
	reviewCmd.Flags().Float64("response-time", 0, "response time in seconds")
	reviewCmd.Flags().String("exercise-type", "", "exercise type (flashcard, audio, conversation, visual)")
	reviewCmd.Flags().String("file", "", "JSON array of reviews to record as one batch for --learner")
	_ = reviewCmd.MarkFlagRequired("learner")
	reviewCmd.MarkFlagsMutuallyExclusive("file", "content")

	resetCmd.Flags().String("learner", "", "learner id")
	resetCmd.Flags().String("content", "", "content id")
	_ = resetCmd.MarkFlagRequired("learner")
	_ = resetCmd.MarkFlagRequired("content")
}
