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
	"github.com/spf13/cobra"

	"github.com/eslsoft/spacedrep/internal/app"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print a learner's review statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		learnerID, _ := cmd.Flags().GetString("learner")
		days, _ := cmd.Flags().GetInt("upcoming-days")
		trends, _ := cmd.Flags().GetBool("trends")
		return withContainer(func(c *app.Container) error {
			stats, err := c.Stats.GetStats(cmd.Context(), learnerID)
			if err != nil {
				return err
			}
			out := map[string]any{"stats": stats}
			if days > 0 {
				upcoming, err := c.Stats.UpcomingReviews(cmd.Context(), learnerID, days)
				if err != nil {
					return err
				}
				out["upcoming"] = upcoming
			}
			if trends {
				levels, err := c.Stats.PerformanceTrends(cmd.Context(), learnerID)
				if err != nil {
					return err
				}
				out["trends"] = levels
			}
			return printJSON(cmd, out)
		})
	},
}

var difficultyCmd = &cobra.Command{
	Use:   "difficulty <content-id>",
	Short: "Recommend a difficulty adjustment for a content item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(c *app.Container) error {
			adj, err := c.Stats.GetDifficultyAdjustment(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, adj)
		})
	},
}

func init() {
	rootCmd.AddCommand(statsCmd, difficultyCmd)
	statsCmd.Flags().String("learner", "", "learner id")
	statsCmd.Flags().Int("upcoming-days", 0, "also print due counts for the next N days (1-90)")
	statsCmd.Flags().Bool("trends", false, "also print performance by difficulty level")
	_ = statsCmd.MarkFlagRequired("learner")
}
