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
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/eslsoft/spacedrep/internal/app"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show a learner's prioritized review queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		learnerID, _ := cmd.Flags().GetString("learner")
		limit, _ := cmd.Flags().GetInt("limit")
		return withContainer(func(c *app.Container) error {
			queue, err := c.Queue.GetDueItems(cmd.Context(), learnerID, limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CONTENT\tTIER\tRECALL\tINTERVAL(h)\tNEXT REVIEW")
			for _, it := range queue.Items {
				fmt.Fprintf(w, "%s\t%s\t%.2f\t%.1f\t%s\n",
					it.ContentID, it.Tier, it.RecallProbability, it.CurrentInterval, it.NextReview.Local().Format("2006-01-02 15:04"))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			cmd.Printf("%d due, about %d min\n", queue.TotalDue, queue.EstimatedMinutes)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.Flags().String("learner", "", "learner id")
	queueCmd.Flags().Int("limit", 0, "maximum items (default from scheduler.default_queue_limit)")
	_ = queueCmd.MarkFlagRequired("learner")
}
