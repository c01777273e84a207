/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/transpipe/internal/store"
)

var progressListStatus string

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show catalog progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := store.New(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()

		ctx := context.Background()
		counts, err := st.StatusCounts(ctx)
		if err != nil {
			return err
		}

		total := 0
		for _, n := range counts {
			total += n
		}
		fmt.Printf("Articles: %d total\n", total)
		for _, status := range []string{store.StatusPending, store.StatusInProgress, store.StatusTranslated, store.StatusSkipped} {
			fmt.Printf("  %-12s %d\n", status, counts[status])
		}

		if progressListStatus == "" {
			return nil
		}
		articles, err := st.ListArticles(ctx, progressListStatus)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "\nID\tSTATUS\tTITLE")
		for _, a := range articles {
			title := a.Title
			if len(title) > 60 {
				title = title[:57] + "..."
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", a.ID, a.Status, title)
		}
		return w.Flush()
	},
}

func init() {
	progressCmd.Flags().StringVar(&progressListStatus, "list", "", "also list articles with this status")
	rootCmd.AddCommand(progressCmd)
}
