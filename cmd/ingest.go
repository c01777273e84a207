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

	"github.com/spf13/cobra"

	"github.com/valpere/transpipe/internal/ingest"
	"github.com/valpere/transpipe/internal/store"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Register PDFs from the intake directory",
	Long: `Scans the intake directory for PDFs, registers each as a pending
article (deriving the id from the filename and the title and DOI from
the first page), caches the document for extraction, and moves the
original to the processed directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := buildLogger()
		if err != nil {
			return err
		}
		defer log.Sync()

		st, err := store.New(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()

		ing := ingest.New(st, cfg.Dirs.Intake, cfg.Dirs.Cache, cfg.Dirs.Processed, log)
		report, err := ing.Run(context.Background())
		if err != nil {
			return err
		}

		fmt.Printf("Ingested %d article(s).\n", len(report.Ingested))
		for _, name := range report.Ingested {
			fmt.Printf("  + %s\n", name)
		}
		if len(report.Skipped) > 0 {
			fmt.Printf("Skipped %d file(s), left in intake:\n", len(report.Skipped))
			for _, name := range report.Skipped {
				fmt.Printf("  ! %s\n", name)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
