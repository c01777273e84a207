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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/valpere/transpipe/internal/pipeline"
	"github.com/valpere/transpipe/internal/server"
	"github.com/valpere/transpipe/internal/store"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agent-facing HTTP service",
	Long: `Starts the HTTP service the translating agent talks to: article
selection, chunk delivery, validation, saving, skipping, and session
control. Also runs the hourly validation-token cleanup.`,
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

		pipe, err := pipeline.New(cfg, st, log)
		if err != nil {
			return fmt.Errorf("failed to build pipeline: %w", err)
		}

		srv, err := server.New(pipe, log)
		if err != nil {
			return err
		}

		listen := cfg.Server.Listen
		if serveListen != "" {
			listen = serveListen
		}
		return srv.Run(listen)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
