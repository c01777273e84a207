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
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/valpere/transpipe/internal/config"
)

var version = "0.1.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "transpipe",
	Short: "Supervised article translation pipeline",
	Long: `Orchestrates human-supervised translation of a scientific article catalog:
extracts source text, serves it to a translating agent in bounded chunks,
gates proposed translations quantitatively, and persists accepted work.

Use "transpipe serve" to start the agent-facing HTTP service.`,
	Version: version,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (defaults + TRANSPIPE_* env if omitted)")
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func buildLogger() (*zap.Logger, error) {
	return zap.NewProduction()
}
