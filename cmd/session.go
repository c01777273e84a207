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

	"github.com/valpere/transpipe/internal/session"
	"github.com/valpere/transpipe/internal/store"
)

var sessionInterval int

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and steer the daily review session counter",
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show today's session counter",
	RunE: func(cmd *cobra.Command, args []string) error {
		gov, closeStore, err := openGovernor()
		if err != nil {
			return err
		}
		defer closeStore()

		st, err := gov.Status(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("Day:        %s\n", st.Day)
		fmt.Printf("Completed:  %d\n", st.SessionsCompleted)
		fmt.Printf("Interval:   %d\n", st.ReviewInterval)
		fmt.Printf("Pause due:  %v\n", st.PauseDue)
		return nil
	},
}

var sessionResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Zero today's counter, acknowledging a pause",
	RunE: func(cmd *cobra.Command, args []string) error {
		gov, closeStore, err := openGovernor()
		if err != nil {
			return err
		}
		defer closeStore()

		if err := gov.Reset(context.Background()); err != nil {
			return err
		}
		fmt.Println("Session counter reset.")
		return nil
	},
}

var sessionIntervalCmd = &cobra.Command{
	Use:   "interval",
	Short: "Set the review pause interval",
	RunE: func(cmd *cobra.Command, args []string) error {
		gov, closeStore, err := openGovernor()
		if err != nil {
			return err
		}
		defer closeStore()

		if err := gov.SetInterval(context.Background(), sessionInterval); err != nil {
			return err
		}
		fmt.Printf("Review interval set to %d.\n", sessionInterval)
		return nil
	},
}

func openGovernor() (*session.Governor, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	return session.NewGovernor(st, cfg.Session.DefaultInterval), func() { st.Close() }, nil
}

func init() {
	sessionIntervalCmd.Flags().IntVar(&sessionInterval, "set", session.DefaultInterval, "sessions between pauses (1-20)")
	sessionCmd.AddCommand(sessionStatusCmd, sessionResetCmd, sessionIntervalCmd)
	rootCmd.AddCommand(sessionCmd)
}
