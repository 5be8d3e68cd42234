package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// planCmd runs only the Planner stage against an utterance and prints the
// resulting ActionPlan, without validating or executing it. Useful for
// inspecting what a tool registry change does to planning decisions.
func planCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan [utterance]",
		Short: "Dry-run the planner against an utterance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, _, err := buildRegistry(nil)
			if err != nil {
				return err
			}
			pl := buildPlanner(reg)

			plan, err := pl.Plan(context.Background(), args[0], "")
			if err != nil {
				return fmt.Errorf("planning failed: %w", err)
			}

			out, err := json.MarshalIndent(plan, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}
