package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// registryCmd lists every built-in tool and its risk tier / side-effect
// class, the same information the Validation Wall consults for policy and
// risk-gating decisions.
func registryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect the tool registry",
	}
	cmd.AddCommand(registryListCmd())
	return cmd
}

func registryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, _, err := buildRegistry(nil)
			if err != nil {
				return err
			}
			specs := reg.List(nil)
			fmt.Printf("%-20s %-10s %-20s %s\n", "NAME", "RISK", "SIDE EFFECT", "POST-CONDITION")
			for _, spec := range specs {
				fmt.Printf("%-20s %-10s %-20s %s\n", spec.Name, spec.RiskTier, spec.SideEffect, spec.PostConditionID)
			}
			return nil
		},
	}
}
