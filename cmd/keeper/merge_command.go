package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"keeper/internal/plan"
)

func newMergeCommand(ctx *commandContext) *cobra.Command {
	var keeperFlag string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "merge <group-id>",
		Short: "Merge a duplicate group onto its keeper",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			assets, err := ctx.loadManifest()
			if err != nil {
				return err
			}
			eng, _, err := ctx.openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			pln, err := eng.PlanGroup(cmd.Context(), args[0], assets, keeperFlag)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printPlan(out, pln)
			if dryRun {
				return nil
			}

			tx, err := eng.Merge(cmd.Context(), pln, assets)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "merged: transaction %s committed, undo until %s\n",
				tx.ID, tx.UndoDeadline.Local().Format("2006-01-02 15:04"))
			return nil
		},
	}
	cmd.Flags().StringVar(&keeperFlag, "keeper", "", "Override the keeper asset ID")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the plan without executing it")
	return cmd
}

func printPlan(out io.Writer, pln plan.Plan) {
	fmt.Fprintf(out, "Keeper:      %s\n", pln.KeeperID)
	fmt.Fprintf(out, "Relocations: %d\n", len(pln.Relocate))
	fmt.Fprintf(out, "Space freed: %s\n", humanize.IBytes(uint64(pln.SpaceFreed)))
	for _, change := range pln.FieldChanges {
		fmt.Fprintf(out, "  %s <- %v (from %s)\n", change.Field, change.NewValue, change.SourceAssetID)
	}
	for _, rel := range pln.Relocate {
		fmt.Fprintf(out, "  move %s (%s)\n", rel.SourcePath, humanize.IBytes(uint64(rel.FileSize)))
	}
}
