package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"keeper/internal/detect"
)

func newGroupsCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string

	cmd := &cobra.Command{
		Use:   "groups",
		Short: "List detected duplicate groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, err := ctx.openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			status, err := parseStatus(statusFlag)
			if err != nil {
				return err
			}
			groups, err := eng.Groups(cmd.Context(), status)
			if err != nil {
				return err
			}
			if len(groups) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no duplicate groups")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderGroupTable(groups))
			return nil
		},
	}
	cmd.Flags().StringVar(&statusFlag, "status", "", "Filter by status (open, resolved, ignored)")

	cmd.AddCommand(newGroupsIgnoreCommand(ctx))
	return cmd
}

func newGroupsIgnoreCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ignore <group-id>",
		Short: "Mark a group as not duplicates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, err := ctx.openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			if err := eng.IgnoreGroup(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "group %s ignored\n", args[0])
			return nil
		},
	}
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <group-id>",
		Short: "Show one group with its rationale",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, err := ctx.openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			group, err := eng.Group(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Group:      %s\n", group.ID)
			fmt.Fprintf(out, "Status:     %s\n", group.Status)
			fmt.Fprintf(out, "Confidence: %.2f%s\n", group.Confidence, incompleteSuffix(group))
			fmt.Fprintf(out, "Keeper:     %s (suggested)\n", group.SuggestedKeeper)
			fmt.Fprintf(out, "Members:    %s\n", strings.Join(group.Members, ", "))
			if len(group.Rationale) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderRationaleTable(group.Rationale))
			}
			return nil
		},
	}
}

func parseStatus(value string) (detect.Status, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return "", nil
	case "open":
		return detect.StatusOpen, nil
	case "resolved":
		return detect.StatusResolved, nil
	case "ignored":
		return detect.StatusIgnored, nil
	default:
		return "", fmt.Errorf("unknown status %q (want open, resolved, or ignored)", value)
	}
}

func incompleteSuffix(group detect.Group) string {
	if group.Incomplete {
		return " (needs review)"
	}
	return ""
}

func renderGroupTable(groups []detect.Group) string {
	rows := make([][]string, 0, len(groups))
	for _, group := range groups {
		rows = append(rows, []string{
			group.ID,
			fmt.Sprintf("%d", len(group.Members)),
			fmt.Sprintf("%.2f", group.Confidence),
			string(group.Status) + incompleteSuffix(group),
			group.SuggestedKeeper,
		})
	}
	return renderTable(
		[]string{"GROUP", "MEMBERS", "CONFIDENCE", "STATUS", "KEEPER"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	)
}

func renderRationaleTable(signals []detect.Signal) string {
	rows := make([][]string, 0, len(signals))
	for _, signal := range signals {
		weight := signal.Contribution
		if signal.Penalty {
			weight = -weight
		}
		rows = append(rows, []string{
			signal.Name,
			fmt.Sprintf("%.3f", signal.Value),
			fmt.Sprintf("%.3f", signal.Threshold),
			fmt.Sprintf("%+.3f", weight),
			string(signal.Verdict),
		})
	}
	return renderTable(
		[]string{"SIGNAL", "VALUE", "THRESHOLD", "WEIGHT", "VERDICT"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft},
	)
}
