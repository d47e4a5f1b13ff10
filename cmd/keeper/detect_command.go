package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

func newDetectCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Run a detection pass over the scanner manifest",
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

			interactive := isatty.IsTerminal(os.Stderr.Fd())
			pass := eng.Detect(cmd.Context(), assets)
			for event := range pass.Events() {
				if !interactive || event.Total == 0 {
					continue
				}
				fmt.Fprintf(os.Stderr, "\r%-12s %d/%d", event.Stage, event.Completed, event.Total)
			}
			if interactive {
				fmt.Fprintln(os.Stderr)
			}

			result, err := pass.Wait()
			if result == nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(),
				"assets=%d comparisons=%d groups=%d signature_failures=%d\n",
				len(assets), result.Comparisons, len(result.Groups), result.SignatureFailures)
			if len(result.Groups) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), renderGroupTable(result.Groups))
			}
			if err != nil {
				return err
			}
			return eng.SaveGroups(cmd.Context(), result.Groups)
		},
	}
	return cmd
}
