package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"keeper/internal/ledger"
)

func newUndoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "undo <transaction-id>",
		Short: "Undo a committed merge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, err := ctx.openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			tx, err := eng.Undo(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "transaction %s undone, %d files restored\n",
				tx.ID, len(tx.Actions))
			return nil
		},
	}
}

func newTransactionsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"tx"},
		Short:   "List merge transaction history",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, err := ctx.openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			txs, err := eng.Transactions(cmd.Context())
			if err != nil {
				return err
			}
			if len(txs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no transactions")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTransactionTable(txs))
			return nil
		},
	}
}

func renderTransactionTable(txs []*ledger.Transaction) string {
	rows := make([][]string, 0, len(txs))
	for _, tx := range txs {
		undoUntil := "-"
		if tx.State == ledger.TxCommitted && !tx.UndoDeadline.IsZero() {
			if time.Now().Before(tx.UndoDeadline) {
				undoUntil = humanize.Time(tx.UndoDeadline)
			} else {
				undoUntil = "expired"
			}
		}
		rows = append(rows, []string{
			tx.ID,
			tx.GroupID,
			string(tx.State),
			humanize.Time(tx.CreatedAt),
			fmt.Sprintf("%d", len(tx.Actions)),
			undoUntil,
		})
	}
	return renderTable(
		[]string{"TRANSACTION", "GROUP", "STATE", "CREATED", "ACTIONS", "UNDO"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}
