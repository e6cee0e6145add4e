package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/quantlake/edgarsync/internal/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check warehouse integrity",
	Long: `Run consistency checks over the live tables: required tables exist,
OHLC rows are internally consistent, facts join back to filings, and the
orphan quarantine is surfaced. Error-severity findings fail the command.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := openWarehouse(cmd)
		if err != nil {
			return err
		}
		defer w.Close()

		report, err := validate.New(w).Run(cmd.Context())
		if err != nil {
			return err
		}

		for _, f := range report.Findings {
			fmt.Printf("[%s] %s: %s\n", f.Severity, f.Check, f.Message)
		}
		if report.Failed() {
			return eris.New("validation failed")
		}
		fmt.Println("validation passed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
