package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/petvoyage/regsync/internal/model"
)

var auditDomain string

var auditCmd = &cobra.Command{
	Use:   "audit <natural-key>",
	Short: "Show the latest audit record for a natural key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		key := model.CanonicalKey(model.Domain(auditDomain), args[0])
		rec, err := st.FindLatestAudit(ctx, key)
		if err != nil {
			return eris.Wrap(err, "find audit")
		}
		if rec == nil {
			fmt.Fprintf(os.Stderr, "No audit records for %s.\n", key)
			return nil
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditDomain, "domain", "country", "regulation domain: country or airline")
	rootCmd.AddCommand(auditCmd)
}
