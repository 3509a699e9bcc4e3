package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/petvoyage/regsync/internal/model"
)

var getDomain string

var getCmd = &cobra.Command{
	Use:   "get <natural-key>",
	Short: "Show the published record for a natural key",
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

		key := model.CanonicalKey(model.Domain(getDomain), args[0])
		rec, err := st.GetRecord(ctx, key)
		if err != nil {
			return eris.Wrap(err, "get record")
		}
		if rec == nil {
			fmt.Fprintf(os.Stderr, "No record for %s.\n", key)
			return nil
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

func init() {
	getCmd.Flags().StringVar(&getDomain, "domain", "country", "regulation domain: country or airline")
	rootCmd.AddCommand(getCmd)
}
