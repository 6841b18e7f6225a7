package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/congress-cli/internal/resolve"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Link stored votes to the bills they concern",
	Long:  "Scores every stored vote of a congress against bill actions near the vote date and records a resolved, ambiguous or unresolved link.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		congresses, _ := cmd.Flags().GetIntSlice("congress")
		recheck, _ := cmd.Flags().GetBool("recheck")
		if len(congresses) == 0 {
			return eris.New("resolve: at least one --congress is required")
		}
		if err := cfg.Validate("resolve"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		r := resolve.New(st, cfg.Resolve)
		results := make([]*resolve.Result, 0, len(congresses))
		for _, c := range congresses {
			res, err := r.Run(ctx, c, resolve.Options{Recheck: recheck})
			if err != nil {
				return eris.Wrapf(err, "resolve congress %d", c)
			}
			results = append(results, res)
		}
		return writeJSON(os.Stdout, results)
	},
}

func init() {
	resolveCmd.Flags().IntSlice("congress", nil, "congresses to resolve")
	resolveCmd.Flags().Bool("recheck", false, "rewrite every vote link, even unchanged ones")
	rootCmd.AddCommand(resolveCmd)
}
