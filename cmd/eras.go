package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/congress-cli/internal/model"
	"github.com/sells-group/congress-cli/internal/router"
)

var erasCmd = &cobra.Command{
	Use:   "eras",
	Short: "Show the format-era table",
	Long:  "Lists, per artifact kind, the congress ranges and the parser variant that handles each.",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := router.LoadFile(cfg.Router.ErasFile)
		if err != nil {
			return err
		}
		formatEras(os.Stdout, table)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(erasCmd)
}

func formatEras(out io.Writer, table *router.Table) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KIND\tFROM\tTO\tVARIANT")
	_, _ = fmt.Fprintln(w, "----\t----\t--\t-------")
	for _, kind := range model.AllKinds {
		for _, e := range table.Eras(kind) {
			_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", kind, e.From, e.To, e.Variant)
		}
	}
	_ = w.Flush()
}
