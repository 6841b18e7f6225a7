package main

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/congress-cli/internal/ingest"
	"github.com/sells-group/congress-cli/internal/parse"
	"github.com/sells-group/congress-cli/internal/pdftext"
	"github.com/sells-group/congress-cli/internal/router"
	"github.com/sells-group/congress-cli/internal/store"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest the raw archive into the database",
	Long: "Walks the archive, parses every ready artifact with the parser of its format era, writes the " +
		"normalized entities idempotently and resolves votes to bills. Per-artifact failures are recorded " +
		"and do not stop the run.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		opts, err := ingestOptions(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate("ingest"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		coord, err := newCoordinator(st)
		if err != nil {
			return err
		}

		sum, err := coord.Run(ctx, opts)
		if sum != nil {
			if werr := writeJSON(os.Stdout, sum); werr != nil {
				zap.L().Warn("write summary", zap.Error(werr))
			}
		}
		if errors.Is(err, ingest.ErrSystemic) {
			return eris.Wrap(err, "ingest")
		}
		return err
	},
}

func init() {
	f := ingestCmd.Flags()
	f.String("root", "", "archive root (default from config)")
	f.Bool("resume", false, "skip artifacts whose last attempt succeeded on the same file")
	f.Bool("from-checkpoint", false, "start the walk after the saved checkpoint")
	f.IntSlice("congress", nil, "restrict the run to these congresses")
	f.Int("concurrency", 0, "artifact workers (default from config)")
	f.Bool("skip-resolve", false, "do not run vote resolution after ingestion")
	f.Bool("recheck", false, "rewrite every vote link, even unchanged ones")
	rootCmd.AddCommand(ingestCmd)
}

func ingestOptions(cmd *cobra.Command) (ingest.Options, error) {
	f := cmd.Flags()
	var opts ingest.Options
	var err error
	if opts.Root, err = f.GetString("root"); err != nil {
		return opts, err
	}
	if opts.Resume, err = f.GetBool("resume"); err != nil {
		return opts, err
	}
	if opts.FromCheckpoint, err = f.GetBool("from-checkpoint"); err != nil {
		return opts, err
	}
	if opts.Congresses, err = f.GetIntSlice("congress"); err != nil {
		return opts, err
	}
	if opts.Concurrency, err = f.GetInt("concurrency"); err != nil {
		return opts, err
	}
	if opts.SkipResolve, err = f.GetBool("skip-resolve"); err != nil {
		return opts, err
	}
	if opts.Recheck, err = f.GetBool("recheck"); err != nil {
		return opts, err
	}
	if opts.Root != "" {
		cfg.Archive.Root = opts.Root
	}
	return opts, nil
}

// newCoordinator wires the era table, parser registry and PDF extractor.
func newCoordinator(st store.Store) (*ingest.Coordinator, error) {
	table, err := router.LoadFile(cfg.Router.ErasFile)
	if err != nil {
		return nil, err
	}
	pdf, err := pdftext.NewExtractor(cfg.PDF)
	if err != nil {
		return nil, err
	}
	return ingest.New(cfg, st, table, parse.NewRegistry(pdf))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
