package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/congress-cli/internal/model"
	"github.com/sells-group/congress-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only query API",
	Long: "Exposes bills, versions, estimates, votes with their links, ingestion records and runs as GET-only JSON. " +
		"/metrics carries process metrics only: batch ingest counters go to metrics.textfile, " +
		"and watch --port serves them live.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		return listen(ctx, cfg.Server.Port, buildRouter(st))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// listen serves h on port until ctx is done.
func listen(ctx context.Context, port int, h http.Handler) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

type api struct {
	st store.Store
	rd *store.Reader
}

// buildRouter mounts the read-only routes over st. /metrics serves the
// default registry plus any extra gatherers, such as a live coordinator's.
func buildRouter(st store.Store, gatherers ...prometheus.Gatherer) http.Handler {
	a := &api{st: st, rd: store.NewReader(st)}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		MaxAge:         300,
	}))

	r.Get("/health", a.health)
	metrics := append(prometheus.Gatherers{prometheus.DefaultGatherer}, gatherers...)
	r.Handle("/metrics", promhttp.HandlerFor(metrics, promhttp.HandlerOpts{}))

	r.Route("/congresses/{congress}", func(r chi.Router) {
		r.Get("/bills", a.bills)
		r.Get("/votes", a.votes)
	})
	r.Route("/bills/{congress}/{type}/{number}", func(r chi.Router) {
		r.Get("/", a.bill)
		r.Get("/versions", a.versions)
		r.Get("/versions/{code}", a.version)
		r.Get("/estimates", a.estimates)
		r.Get("/votes", a.billVotes)
	})
	r.Get("/votes/{congress}/{chamber}/{roll}", a.vote)
	r.Get("/artifacts", a.artifacts)
	r.Get("/artifacts/*", a.artifact)
	r.Get("/runs", a.runs)
	return r
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	if err := a.st.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	respond(w, map[string]string{"status": "ok"}, nil)
}

func (a *api) bills(w http.ResponseWriter, r *http.Request) {
	congress, ok := intParam(w, chi.URLParam(r, "congress"), "congress")
	if !ok {
		return
	}
	limit, offset, ok := page(w, r)
	if !ok {
		return
	}
	out, err := a.rd.Bills(r.Context(), congress, limit, offset)
	respond(w, out, err)
}

func (a *api) votes(w http.ResponseWriter, r *http.Request) {
	congress, ok := intParam(w, chi.URLParam(r, "congress"), "congress")
	if !ok {
		return
	}
	limit, offset, ok := page(w, r)
	if !ok {
		return
	}
	out, err := a.rd.Votes(r.Context(), congress, limit, offset)
	respond(w, out, err)
}

func (a *api) bill(w http.ResponseWriter, r *http.Request) {
	key, ok := billKey(w, r)
	if !ok {
		return
	}
	out, err := a.rd.Bill(r.Context(), key)
	respondOne(w, out, err)
}

func (a *api) versions(w http.ResponseWriter, r *http.Request) {
	key, ok := billKey(w, r)
	if !ok {
		return
	}
	out, err := a.rd.Versions(r.Context(), key)
	respond(w, out, err)
}

func (a *api) version(w http.ResponseWriter, r *http.Request) {
	key, ok := billKey(w, r)
	if !ok {
		return
	}
	out, err := a.rd.Version(r.Context(), key, chi.URLParam(r, "code"))
	respondOne(w, out, err)
}

func (a *api) estimates(w http.ResponseWriter, r *http.Request) {
	key, ok := billKey(w, r)
	if !ok {
		return
	}
	out, err := a.rd.Estimates(r.Context(), key)
	respond(w, out, err)
}

func (a *api) billVotes(w http.ResponseWriter, r *http.Request) {
	key, ok := billKey(w, r)
	if !ok {
		return
	}
	out, err := a.rd.VotesForBill(r.Context(), key)
	respond(w, out, err)
}

func (a *api) vote(w http.ResponseWriter, r *http.Request) {
	congress, ok := intParam(w, chi.URLParam(r, "congress"), "congress")
	if !ok {
		return
	}
	chamber, valid := model.ParseChamber(chi.URLParam(r, "chamber"))
	if !valid {
		writeError(w, http.StatusBadRequest, "unknown chamber")
		return
	}
	roll, ok := intParam(w, chi.URLParam(r, "roll"), "roll")
	if !ok {
		return
	}
	out, err := a.rd.Vote(r.Context(), model.VoteKey{Congress: congress, Chamber: chamber, RollCall: roll})
	respondOne(w, out, err)
}

func (a *api) artifacts(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := page(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := store.ArtifactFilter{
		Kind:   model.ArtifactKind(q.Get("kind")),
		Status: model.ArtifactStatus(q.Get("status")),
		Limit:  limit,
		Offset: offset,
	}
	if s := q.Get("congress"); s != "" {
		if filter.Congress, ok = intParam(w, s, "congress"); !ok {
			return
		}
	}
	out, err := a.rd.Artifacts(r.Context(), filter)
	respond(w, out, err)
}

func (a *api) artifact(w http.ResponseWriter, r *http.Request) {
	out, err := a.rd.Artifact(r.Context(), chi.URLParam(r, "*"))
	respondOne(w, out, err)
}

func (a *api) runs(w http.ResponseWriter, r *http.Request) {
	limit, _, ok := page(w, r)
	if !ok {
		return
	}
	out, err := a.rd.Runs(r.Context(), limit)
	respond(w, out, err)
}

func billKey(w http.ResponseWriter, r *http.Request) (model.BillKey, bool) {
	congress, ok := intParam(w, chi.URLParam(r, "congress"), "congress")
	if !ok {
		return model.BillKey{}, false
	}
	bt, valid := model.ParseBillType(chi.URLParam(r, "type"))
	if !valid {
		writeError(w, http.StatusBadRequest, "unknown bill type")
		return model.BillKey{}, false
	}
	number, ok := intParam(w, chi.URLParam(r, "number"), "number")
	if !ok {
		return model.BillKey{}, false
	}
	return model.BillKey{Congress: congress, Type: bt, Number: number}, true
}

func page(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	q := r.URL.Query()
	limit, offset := 0, 0
	var ok bool
	if s := q.Get("limit"); s != "" {
		if limit, ok = intParam(w, s, "limit"); !ok {
			return 0, 0, false
		}
	}
	if s := q.Get("offset"); s != "" {
		if offset, ok = intParam(w, s, "offset"); !ok {
			return 0, 0, false
		}
	}
	return limit, offset, true
}

func intParam(w http.ResponseWriter, s, name string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s %q", name, s))
		return 0, false
	}
	return n, true
}

// respondOne maps a nil result to 404.
func respondOne[T any](w http.ResponseWriter, v *T, err error) {
	if err == nil && v == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	respond(w, v, err)
}

func respond(w http.ResponseWriter, v any, err error) {
	if err != nil {
		zap.L().Error("api: query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
