// Command reladiff-progress runs a hash-bisection table diff between
// two Postgres connections and streams its progress to websocket
// clients, adapted from cmd/main.go's flag-driven bootstrap and
// internal/api/routes.go's router wiring.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arrowgrid/reladiff-go/internal/api"
	"github.com/arrowgrid/reladiff-go/internal/dialect"
	"github.com/arrowgrid/reladiff-go/internal/differ"
	"github.com/arrowgrid/reladiff-go/internal/pgdialect"
	"github.com/arrowgrid/reladiff-go/internal/progress"
	"github.com/arrowgrid/reladiff-go/internal/segment"
)

func main() {
	addr := flag.String("addr", ":8090", "HTTP listen address")
	dsn1 := flag.String("dsn1", "", "connection string for the source database")
	dsn2 := flag.String("dsn2", "", "connection string for the target database")
	table1 := flag.String("table1", "", "schema-qualified source table, e.g. public.orders")
	table2 := flag.String("table2", "", "schema-qualified target table (defaults to table1)")
	keyCols := flag.String("key", "id", "comma-separated key column(s)")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	reg := progress.NewRegistry(progress.WithLogger(logger))
	wsHandler := progress.NewHandler(reg)

	r := chi.NewRouter()
	// /ws is registered ahead of the logging middleware group, the same
	// ordering internal/api/routes.go uses to keep ResponseWriter
	// wrapping away from the hijacked websocket upgrade.
	r.Get("/ws", wsHandler.HandleWS)

	r.Group(func(r chi.Router) {
		r.Use(api.LoggingMiddleware)
		r.Post("/run", func(w http.ResponseWriter, req *http.Request) {
			runID := progress.NewRunID()
			go runDiff(logger, reg, runID, *dsn1, *dsn2, *table1, *table2, *keyCols)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"runId":"` + runID + `"}`))
		})
	})

	logger.Info("reladiff-progress listening", zap.String("addr", *addr))
	if err := http.ListenAndServe(*addr, r); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func runDiff(logger *zap.Logger, reg *progress.Registry, runID, dsn1, dsn2, table1, table2, keyCols string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if table2 == "" {
		table2 = table1
	}
	keys := strings.Split(keyCols, ",")

	seg1, err := buildSegment(ctx, dsn1, table1, keys)
	if err != nil {
		logger.Error("run: building source segment", zap.String("runId", runID), zap.Error(err))
		return
	}
	seg2, err := buildSegment(ctx, dsn2, table2, keys)
	if err != nil {
		logger.Error("run: building target segment", zap.String("runId", runID), zap.Error(err))
		return
	}

	d, err := differ.New(
		differ.WithLogger(logger.With(zap.String("runId", runID))),
		differ.WithReporter(progress.NewReporter(reg, runID)),
	)
	if err != nil {
		logger.Error("run: constructing differ", zap.String("runId", runID), zap.Error(err))
		return
	}

	result := d.Diff(ctx, seg1, seg2)
	rows, err := result.Collect(ctx)
	if err != nil {
		logger.Error("run: diff failed", zap.String("runId", runID), zap.Error(err))
		return
	}
	logger.Info("run: diff complete", zap.String("runId", runID), zap.Int("rows", len(rows)))
}

func buildSegment(ctx context.Context, dsn, table string, keys []string) (segment.Segment, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	db := pgdialect.New(table, pool)
	parts := strings.SplitN(table, ".", 2)
	var path dialect.TablePath
	if len(parts) == 2 {
		path = dialect.TablePath{parts[0], parts[1]}
	} else {
		path = dialect.TablePath{"public", parts[0]}
	}
	return segment.New(db, path, keys)
}
