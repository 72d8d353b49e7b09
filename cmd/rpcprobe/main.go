// rpcprobe checks that the stored procedures behind the edge functions exist
// and, with -sample, runs each once against a known cell.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/hexflows/tripflow-backend/internal/config"
	"github.com/hexflows/tripflow-backend/internal/rpc"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env.local")

	sample := flag.String("sample", "", "H3 cell id to run each procedure with")
	month := flag.String("month", "2024-05-01", "target month for the trip flows sample")
	year := flag.Int("year", 2024, "year for the monthly aggregation sample")
	flag.Parse()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("DB connection error: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	for _, fn := range []string{cfg.TripFlowsRPC, cfg.MonthlyAggRPC} {
		if _, _, err := rpc.BuildQuery(fn, nil); err != nil {
			log.Fatal(err)
		}
	}

	missing := 0
	for _, fn := range []string{cfg.TripFlowsRPC, cfg.MonthlyAggRPC} {
		args, err := procedureArgs(ctx, db, fn)
		if err != nil {
			fmt.Printf("MISSING  %s (%v)\n", fn, err)
			missing++
			continue
		}
		fmt.Printf("OK       %s(%s)\n", fn, args)
	}
	if missing > 0 {
		os.Exit(1)
	}

	if *sample == "" {
		return
	}

	cells := "{" + *sample + "}"
	runSample(ctx, db, cfg.TripFlowsRPC,
		fmt.Sprintf("SELECT count(*) FROM %s(target_month => $1::date, reference_cell_ids => $2::text[], analysis_type => 'arrivals')", cfg.TripFlowsRPC),
		*month, cells)
	runSample(ctx, db, cfg.MonthlyAggRPC,
		fmt.Sprintf("SELECT count(*) FROM %s(p_origin_cells => $1::text[], p_destination_cells => NULL, p_year => $2::int)", cfg.MonthlyAggRPC),
		cells, *year)
}

// procedureArgs returns the argument signature of fn, which may be schema qualified.
func procedureArgs(ctx context.Context, db *sql.DB, fn string) (string, error) {
	schema, name := "public", fn
	if i := strings.IndexByte(fn, '.'); i >= 0 {
		schema, name = fn[:i], fn[i+1:]
	}

	var args string
	err := db.QueryRowContext(ctx, `
		SELECT pg_get_function_identity_arguments(p.oid)
		FROM pg_proc p
		JOIN pg_namespace n ON n.oid = p.pronamespace
		WHERE n.nspname = $1 AND p.proname = $2
		LIMIT 1
	`, schema, name).Scan(&args)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("not found in schema %s", schema)
	}
	return args, err
}

func runSample(ctx context.Context, db *sql.DB, fn, query string, args ...any) {
	start := time.Now()
	var n int64
	if err := db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		fmt.Printf("FAIL     %s: %v\n", fn, err)
		return
	}
	fmt.Printf("SAMPLE   %s rows=%d duration=%dms\n", fn, n, time.Since(start).Milliseconds())
}
