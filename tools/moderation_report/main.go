// Moderation Report Tool prints flag assignment and resolution activity from
// ClickHouse.
//
// Usage:
//
//	go run ./tools/moderation_report -days=30
//
// Configuration:
//
//	-days: Optional. Number of days to include in the report (default: 7)
//	-clickhouse-dsn: Optional. ClickHouse connection string (default: CLICKHOUSE_DSN)
//	-json: Optional. Emit the report as JSON instead of a table
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/patrickwarner/flagdesk/internal/analytics"
	"github.com/patrickwarner/flagdesk/internal/config"
	"github.com/patrickwarner/flagdesk/internal/observability"
	"github.com/patrickwarner/flagdesk/internal/reporting"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
		os.Exit(1)
	}
	var (
		days    = flag.Int("days", 7, "Number of days to include in report")
		dsn     = flag.String("clickhouse-dsn", config.Load().ClickHouseDSN, "ClickHouse DSN")
		asJSON  = flag.Bool("json", false, "Print the report as JSON")
		timeout = flag.Duration("timeout", 30*time.Second, "Query timeout")
	)
	flag.Parse()

	a, err := analytics.InitClickHouse(*dsn, 2, 1, 5*time.Minute, observability.NewNoOpRegistry())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to ClickHouse: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	report, err := reporting.GenerateModerationReport(ctx, a.DB, *days)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating report: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding report: %v\n", err)
			os.Exit(1)
		}
		return
	}
	printReport(report)
}

func printReport(r *reporting.ModerationReport) {
	fmt.Printf("MODERATION ACTIVITY REPORT\n")
	fmt.Printf("Report Period: %d days (ending %s)\n\n", r.Days, time.Now().Format("2006-01-02"))

	t := r.Totals
	fmt.Printf("Assigned:       %d\n", t.Assigned)
	fmt.Printf("Resolved:       %d\n", t.Resolved)
	fmt.Printf("Rejected calls: %d\n", t.Rejected)
	fmt.Printf("Resolve ratio:  %.1f%%\n\n", t.ResolveRatio)

	if len(r.Daily) > 0 {
		fmt.Printf("Date        | Assigned | Resolved | Rejected\n")
		fmt.Printf("------------|----------|----------|---------\n")
		for _, d := range r.Daily {
			fmt.Printf("%-10s  | %8d | %8d | %8d\n", d.Date.Format("2006-01-02"), d.Assigned, d.Resolved, d.Rejected)
		}
		fmt.Println()
	}

	if len(r.Resolvers) > 0 {
		fmt.Printf("Resolver | Resolved | Corrected\n")
		fmt.Printf("---------|----------|----------\n")
		for _, res := range r.Resolvers {
			fmt.Printf("%8d | %8d | %9d\n", res.ActorID, res.Resolved, res.Corrected)
		}
	}
}
