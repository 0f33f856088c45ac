// Command graphcheck audits a botnet SQLite database for follow-graph damage:
// half edges, ids both following and pending, and self relations.
//
//	graphcheck -db data/botnet.db
//
// It prints one line per violation and exits 1 if there are any, 2 if the
// audit itself failed. No rows are changed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	sqliteRepo "github.com/sakif/botnet/internal/repository/sqlite"
	"github.com/sakif/botnet/internal/service"
)

func main() {
	dbPath := flag.String("db", "data/botnet.db", "path to the SQLite database")
	verbose := flag.Bool("v", false, "log every violation as well as printing it")
	flag.Parse()

	os.Exit(run(*dbPath, *verbose))
}

func run(dbPath string, verbose bool) int {
	level := slog.LevelError + 1
	if verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if _, err := os.Stat(dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "graphcheck: %v\n", err)
		return 2
	}

	db, err := sqliteRepo.New(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "graphcheck: opening %s: %v\n", dbPath, err)
		return 2
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	violations, err := service.NewAuditService(db, logger).AuditGraph(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "graphcheck: %v\n", err)
		return 2
	}

	for _, v := range violations {
		fmt.Printf("%s\tprofile=%s\tother=%s\t%s\n", v.Kind, v.ProfileID, v.OtherID, v.Detail)
	}
	if len(violations) > 0 {
		fmt.Fprintf(os.Stderr, "graphcheck: %d violation(s)\n", len(violations))
		return 1
	}
	fmt.Println("ok")
	return 0
}
