package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/snarg/scribe/internal/config"
	"github.com/snarg/scribe/internal/database"
)

// runHistory prints the most recent transcriptions from DATABASE_URL.
func runHistory(args []string) error {
	var o config.Overrides
	var limit, offset int
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.StringVar(&o.EnvFile, "env-file", "", "path to .env file (default .env)")
	fs.IntVar(&limit, "n", 20, "number of entries")
	fs.IntVar(&offset, "offset", 0, "entries to skip")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(o)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}

	ctx := context.Background()
	store, err := database.Open(ctx, cfg.DatabaseURL, zerolog.New(os.Stderr).Level(zerolog.WarnLevel))
	if err != nil {
		return err
	}
	defer store.Close()

	entries, total, err := store.List(ctx, limit, offset)
	if err != nil {
		return err
	}
	printHistory(os.Stdout, entries, total)
	return nil
}

func printHistory(w io.Writer, entries []database.Entry, total int) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ENDED\tSOURCE\tPROVIDER\tDURATION\tNOTE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%ds\t%s\n",
			e.EndedAt.Local().Format("2006-01-02 15:04"),
			e.Source,
			e.Provider,
			e.DurationSeconds,
			e.NotePath,
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "%d of %d\n", len(entries), total)
}
