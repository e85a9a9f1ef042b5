// interviewctl inspects and exports the interview database from the
// command line, without running the server.
//
//	interviewctl                    record count and database backend
//	interviewctl list               overview table
//	interviewctl show <id>          one record
//	interviewctl export [file]      bulk JSON (default alle_interviews_YYYYMMDD.json)
//	interviewctl document <id> [file]
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/snarg/interview-desk/internal/config"
	"github.com/snarg/interview-desk/internal/database"
	"github.com/snarg/interview-desk/internal/export"
)

func main() {
	cfg, err := config.Load(config.Overrides{})
	if err != nil {
		fail(err)
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel)

	ctx := context.Background()
	store, err := database.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		fail(err)
	}
	defer store.Close()

	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "":
		err = count(ctx, store)
	case "list":
		err = list(ctx, store)
	case "show":
		err = show(ctx, store, args[1:])
	case "export":
		err = bulkExport(ctx, store, args[1:])
	case "document":
		err = document(ctx, store, cfg, args[1:])
	default:
		err = fmt.Errorf("unknown command %q (list, show, export, document)", cmd)
	}
	if err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func count(ctx context.Context, store database.Store) error {
	n, err := store.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%-12s %s\n", "Backend", store.Backend())
	fmt.Printf("%-12s %d\n", "Interviews", n)
	return nil
}

func list(ctx context.Context, store database.Store) error {
	all, err := store.ListAll(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%-5s %-11s %-20s %8s  %s\n", "ID", "Date", "Interviewer", "Chars", "Created")
	fmt.Println("─────────────────────────────────────────────────────────────────")
	for _, iv := range all {
		fmt.Printf("%-5d %-11s %-20s %8d  %s\n",
			iv.ID, iv.Date, truncate(iv.Interviewer, 20),
			utf8.RuneCountInString(iv.Transcription),
			iv.CreatedAt.Local().Format(export.DisplayTimeLayout))
	}
	return nil
}

func show(ctx context.Context, store database.Store, args []string) error {
	iv, err := load(ctx, store, args)
	if err != nil {
		return err
	}
	fmt.Printf("Interview #%d\n", iv.ID)
	fmt.Printf("  Date:        %s\n", iv.Date)
	fmt.Printf("  Interviewer: %s\n", iv.Interviewer)
	fmt.Printf("  Interviewee: %s\n", iv.IntervieweeInfo)
	fmt.Printf("  Created at:  %s\n", iv.CreatedAt.Local().Format(export.DisplayTimeLayout))
	fmt.Printf("\n── Transcription ──\n%s\n", iv.Transcription)
	if iv.Notes != "" {
		fmt.Printf("\n── Notes ──\n%s\n", iv.Notes)
	}
	return nil
}

func bulkExport(ctx context.Context, store database.Store, args []string) error {
	all, err := store.ListAll(ctx)
	if err != nil {
		return err
	}
	body, err := export.RenderBulkExport(all)
	if err != nil {
		return err
	}
	path := export.BulkFilename(time.Now())
	if len(args) > 0 {
		path = args[0]
	}
	if path == "-" {
		_, err = os.Stdout.Write(body)
		return err
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return err
	}
	fmt.Printf("Wrote %d interviews to %s\n", len(all), path)
	return nil
}

func document(ctx context.Context, store database.Store, cfg *config.Config, args []string) error {
	iv, err := load(ctx, store, args)
	if err != nil {
		return err
	}
	r, err := export.NewRenderer(export.Options{SiteName: cfg.SiteName, Organization: cfg.Organization})
	if err != nil {
		return err
	}
	body, err := r.RenderDocument(iv)
	if err != nil {
		return err
	}
	path := export.DocumentFilename(iv.ID)
	if len(args) > 1 {
		path = args[1]
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func load(ctx context.Context, store database.Store, args []string) (*database.Interview, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("missing interview id")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid interview id %q", args[0])
	}
	return store.GetByID(ctx, id)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
