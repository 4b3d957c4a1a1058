package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/zest/internal"
	"github.com/starford/zest/internal/apperr"
	"github.com/starford/zest/internal/models"
	pkgconfig "github.com/starford/zest/pkg/config"
)

var version = "dev"

// withApp loads the config, builds the application and runs fn with it.
func withApp(fn func(context.Context, *cli.Command, *internal.App) error, extra ...internal.Option) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		configPath := cmd.String("config")

		cfg := internal.NewDefaultConfig()
		if err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}

		opts := append([]internal.Option{
			internal.WithConfig(cfg),
			internal.WithVerbosity(cmd.Count("verbose")),
			internal.WithVersion(version),
		}, extra...)
		if w := cmd.Root().ErrWriter; w != nil {
			opts = append(opts, internal.WithLogOutput(w))
		}

		return internal.Run(ctx, func(ctx context.Context, app *internal.App) error {
			return fn(ctx, cmd, app)
		}, opts...)
	}
}

func queryArg(cmd *cli.Command) (string, error) {
	q := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if q == "" {
		return "", fmt.Errorf("a query is required")
	}
	return q, nil
}

func printSummary(w io.Writer, sum *models.Summary) {
	fmt.Fprintf(w, "indexed %d, updated %d, removed %d, unchanged %d\n",
		sum.Indexed, sum.Updated, sum.Removed, sum.Unchanged)
	for _, f := range sum.Failures {
		fmt.Fprintf(w, "failed: %s\n", f.Error())
	}
}

func update(ctx context.Context, cmd *cli.Command, app *internal.App) error {
	sum, err := app.Service.Update(ctx)
	if err != nil {
		if errors.Is(err, apperr.ErrIndexCorrupt) {
			return fmt.Errorf("%w (run `zest reindex` to rebuild)", err)
		}
		return err
	}
	printSummary(cmd.Root().Writer, sum)
	return nil
}

func reindex(ctx context.Context, cmd *cli.Command, app *internal.App) error {
	sum, err := app.Service.Reindex(ctx)
	if err != nil {
		return err
	}
	printSummary(cmd.Root().Writer, sum)
	return nil
}

func search(ctx context.Context, cmd *cli.Command, app *internal.App) error {
	q, err := queryArg(cmd)
	if err != nil {
		return err
	}
	hits, err := app.Service.Search(ctx, q, int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	w := cmd.Root().Writer
	for _, h := range hits {
		if cmd.Bool("only-files") {
			fmt.Fprintln(w, h.ID)
			continue
		}
		fmt.Fprintf(w, "%8.2f  %s\n", h.Score, h.ID)
	}
	return nil
}

func remove(ctx context.Context, cmd *cli.Command, app *internal.App) error {
	q, err := queryArg(cmd)
	if err != nil {
		return err
	}
	removed, sum, err := app.Service.RemoveByQuery(ctx, q)
	w := cmd.Root().Writer
	for _, p := range removed {
		fmt.Fprintf(w, "removed %s\n", p)
	}
	if err != nil {
		return err
	}
	printSummary(w, sum)
	return nil
}

func create(ctx context.Context, cmd *cli.Command, app *internal.App) error {
	path, err := app.Service.Create(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.Root().Writer, path)
	return nil
}

func stats(ctx context.Context, cmd *cli.Command, app *internal.App) error {
	st, err := app.Service.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.Root().Writer, "notes %d\nterms %d\npostings %d\n", st.Notes, st.Terms, st.Postings)
	return nil
}

func serveMCP(ctx context.Context, _ *cli.Command, app *internal.App) error {
	return app.ServeMCP(ctx, os.Stdin, os.Stdout)
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:                   "zest",
		Usage:                  "Index a Zettelkasten of Markdown notes and query it",
		Version:                version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: pkgconfig.DefaultPath("zest"),
				Value:       pkgconfig.DefaultPath("zest"),
				Sources:     cli.EnvVars("ZEST_CONFIG_FILE"),
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log more; repeat for debug output",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "update",
				Usage:  "Index new and changed notes, drop deleted ones",
				Action: withApp(update),
			},
			{
				Name:   "reindex",
				Usage:  "Rebuild the index from scratch",
				Action: withApp(reindex, internal.WithRecreateIndex(true)),
			},
			{
				Name:      "search",
				Usage:     "Search notes",
				ArgsUsage: "QUERY...",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "only-files",
						Aliases: []string{"f"},
						Usage:   "Print only note paths",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results (0 for all)",
					},
				},
				Action: withApp(search),
			},
			{
				Name:      "remove",
				Usage:     "Delete every note file matching a query",
				ArgsUsage: "QUERY...",
				Action:    withApp(remove),
			},
			{
				Name:   "create",
				Usage:  "Create an empty note named after the current time",
				Action: withApp(create),
			},
			{
				Name:   "stats",
				Usage:  "Show index size",
				Action: withApp(stats),
			},
			{
				Name:   "mcp",
				Usage:  "Serve the Model Context Protocol on stdio",
				Action: withApp(serveMCP),
			},
		},
	}
}

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
