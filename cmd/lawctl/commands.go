package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sublatesublate-design/legal-database/app"
	"github.com/sublatesublate-design/legal-database/config"
	"github.com/sublatesublate-design/legal-database/logger"
	"github.com/sublatesublate-design/legal-database/service"
	"github.com/sublatesublate-design/legal-database/sources"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	application *app.App
	logLevel    string

	searchLimit   int
	basisLimit    int
	searchCat     string
	searchStatus  string
	verifyLaw     string
	verifyArticle string
	verifyClaimed string
	watchDebounce time.Duration

	rootCmd = &cobra.Command{
		Use:               "lawctl",
		Short:             "Manage the legal document knowledge base",
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if application != nil {
				application.Close()
			}
		},
	}

	ingestCmd = &cobra.Command{
		Use:     "ingest [file or directory...]",
		Short:   "Parse law texts and store them with their articles",
		Aliases: []string{"i"},
		Args:    cobra.MinimumNArgs(1),
		RunE:    runIngest,
	}

	watchCmd = &cobra.Command{
		Use:   "watch [directory]",
		Short: "Ingest law texts as they are written to a directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatch,
	}

	seedCmd = &cobra.Command{
		Use:   "seed [file.yaml]",
		Short: "Load curated aliases and concept synonyms",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return application.ApplySeedFile(cmd.Context(), args[0])
		},
	}

	purgeCmd = &cobra.Command{
		Use:   "purge [law-id]",
		Short: "Remove a law with its articles, aliases and revisions",
		Args:  cobra.ExactArgs(1),
		RunE:  runPurge,
	}

	searchCmd = &cobra.Command{
		Use:   "search [query]",
		Short: "Rank laws for a query",
		Args:  cobra.ExactArgs(1),
		RunE:  runSearch,
	}

	basisCmd = &cobra.Command{
		Use:   "basis [case description]",
		Short: "Suggest laws for a case description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := application.Laws.GetLegalBasis(cmd.Context(), service.LegalBasisRequest{
				CaseDescription: args[0],
				Limit:           basisLimit,
			})
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}

	verifyCmd = &cobra.Command{
		Use:   "verify [passage file]",
		Short: "Verify one citation, or every citation in a passage file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runVerify,
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Print corpus and cache counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := application.Laws.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL")

	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "maximum number of hits")
	basisCmd.Flags().IntVar(&basisLimit, "limit", 5, "maximum number of laws")
	searchCmd.Flags().StringVar(&searchCat, "category", "", "restrict to one category")
	searchCmd.Flags().StringVar(&searchStatus, "status", "", "restrict to one status")

	verifyCmd.Flags().StringVar(&verifyLaw, "law", "", "cited law name")
	verifyCmd.Flags().StringVar(&verifyArticle, "article", "", "cited article number")
	verifyCmd.Flags().StringVar(&verifyClaimed, "claimed", "", "quoted article text")

	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", sources.DefaultDebounce, "quiet period before a changed file is ingested")

	rootCmd.AddCommand(ingestCmd, watchCmd, seedCmd, purgeCmd, searchCmd, basisCmd, verifyCmd, statsCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	config.LoadEnv()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	cfg.Log.Output = os.Stderr

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cobra.OnFinalize(stop)
	cmd.SetContext(ctx)

	application, err = app.New(ctx, cfg, logger.New(cfg.Log))
	return err
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func runIngest(cmd *cobra.Command, args []string) error {
	var docs []service.Document
	for _, arg := range args {
		paths, err := sources.Collect(arg)
		if err != nil {
			return err
		}
		for _, path := range paths {
			doc, err := sources.Load(path)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
	}
	if len(docs) == 0 {
		return errors.New("no .txt law texts found")
	}

	reports := application.Ingest.IngestBatch(cmd.Context(), docs)
	failed := 0
	for _, r := range reports {
		fmt.Fprintf(os.Stderr, "%-9s %s (%d articles, %d warnings) %s\n",
			r.Result(), r.SourceRef, r.ArticlesParsed, len(r.Warnings), r.Error)
		for _, step := range r.Incomplete {
			fmt.Fprintf(os.Stderr, "%-9s %s\n", "", step)
		}
		if r.Error != "" {
			failed++
		}
	}
	if err := printJSON(reports); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(reports))
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	log := application.Log
	w, err := sources.NewWatcher(args[0], watchDebounce, func(ctx context.Context, path string) {
		doc, err := sources.Load(path)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("failed to read law text")
			return
		}
		if _, err := application.Ingest.Ingest(ctx, doc); err != nil {
			log.Error().Err(err).Str("path", path).Msg("failed to ingest law text")
		}
	}, log)
	if err != nil {
		return err
	}

	err = w.Run(cmd.Context())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runPurge(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid law id %q: %w", args[0], err)
	}
	if err := application.Ingest.PurgeLaw(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "✓ purged %s\n", id)
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	result, err := application.Laws.SearchLaws(cmd.Context(), service.SearchRequest{
		Query:    args[0],
		Category: searchCat,
		Status:   searchStatus,
		Limit:    searchLimit,
	})
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runVerify(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		text, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		result, err := application.Laws.BatchVerify(cmd.Context(), string(text))
		if err != nil {
			return err
		}
		return printJSON(result)
	}

	if verifyLaw == "" || verifyArticle == "" {
		return errors.New("pass a passage file, or --law and --article")
	}
	result, err := application.Laws.VerifyCitation(cmd.Context(), verifyLaw, verifyArticle, verifyClaimed)
	if err != nil {
		return err
	}
	return printJSON(result)
}
