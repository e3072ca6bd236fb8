package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/AIMindset/internal/article"
	"github.com/TobiSchelling/AIMindset/internal/config"
	"github.com/TobiSchelling/AIMindset/internal/lru"
	"github.com/TobiSchelling/AIMindset/internal/metrics"
	"github.com/TobiSchelling/AIMindset/internal/perf"
	"github.com/TobiSchelling/AIMindset/internal/processor"
	"github.com/TobiSchelling/AIMindset/internal/server"
	"github.com/TobiSchelling/AIMindset/internal/store"
	"github.com/TobiSchelling/AIMindset/internal/warmup"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "aimindset",
	Short:   "Article cache and processing for the AIMindset blog",
	Long:    "aimindset loads blog articles into a durable cache and answers search, filter, sort, analysis and summary queries over them.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			setLogFlags(verbose)
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		setLogFlags(verbose || strings.EqualFold(cfg.Logging.Level, "debug"))
		return nil
	},
}

func setLogFlags(debug bool) {
	if debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	} else {
		log.SetFlags(log.LstdFlags)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(warmCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(filterCmd)
	rootCmd.AddCommand(sortCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cacheCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("aimindset", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/aimindset/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to point at your articles export and feeds.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache status",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.Stats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}
		printStats(stats)

		last, err := warmup.LastCleanup(st)
		if err == nil && !last.IsZero() {
			fmt.Printf("\nLast cleanup: %s\n", last.Local().Format(time.DateTime))
		}
		return nil
	},
}

func printStats(stats *store.Stats) {
	fmt.Println("Cache:")
	fmt.Printf("  Entries: %d\n", stats.TotalEntries)
	fmt.Printf("  Size: %d bytes\n", stats.TotalSize)
	if !stats.OldestEntry.IsZero() {
		fmt.Printf("  Oldest: %s\n", stats.OldestEntry.Local().Format(time.DateTime))
		fmt.Printf("  Newest: %s\n", stats.NewestEntry.Local().Format(time.DateTime))
	}
	fmt.Println("\nPartitions:")
	for _, p := range store.Partitions {
		fmt.Printf("  %s: %d\n", p, stats.PerPartition[p])
	}
}

// --- warm command ---

var dryRun bool

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Load articles from the configured sources into the cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		w := warmup.New(warmup.ConfigSource(cfg), st, nil)
		var result *warmup.Result
		if dryRun {
			result = w.DryRun()
		} else {
			result = w.Run()
		}

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/6: %s\n", i+1, step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}

		if !dryRun && len(result.Articles) > 0 {
			fmt.Println("\nCache warm! Run 'aimindset serve' to browse it.")
		}
		return nil
	},
}

func init() {
	warmCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without writing")
}

// --- query commands ---

var (
	searchFuzzy bool
	searchLimit int

	filterCategory  string
	filterTags      []string
	filterPublished string
	filterFrom      string
	filterTo        string

	sortBy    string
	sortOrder string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search cached articles",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			articles, err := a.articles()
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")
			results, err := a.facade.Search(cmd.Context(), articles, query, processor.SearchOptions{
				Fuzzy: searchFuzzy,
				Limit: searchLimit,
			})
			if err != nil {
				return err
			}

			if len(results) == 0 {
				fmt.Printf("No articles match %q\n", query)
				return nil
			}
			for _, r := range results {
				fmt.Printf("  [%s] %-50s %6.1f  %s\n", r.Article.ID, r.Article.Title, r.Score, strings.Join(r.MatchedFields, ","))
			}
			return nil
		})
	},
}

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Filter cached articles",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := map[string][]string{
			"category":  {filterCategory},
			"tag":       filterTags,
			"published": {filterPublished},
			"from":      {filterFrom},
			"to":        {filterTo},
		}
		opts, err := server.ParseFilter(q)
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			articles, err := a.articles()
			if err != nil {
				return err
			}
			out, err := a.facade.Filter(cmd.Context(), articles, opts)
			if err != nil {
				return err
			}
			printArticles(out)
			return nil
		})
	},
}

var sortCmd = &cobra.Command{
	Use:   "sort",
	Short: "List cached articles in order",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			articles, err := a.articles()
			if err != nil {
				return err
			}
			out, err := a.facade.Sort(cmd.Context(), articles, sortBy, sortOrder, nil)
			if err != nil {
				return err
			}
			printArticles(out)
			return nil
		})
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Show statistics over the cached articles",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			articles, err := a.articles()
			if err != nil {
				return err
			}
			an, err := a.facade.Analyze(cmd.Context(), articles)
			if err != nil {
				return err
			}
			return printJSON(an)
		})
	},
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize <id>",
	Short: "Summarize one article",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			art, err := a.facade.GetArticle(args[0], a.load)
			if err != nil {
				return err
			}
			if art == nil {
				return fmt.Errorf("article %s not found", args[0])
			}
			s, err := a.facade.Summarize(cmd.Context(), *art)
			if err != nil {
				return err
			}
			fmt.Println(art.Title)
			fmt.Printf("\n%s\n\n", s.Summary)
			fmt.Printf("Words: %d, reading time: %d min, sentiment: %s\n", s.WordCount, s.ReadingTime, s.Sentiment)
			if len(s.Keywords) > 0 {
				fmt.Printf("Keywords: %s\n", strings.Join(s.Keywords, ", "))
			}
			return nil
		})
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Run each operation once and print the performance report",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			start := time.Now()
			articles, err := a.articles()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			for _, art := range articles {
				if _, err := a.facade.GetArticle(art.ID, a.load); err != nil {
					log.Printf("Reading article %s: %v", art.ID, err)
				}
			}
			if _, err := a.facade.Search(ctx, articles, "inteligencia artificial", processor.SearchOptions{}); err != nil {
				return err
			}
			if _, err := a.facade.Analyze(ctx, articles); err != nil {
				return err
			}
			a.facade.RecordRender(time.Since(start))

			fmt.Print(a.facade.Report().Markdown())
			return nil
		})
	},
}

func init() {
	searchCmd.Flags().BoolVar(&searchFuzzy, "fuzzy", false, "Tolerate typos")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "Maximum results (0 for all)")

	filterCmd.Flags().StringVar(&filterCategory, "category", "", "Category name")
	filterCmd.Flags().StringSliceVar(&filterTags, "tag", nil, "Tag (repeatable)")
	filterCmd.Flags().StringVar(&filterPublished, "published", "", "true or false")
	filterCmd.Flags().StringVar(&filterFrom, "from", "", "Earliest creation date (YYYY-MM-DD)")
	filterCmd.Flags().StringVar(&filterTo, "to", "", "Latest creation date (YYYY-MM-DD)")

	sortCmd.Flags().StringVar(&sortBy, "by", processor.SortByDate, "date, title or rating")
	sortCmd.Flags().StringVar(&sortOrder, "order", processor.Descending, "asc or desc")
}

func printArticles(articles []article.Article) {
	if len(articles) == 0 {
		fmt.Println("No articles.")
		return
	}
	for _, a := range articles {
		date := ""
		if !a.CreatedAt.IsZero() {
			date = a.CreatedAt.Format(time.DateOnly)
		}
		fmt.Printf("  [%s] %-50s %-12s %s\n", a.ID, a.Title, a.Category, date)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return withAppContext(ctx, func(a *app) error {
			go warmup.CleanupLoop(ctx, a.store, cfg.Cache.CleanupEvery())

			fmt.Printf("Starting server at http://localhost:%d\n", port)
			fmt.Println("Press Ctrl+C to stop")
			return server.Serve(ctx, server.Deps{
				Facade:   a.facade,
				Store:    a.store,
				LRU:      a.lru,
				Articles: a.articles,
				Gatherer: a.registry,
			}, port)
		})
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// --- wiring ---

// app holds the collaborators every query command needs.
type app struct {
	store    *store.Store
	lru      *lru.Cache
	queue    *processor.Queue
	facade   *perf.Facade
	warmer   *warmup.Warmer
	registry *prometheus.Registry
}

func openStore() (*store.Store, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "cache.db")
	return store.Open(dbPath, store.WithDefaultTTL(cfg.Cache.DefaultTTLDuration()))
}

func withApp(fn func(*app) error) error {
	return withAppContext(context.Background(), fn)
}

func withAppContext(ctx context.Context, fn func(*app) error) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	a := &app{
		store:    st,
		lru:      lru.New(cfg.Cache.LRUMaxSize, cfg.Cache.LRUTTLDuration()),
		registry: reg,
		queue: processor.NewQueue(
			processor.WithMemoTTL(cfg.Queue.MemoTTLDuration()),
			processor.WithTimeout(cfg.Queue.TimeoutDuration()),
			processor.WithRecorder(m),
		),
	}
	queueCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.queue.Start(queueCtx)
	defer a.queue.Close()

	a.facade = perf.NewFacade(perf.Deps{
		Queue:    a.queue,
		LRU:      a.lru,
		Store:    st,
		Monitor:  perf.NewMonitor(cfg.Performance.Window, m),
		Metrics:  m,
		Debounce: cfg.Performance.DebounceDuration(),
		Throttle: cfg.Performance.ThrottleDuration(),
	})
	defer a.facade.Close()

	a.warmer = warmup.New(warmup.ConfigSource(cfg), st, a.lru)
	return fn(a)
}

func (a *app) articles() ([]article.Article, error) {
	return a.warmer.Articles()
}

func (a *app) load(id string) (*article.Article, error) {
	articles, err := a.articles()
	if err != nil {
		return nil, err
	}
	art, ok := article.ByID(articles, id)
	if !ok {
		return nil, nil
	}
	return &art, nil
}
