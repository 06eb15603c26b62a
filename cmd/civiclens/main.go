package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civiclens/civiclens/internal/config"
	"github.com/civiclens/civiclens/internal/logging"
	"github.com/civiclens/civiclens/pkg/cleaner"
	"github.com/civiclens/civiclens/pkg/collector"
	"github.com/civiclens/civiclens/pkg/manifest"
	"github.com/civiclens/civiclens/pkg/ngram"
	"github.com/civiclens/civiclens/pkg/scheduler"
	"github.com/civiclens/civiclens/pkg/store"
	"github.com/civiclens/civiclens/pkg/urltools"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "civiclens",
	Short: "CivicLens - social media collection and keyword expansion",
	Long: `CivicLens polls social platforms for posts matching tracked keyword
sets, archives the raw payloads, and distills cleaned text into n-gram
counts that surface the next round of keywords.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
}

// setup loads config and builds the logger shared by every command.
func setup(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// scheduledJob pairs a collector with its cron spec and pass timeout.
type scheduledJob struct {
	spec    string
	c       collector.Collector
	timeout time.Duration
}

// buildJobs wires one collector per enabled platform and keyword set.
// A non-zero day pins the collection window; zero means yesterday.
func buildJobs(cfg *config.Config, log *zap.Logger, day time.Time) ([]scheduledJob, error) {
	var jobs []scheduledJob

	labels := make([]string, 0, len(cfg.Keywords))
	for label := range cfg.Keywords {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	col := cfg.Collectors
	for _, label := range labels {
		keywords := cfg.Keywords[label]

		if col.CrowdTangle.Enabled {
			ct := collector.NewCrowdTangle(cfg.Credentials.CrowdTangleToken, label,
				keywords, cfg.Storage.PlatformDir("crowdtangle"), log)
			ct.Day = day
			if col.CrowdTangle.MaxQueries > 0 {
				ct.MaxQueries = col.CrowdTangle.MaxQueries
			}
			jobs = append(jobs, scheduledJob{col.CrowdTangle.Schedule, ct, col.CrowdTangle.Timeout})
		}

		if col.Pushshift.Enabled {
			for _, kind := range col.Pushshift.Kinds {
				ps := collector.NewPushshift(kind, label+"_"+kind, keywords,
					cfg.Storage.PlatformDir("pushshift"), log)
				ps.Day = day
				if col.Pushshift.MaxQueries > 0 {
					ps.MaxQueries = col.Pushshift.MaxQueries
				}
				jobs = append(jobs, scheduledJob{col.Pushshift.Schedule, ps, col.Pushshift.Timeout})
			}
		}

		if col.FBAds.Enabled {
			ads := collector.NewFBAds(col.FBAds.TokenFile, cfg.Credentials.FBAppID,
				cfg.Credentials.FBAppSecret, label, keywords,
				cfg.Storage.PlatformDir("fb_ads"), log)
			ads.Day = day
			if col.FBAds.Country != "" {
				ads.Country = col.FBAds.Country
			}
			jobs = append(jobs, scheduledJob{col.FBAds.Schedule, ads, col.FBAds.Timeout})
		}
	}

	// Tracked dashboard lists collect on their own pass, independent of
	// the keyword searches.
	if col.CrowdTangle.Enabled && len(col.CrowdTangle.ListIDs) > 0 {
		cl := collector.NewCrowdTangleLists(cfg.Credentials.CrowdTangleToken, "lists",
			col.CrowdTangle.ListIDs, cfg.Storage.PlatformDir("crowdtangle"), log)
		cl.Day = day
		jobs = append(jobs, scheduledJob{col.CrowdTangle.Schedule, cl, col.CrowdTangle.Timeout})
	}

	if col.FourChan.Enabled {
		for _, board := range col.FourChan.Boards {
			ch := collector.NewChanCollector(board, cfg.Storage.PlatformDir("fourchan"), log)
			jobs = append(jobs, scheduledJob{col.FourChan.SnapshotSchedule, ch, col.FourChan.Timeout})
			jobs = append(jobs, scheduledJob{col.FourChan.ArchiveSchedule,
				&archiveWatcher{ch}, col.FourChan.Timeout})
		}
	}

	if col.Twitter.Enabled {
		var follow []string
		if col.Twitter.FollowFile != "" {
			var err error
			follow, err = config.ReadLines(col.Twitter.FollowFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read follow file: %w", err)
			}
		}
		tb := collector.NewTwitterBacksearch(cfg.Credentials.TwitterBearer, "accounts",
			follow, cfg.Storage.PlatformDir("twitter"), log)
		jobs = append(jobs, scheduledJob{col.Twitter.BacksearchSchedule, tb, col.Twitter.Timeout})
	}

	return jobs, nil
}

// archiveWatcher exposes the 4chan archive diff as its own collector so it
// can run on its own schedule.
type archiveWatcher struct {
	*collector.ChanCollector
}

func (a *archiveWatcher) Name() string { return a.ChanCollector.Name() + "/archive" }

func (a *archiveWatcher) Run(ctx context.Context) (int, error) {
	return a.WatchArchive(ctx)
}

var collectCmd = &cobra.Command{
	Use:   "collect [platform]",
	Short: "Run one collection pass for a platform now",
	Long: `Run one collection pass for a platform now. The window defaults to
yesterday; --date collects a specific UTC day instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer log.Sync()
		if err := cfg.Validate(); err != nil {
			return err
		}

		var day time.Time
		if s, _ := cmd.Flags().GetString("date"); s != "" {
			day, err = time.Parse("2006-01-02", s)
			if err != nil {
				return fmt.Errorf("bad --date: %w", err)
			}
		}

		jobs, err := buildJobs(cfg, log, day)
		if err != nil {
			return err
		}
		ledger, err := manifest.Open(cfg.Storage.LedgerPath)
		if err != nil {
			return err
		}
		sched := scheduler.New(ledger, log)

		platform := args[0]
		switch platform {
		case "fourchan":
			platform = "4chan"
		case "fbads":
			platform = "fb_ads"
		}
		ran := false
		for _, j := range jobs {
			if strings.HasPrefix(j.c.Name(), platform) {
				sched.RunNow(j.c, j.timeout)
				ran = true
			}
		}
		if !ran {
			return fmt.Errorf("no collector matches platform %q", platform)
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run all enabled collectors on their schedules",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer log.Sync()
		if err := cfg.Validate(); err != nil {
			return err
		}

		jobs, err := buildJobs(cfg, log, time.Time{})
		if err != nil {
			return err
		}
		ledger, err := manifest.Open(cfg.Storage.LedgerPath)
		if err != nil {
			return err
		}
		sched := scheduler.New(ledger, log)
		for _, j := range jobs {
			if err := sched.Add(j.spec, j.c, j.timeout); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		sched.Start()
		log.Info("watching", zap.Int("jobs", len(jobs)))
		<-ctx.Done()
		sched.Stop()
		return nil
	},
}

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Hold the Twitter filtered stream open",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer log.Sync()

		if cfg.Collectors.Twitter.FollowFile == "" {
			return fmt.Errorf("no accounts to follow; set collectors.twitter.follow_file")
		}
		follow, err := config.ReadLines(cfg.Collectors.Twitter.FollowFile)
		if err != nil {
			return fmt.Errorf("failed to read follow file: %w", err)
		}

		s := collector.NewTwitterStream(cfg.Credentials.TwitterStreamAuth, "stream",
			follow, cfg.Storage.PlatformDir("twitter"), log)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		err = s.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

// dateRange parses the --from/--to flags.
func dateRange(cmd *cobra.Command) (time.Time, time.Time, error) {
	var from, to time.Time
	if s, _ := cmd.Flags().GetString("from"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return from, to, fmt.Errorf("bad --from date: %w", err)
		}
		from = t
	}
	if s, _ := cmd.Flags().GetString("to"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return from, to, fmt.Errorf("bad --to date: %w", err)
		}
		to = t
	}
	return from, to, nil
}

func recordsPath(cfg *config.Config, platform, label string) string {
	return filepath.Join(cfg.Processing.OutputDir, "records", platform+"__"+label+".json.gz")
}

func countsPath(cfg *config.Config, platform, label string) string {
	return filepath.Join(cfg.Processing.OutputDir, "counts", platform+"__"+label+".json.gz")
}

var cleanCmd = &cobra.Command{
	Use:   "clean [platform]",
	Short: "Extract cleaned text records from the raw archives",
	Long: `Extract cleaned text records from the raw archives for one platform:
twitter, facebook, instagram, reddit, fourchan or fb_ads. Defaults to
yesterday's files; --from/--to widen the range.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer log.Sync()

		platform := args[0]
		label, _ := cmd.Flags().GetString("label")
		from, to, err := dateRange(cmd)
		if err != nil {
			return err
		}

		ex := cleaner.NewExtractor(log)
		w, err := store.NewWriter(recordsPath(cfg, platform, label))
		if err != nil {
			return err
		}
		defer w.Close()

		var n int
		switch platform {
		case "twitter":
			paths, err := store.MatchDateRange(cfg.Storage.PlatformDir("twitter"), "accounts", from, to)
			if err != nil {
				return err
			}
			n, err = ex.Tweets(paths, w)
			if err != nil {
				return err
			}
		case "facebook", "instagram":
			paths, err := store.MatchDateRange(cfg.Storage.PlatformDir("crowdtangle"), label, from, to)
			if err != nil {
				return err
			}
			n, err = ex.MetaPosts(paths, platform, w)
			if err != nil {
				return err
			}
		case "reddit":
			for _, kind := range []string{"submission", "comment"} {
				paths, err := store.MatchDateRange(cfg.Storage.PlatformDir("pushshift"),
					label+"_"+kind, from, to)
				if err != nil {
					return err
				}
				k, err := ex.Reddit(paths, kind, w)
				if err != nil {
					return err
				}
				n += k
			}
		case "fourchan":
			board, _ := cmd.Flags().GetString("board")
			paths, err := store.MatchDateRange(cfg.Storage.PlatformDir("fourchan"),
				board+"_threads", from, to)
			if err != nil {
				return err
			}
			n, err = ex.ChanThreads(paths, board, w)
			if err != nil {
				return err
			}
		case "fb_ads":
			paths, err := store.MatchDateRange(cfg.Storage.PlatformDir("fb_ads"), label, from, to)
			if err != nil {
				return err
			}
			n, err = ex.FBAds(paths, w)
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown platform %q", platform)
		}

		if err := w.Close(); err != nil {
			return err
		}
		fmt.Printf("Extracted %d records to %s\n", n, recordsPath(cfg, platform, label))
		return nil
	},
}

var countCmd = &cobra.Command{
	Use:   "count [platform]",
	Short: "Count n-grams over extracted records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer log.Sync()

		platform := args[0]
		label, _ := cmd.Flags().GetString("label")

		counts, err := ngram.NewCounter().CountFiles([]string{recordsPath(cfg, platform, label)})
		if err != nil {
			return err
		}
		out := countsPath(cfg, platform, label)
		if err := ngram.WriteCounts(out, counts); err != nil {
			return err
		}
		fmt.Printf("Counted %d distinct grams to %s\n", len(counts), out)
		return nil
	},
}

var topgramsCmd = &cobra.Command{
	Use:   "topgrams",
	Short: "Merge per-platform counts into a candidate keyword CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer log.Sync()

		label, _ := cmd.Flags().GetString("label")
		platforms, _ := cmd.Flags().GetStringSlice("platforms")

		byPlatform := make(map[string]ngram.Counts)
		for _, platform := range platforms {
			counts, err := ngram.ReadCounts(countsPath(cfg, platform, label))
			if err != nil {
				log.Warn("no counts for platform", zap.String("platform", platform), zap.Error(err))
				continue
			}
			byPlatform[platform] = counts
		}
		if len(byPlatform) == 0 {
			return fmt.Errorf("no counts found for label %q; run count first", label)
		}

		top := ngram.TopGrams(byPlatform, cfg.Keywords[label], cfg.Processing.TopN)
		out := filepath.Join(cfg.Processing.OutputDir, "topgrams", label+".csv")
		if err := ngram.WriteCSV(out, top); err != nil {
			return err
		}
		fmt.Printf("Wrote %d candidate grams to %s\n", len(top), out)
		return nil
	},
}

var expandCmd = &cobra.Command{
	Use:   "expand [URL]",
	Short: "Expand a shortened link and extract the article behind it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		resolved, err := urltools.NewExpander().Resolve(ctx, args[0])
		if err != nil {
			return fmt.Errorf("expansion failed: %w", err)
		}
		fmt.Printf("URL:    %s\n", resolved)

		domain, err := urltools.Domain(resolved)
		if err == nil {
			fmt.Printf("Domain: %s\n", domain)
		}

		withText, _ := cmd.Flags().GetBool("text")
		if withText {
			article, err := urltools.NewArticleFetcher().Fetch(ctx, resolved)
			if err != nil {
				return fmt.Errorf("article extraction failed: %w", err)
			}
			fmt.Printf("Title:  %s\n\n%s\n", article.Title, article.Text)
		}
		return nil
	},
}

var listsCmd = &cobra.Command{
	Use:   "lists",
	Short: "Show the CrowdTangle lists visible to the dashboard token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer log.Sync()
		if cfg.Credentials.CrowdTangleToken == "" {
			return fmt.Errorf("CROWDTANGLE_TOKEN not set")
		}

		ct := collector.NewCrowdTangle(cfg.Credentials.CrowdTangleToken, "", nil,
			cfg.Storage.PlatformDir("crowdtangle"), log)
		lists, err := ct.Lists(cmd.Context())
		if err != nil {
			return err
		}
		for _, l := range lists {
			fmt.Printf("%10d  %-6s %s\n", l.ID, l.Type, l.Title)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent collection runs from the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer log.Sync()

		ledger, err := manifest.Open(cfg.Storage.LedgerPath)
		if err != nil {
			return err
		}
		n, _ := cmd.Flags().GetInt("n")
		runs, err := ledger.Recent(n)
		if err != nil {
			return err
		}
		for _, r := range runs {
			line := fmt.Sprintf("%s  %-30s %-8s %8d records",
				r.StartedAt.Format("2006-01-02 15:04:05"), r.Collector, r.Status, r.Records)
			if r.Error != "" {
				line += "  " + r.Error
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	collectCmd.Flags().String("date", "", "Collect this UTC day (YYYY-MM-DD, default yesterday)")

	cleanCmd.Flags().String("label", "", "Keyword set label")
	cleanCmd.Flags().String("board", "pol", "4chan board (fourchan only)")
	cleanCmd.Flags().String("from", "", "Start date (YYYY-MM-DD)")
	cleanCmd.Flags().String("to", "", "End date (YYYY-MM-DD)")

	countCmd.Flags().String("label", "", "Keyword set label")

	topgramsCmd.Flags().String("label", "", "Keyword set label")
	topgramsCmd.Flags().StringSlice("platforms",
		[]string{"twitter", "facebook", "instagram", "reddit"},
		"Platforms to merge")

	expandCmd.Flags().Bool("text", false, "Also extract the article text")

	statusCmd.Flags().Int("n", 20, "Number of runs to show")

	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(countCmd)
	rootCmd.AddCommand(topgramsCmd)
	rootCmd.AddCommand(expandCmd)
	rootCmd.AddCommand(listsCmd)
	rootCmd.AddCommand(statusCmd)

	rootCmd.PersistentFlags().String("config", "", "Config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
