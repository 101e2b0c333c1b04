package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dhcgn/mail-campaign/bounce"
	"github.com/dhcgn/mail-campaign/config"
	"github.com/dhcgn/mail-campaign/filter"
	"github.com/dhcgn/mail-campaign/imap"
	"github.com/dhcgn/mail-campaign/mbox"
	"github.com/dhcgn/mail-campaign/progress"
	"github.com/dhcgn/mail-campaign/report"
	"github.com/dhcgn/mail-campaign/scanner"
	"github.com/dhcgn/mail-campaign/state"
	"github.com/dhcgn/mail-campaign/stats"
	"github.com/dhcgn/mail-campaign/suppression"
)

var scanCmd = &cobra.Command{
	Use:   "scan-bounces",
	Short: "Recover rejected recipient addresses from bounce messages",
	Long: "Reads an mbox archive or an IMAP folder of delivery failure notifications and " +
		"lists every recipient address they reject, optionally exporting them to CSV and " +
		"recording them in a suppression database.",
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	if err := config.RegisterScanFlags(scanCmd); err != nil {
		panic(fmt.Sprintf("register scan flags: %v", err))
	}
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadScan(cmd)
	if err != nil {
		return err
	}

	logger, runID, cleanup, err := startRun(cfg.Common, "scan-bounces")
	if err != nil {
		return err
	}
	defer func() {
		_ = cleanup()
	}()

	ctx := cmd.Context()
	source := cfg.MboxPath
	if source == "" {
		source = "imap://" + cfg.IMAP.Host + "/" + cfg.IMAP.Mailbox
	}
	logger.Info("starting bounce scan", "source", source)

	opts, f, closeCache, err := scannerOptions(cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	var (
		src   scanner.Source
		total int
	)
	if cfg.MboxPath != "" {
		if n, err := mbox.CountMessages(cfg.MboxPath); err == nil {
			total = n
		}
	} else {
		imapSrc, err := openIMAP(ctx, cfg, source, logger)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				pterm.Warning.Println("Scan interrupted while connecting")
			}
			return err
		}
		src = imapSrc
		total = imapSrc.Len()
	}

	bar := progress.New("Scanning", total, cfg.LogLevel == "info")
	opts.Observer = bar.Observe
	s := scanner.New(opts)

	started := time.Now()
	var res scanner.Result
	if src != nil {
		res, err = s.Scan(ctx, src)
	} else {
		res, err = s.ScanMbox(ctx, cfg.MboxPath)
	}
	bar.Stop()

	interrupted := errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
	if err != nil && !interrupted {
		var openErr *scanner.ArchiveOpenError
		if errors.As(err, &openErr) {
			logger.Error("archive could not be read", "source", source, "error", err)
		}
		return err
	}

	logger.Info("stats summary", append(res.Summary.LogAttrs(), "unique", res.Addresses.Len())...)
	progress.PrintSummary(stats.StageScan, res.Summary, time.Since(started))
	addresses := report.Sorted(res.Addresses)
	printAddresses(addresses)
	printRuleHits(os.Stdout, opts.Parser.Rules(), res.RuleHits)
	if f != nil {
		pterm.DefaultSection.Println("Filter hits")
		stats.PrettyPrintTop(os.Stdout, f.Hits(), cfg.Top)
	}

	if interrupted {
		pterm.Warning.Println("Scan interrupted; results are partial and were not saved")
		return err
	}

	if cfg.Output != "" {
		if err := report.ExportCSV(cfg.Output, addresses); err != nil {
			return err
		}
		pterm.Success.Printf("Saved %d addresses to %s\n", len(addresses), cfg.Output)
		logger.Info("exported rejected addresses", "path", cfg.Output, "count", len(addresses))
	}

	if cfg.SuppressDB != "" {
		added, err := recordSuppressed(ctx, cfg.SuppressDB, source, runID, addresses)
		if err != nil {
			return err
		}
		pterm.Success.Printf("Suppression list: %d new of %d addresses\n", added, len(addresses))
		logger.Info("recorded suppressed addresses", "db", cfg.SuppressDB, "added", added)
	}

	return nil
}

// openIMAP wraps connection failures in ArchiveOpenError unless ctx ended first.
func openIMAP(ctx context.Context, cfg config.Scan, source string, logger *slog.Logger) (*imap.Source, error) {
	src, err := imap.Open(ctx, imap.Options{
		Host:               cfg.IMAP.Host,
		Port:               cfg.IMAP.Port,
		Username:           cfg.IMAP.User,
		Password:           cfg.IMAP.Pass,
		UseTLS:             cfg.IMAP.UseTLS,
		InsecureSkipVerify: cfg.IMAP.InsecureSkipVerify,
		Mailbox:            cfg.IMAP.Mailbox,
	}, logger)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &scanner.ArchiveOpenError{Path: source, Err: err}
	}
	return src, nil
}

// scannerOptions builds the parsing pipeline. The returned func closes the
// scan cache and must always be called.
func scannerOptions(cfg config.Scan, logger *slog.Logger) (scanner.Options, *filter.Filter, func(), error) {
	noop := func() {}

	parser, err := bounce.NewParser(bounce.ParserOptions{
		ExtraRules: cfg.ExtraRules,
		Ignore:     cfg.IgnoreAddresses,
	})
	if err != nil {
		return scanner.Options{}, nil, noop, err
	}

	contentTypes := []string{bounce.ContentTypePlain}
	if cfg.IncludeDeliveryStatus {
		contentTypes = append(contentTypes, bounce.ContentTypeDeliveryStatus)
	}

	opts := scanner.Options{
		Logger:    logger,
		Extractor: bounce.NewExtractor(contentTypes...),
		Parser:    parser,
	}

	filterOpts := filter.Options{
		IncludeHeader: cfg.IncludeHeader,
		IncludeBody:   cfg.IncludeBody,
		ExcludeHeader: cfg.ExcludeHeader,
		ExcludeBody:   cfg.ExcludeBody,
		BouncesOnly:   cfg.BouncesOnly,
	}
	var f *filter.Filter
	if filterOpts.Active() {
		f, err = filter.New(filterOpts)
		if err != nil {
			return scanner.Options{}, nil, noop, fmt.Errorf("create filter: %w", err)
		}
		opts.Filter = f
	}

	if cfg.StateDir == "" {
		return opts, f, noop, nil
	}
	cache, err := state.OpenFileCache(cfg.StateDir)
	if err != nil {
		return scanner.Options{}, nil, noop, err
	}
	logger.Debug("scan cache loaded", "path", cache.Path(), "entries", cache.Len())
	opts.Cache = cache
	return opts, f, func() {
		if err := cache.Close(); err != nil {
			logger.Warn("close scan cache", "error", err)
		}
	}, nil
}

func recordSuppressed(ctx context.Context, dbPath, source, runID string, addresses []string) (int, error) {
	store, err := suppression.Open(dbPath)
	if err != nil {
		return 0, err
	}
	defer store.Close()
	return store.Add(ctx, source, runID, addresses)
}

func printAddresses(addresses []string) {
	pterm.DefaultSection.Printf("Rejected addresses (%d)\n", len(addresses))
	if len(addresses) == 0 {
		pterm.Info.Println("No rejected addresses found")
		return
	}

	data := pterm.TableData{{"#", report.Header}}
	for i, a := range addresses {
		data = append(data, []string{fmt.Sprint(i + 1), a})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		for _, a := range addresses {
			fmt.Println(a)
		}
	}
}

// printRuleHits lists every rule, including those that matched nothing.
func printRuleHits(w io.Writer, rules []string, hits map[string]int) {
	type pair struct {
		Rule  string
		Count int
	}
	pairs := make([]pair, 0, len(rules))
	for _, r := range rules {
		pairs = append(pairs, pair{r, hits[r]})
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].Count > pairs[j].Count
	})

	fmt.Fprintln(w, "Extraction rule hits:")
	for _, p := range pairs {
		if p.Count > 0 {
			fmt.Fprintf(w, "  ✓ %s: %d hits\n", p.Rule, p.Count)
		} else {
			fmt.Fprintf(w, "  ✗ %s: 0 hits\n", p.Rule)
		}
	}
}
