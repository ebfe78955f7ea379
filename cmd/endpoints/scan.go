package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/FranksOps/endpoints/internal/analyzer"
	"github.com/FranksOps/endpoints/internal/endpoint"
	"github.com/FranksOps/endpoints/internal/history"
	"github.com/FranksOps/endpoints/internal/inventory"
	"github.com/FranksOps/endpoints/internal/metrics"
	"github.com/FranksOps/endpoints/internal/report"
	"github.com/FranksOps/endpoints/internal/scanner"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// scanOptions is the resolved configuration of one scan command.
type scanOptions struct {
	HARFiles    []string
	Raw         []string
	Scanner     scanner.Config
	Sinks       []sinkSpec
	Filter      string
	Report      string
	Top         int
	MetricsPort int
	LogLevel    string
}

func newScanCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [har files...]",
		Short: "Scan HAR captures and raw responses for endpoint URLs",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := resolveScanOptions(v, args)
			if err != nil {
				return err
			}
			logger, err := newLogger(opts.LogLevel)
			if err != nil {
				return err
			}
			return runScan(cmd.Context(), opts, cmd.OutOrStdout(), logger)
		},
	}

	f := cmd.Flags()
	f.Int("batch-size", scanner.DefaultBatchSize, "items between progress updates (<=0: single batch)")
	f.Int("max-response-bytes", scanner.DefaultMaxResponseBytes, "skip response bodies larger than this")
	f.Bool("html-attributes", false, "also read link attributes of HTML documents")
	f.Bool("script-calls", false, "also read fetch/axios/XHR call arguments in scripts")
	f.Bool("framework-routes", false, "also read express/fastify/react route declarations in scripts")
	f.Bool("dot-relative", false, "also read ./ and ../ references outside HTML")
	f.Bool("skip-regex-literals", false, "drop relative hits that look like JavaScript regex literals")
	f.StringSlice("raw", nil, "raw HTTP response dump as url=path (repeatable)")
	f.StringSlice("out", nil, "export target as kind:target, kind one of csv, json, sqlite, postgres, xlsx (repeatable)")
	f.String("filter", "", "only export and report records containing this keyword")
	f.String("report", "text", "report format: text, json, html or none")
	f.Int("top", 20, "endpoints listed in the report (<=0: all)")
	f.Int("metrics-port", 0, "serve prometheus metrics on this port (0: off)")

	return cmd
}

func resolveScanOptions(v *viper.Viper, args []string) (scanOptions, error) {
	opts := scanOptions{
		HARFiles: args,
		Raw:      v.GetStringSlice("raw"),
		Scanner: scanner.Config{
			BatchSize:        v.GetInt("batch-size"),
			MaxResponseBytes: v.GetInt("max-response-bytes"),
			Extract: analyzer.Options{
				HTMLAttributes:    v.GetBool("html-attributes"),
				ScriptCalls:       v.GetBool("script-calls"),
				FrameworkRoutes:   v.GetBool("framework-routes"),
				DotRelative:       v.GetBool("dot-relative"),
				SkipRegexLiterals: v.GetBool("skip-regex-literals"),
			},
		},
		Filter:      v.GetString("filter"),
		Report:      strings.ToLower(v.GetString("report")),
		Top:         v.GetInt("top"),
		MetricsPort: v.GetInt("metrics-port"),
		LogLevel:    v.GetString("log-level"),
	}

	for _, out := range v.GetStringSlice("out") {
		spec, err := parseSink(out)
		if err != nil {
			return opts, err
		}
		opts.Sinks = append(opts.Sinks, spec)
	}

	switch opts.Report {
	case "text", "json", "html", "none":
	default:
		return opts, fmt.Errorf("unknown report format %q", opts.Report)
	}

	if len(opts.HARFiles) == 0 && len(opts.Raw) == 0 {
		return opts, fmt.Errorf("nothing to scan: pass HAR files or --raw url=path")
	}
	return opts, nil
}

// historySource loads every HAR file and raw dump on the scan goroutine.
func historySource(harFiles, raw []string, logger *slog.Logger) scanner.Source {
	return func(ctx context.Context) ([]endpoint.Item, error) {
		var items []endpoint.Item
		for _, path := range harFiles {
			if err := ctx.Err(); err != nil {
				return items, nil
			}
			loaded, err := history.LoadHARFile(path)
			if err != nil {
				return nil, err
			}
			logger.Debug("loaded har file", "path", path, "entries", len(loaded))
			items = append(items, loaded...)
		}

		for _, spec := range raw {
			// query strings carry '=', file paths rarely do
			i := strings.LastIndex(spec, "=")
			if i <= 0 {
				return nil, fmt.Errorf("raw response %q: want url=path", spec)
			}
			requestURL, path := spec[:i], spec[i+1:]
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read raw response: %w", err)
			}
			msg, err := history.ReadRawResponse(requestURL, data)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			items = append(items, endpoint.MessageItem(msg))
		}
		return items, nil
	}
}

func runScan(ctx context.Context, opts scanOptions, out io.Writer, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.MetricsPort > 0 {
		srv := metrics.Start(opts.MetricsPort, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Stop(shutdownCtx)
		}()
		logger.Info("serving metrics", "port", opts.MetricsPort)
	}

	s := scanner.New(opts.Scanner, inventory.New(), history.NewAdapter(logger), logger)
	ctl := scanner.NewController(s, logger, scanner.WithProgress(func(p endpoint.Progress) {
		logger.Debug("scan progress",
			"processed", p.ProcessedItems,
			"total", p.TotalItems,
			"errors", p.ErrorCount,
			"unique", p.UniqueEndpoints,
		)
	}))

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	if !ctl.Start(historySource(opts.HARFiles, opts.Raw, logger)) {
		return fmt.Errorf("scan did not start: %s", ctl.Status())
	}

	interrupted := false
wait:
	for {
		select {
		case <-ctl.Done():
			break wait
		case <-ctx.Done():
			ctl.Stop()
			<-ctl.Done()
			break wait
		case sig := <-sigs:
			if interrupted {
				logger.Warn("second signal, exiting without waiting", "signal", sig.String())
				os.Exit(130)
			}
			interrupted = true
			logger.Warn("stopping scan, interrupt again to abort", "signal", sig.String())
			ctl.Stop()
		}
	}

	logger.Info(ctl.Status())

	res, ok := ctl.Result()
	if !ok || ctl.State() == scanner.StateFailed {
		return fmt.Errorf("scan failed: %s", ctl.Status())
	}
	records := ctl.Filtered(opts.Filter)

	if err := writeReport(out, opts.Report, report.Summarize(res, records, opts.Top)); err != nil {
		return err
	}

	if len(opts.Sinks) == 0 {
		return nil
	}
	exportCtx := context.WithoutCancel(ctx)
	if err := exportAll(exportCtx, openSink, opts.Sinks, res.ID, records); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	logger.Info("exported records", "records", len(records), "outputs", len(opts.Sinks))
	return nil
}

func writeReport(w io.Writer, format string, summary report.Summary) error {
	switch format {
	case "json":
		return report.WriteJSON(w, summary)
	case "html":
		return report.WriteHTML(w, summary)
	case "none":
		return nil
	default:
		return report.WriteText(w, summary)
	}
}
