package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"refcite/internal/document"
	"refcite/internal/matcher"
	"refcite/internal/references"
	"refcite/internal/service"
)

type runFlags struct {
	doc         string
	refs        []string
	out         string
	decisions   string
	metricsAddr string
}

func (a *app) newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run [reference files...]",
		Short: "Mark the paragraphs of a draft that need a citation",
		Long: `Chunk and index the reference texts, match every paragraph of the draft
against them and write the draft back with [[cite:<reference>]] markers.
Resolve the markers afterwards with 'refcite finalize'.`,
		Example: `  refcite run --doc draft.txt --refs 'refs/*.txt' --out marked.txt --decisions decisions.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			stop := startMetricsServer(f.metricsAddr, a.logger)
			defer stop()

			report, paragraphs, err := a.execute(cmd.Context(), f.doc, append(f.refs, args...))
			if err != nil {
				return err
			}
			marked := document.Render(document.InsertMarkers(paragraphs, report.Citations()))
			if err := writeOutput(cmd.OutOrStdout(), f.out, marked); err != nil {
				return err
			}
			if f.decisions != "" {
				if err := writeJSON(f.decisions, report); err != nil {
					return fmt.Errorf("write decisions: %w", err)
				}
			}
			printSummary(cmd.ErrOrStderr(), report, len(paragraphs))
			return nil
		},
	}
	cmd.Flags().StringVarP(&f.doc, "doc", "d", "", "draft document (plain text, blank-line separated paragraphs)")
	cmd.Flags().StringSliceVarP(&f.refs, "refs", "r", nil, "reference files or glob patterns (.txt, .md)")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "write the marked document here instead of stdout")
	cmd.Flags().StringVar(&f.decisions, "decisions", "", "write every paragraph decision as JSON to this file")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running (e.g. :9090)")
	_ = cmd.MarkFlagRequired("doc")
	return cmd
}

// execute runs the pipeline over a draft file and reference files.
func (a *app) execute(ctx context.Context, docPath string, refs []string) (*service.Report, []string, error) {
	if len(refs) == 0 {
		return nil, nil, errors.New("no reference files given")
	}
	paragraphs, err := document.ReadParagraphsFile(docPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read document: %w", err)
	}
	if len(paragraphs) == 0 {
		return nil, nil, fmt.Errorf("document %s has no paragraphs", docPath)
	}
	texts := references.LoadTexts(refs, a.logger)

	comps, err := buildComponents(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, nil, err
	}
	defer comps.Close()

	report, err := comps.service.RunDetailed(ctx, texts, paragraphs)
	if err != nil {
		return nil, nil, err
	}
	return report, paragraphs, nil
}

func startMetricsServer(addr string, logger *zap.Logger) (stop func()) {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func writeOutput(stdout io.Writer, path, content string) error {
	if path == "" {
		_, err := io.WriteString(stdout, content)
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

var (
	citedText   = color.New(color.FgGreen).SprintFunc()
	blockedText = color.New(color.FgYellow).SprintFunc()
	headerText  = color.New(color.Bold).SprintFunc()
)

func printSummary(w io.Writer, r *service.Report, paragraphs int) {
	fmt.Fprintf(w, "%s %d/%d paragraphs cited from %d references (%d chunks, %s, %s)\n",
		headerText("refcite"), r.Cited, paragraphs, r.References, r.Chunks, r.Embedder, r.Elapsed.Round(time.Millisecond))
	for _, d := range r.Decisions {
		switch {
		case d.Decision.CitationRequired:
			fmt.Fprintf(w, "  %s paragraph %d -> %s (%.3f)\n", citedText("cited"), d.Index, d.Decision.ReferenceID, d.Decision.ConfidenceScore)
		case d.Decision.Reason == matcher.ReasonBlocked:
			fmt.Fprintf(w, "  %s paragraph %d: %s\n", blockedText("skip"), d.Index, d.Decision.Reason)
		}
	}
}
