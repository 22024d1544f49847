// Command lampiran builds a Lampiran G report from local files without the
// API server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"lampiran/api/internal/agenda"
	"lampiran/api/internal/classify"
	"lampiran/api/internal/export"
	"lampiran/api/internal/logging"
	"lampiran/api/internal/permit"
	"lampiran/api/internal/ref"
	"lampiran/api/internal/sheet"
	"lampiran/api/internal/vocab"
)

type options struct {
	agenda    string
	workbooks string
	km        string
	ut        string
	noUT      bool
	vocab     string
	format    string
	out       string
	notes     string
	ocrMin    int
	logLevel  string
}

func main() {
	var opts options
	flag.StringVar(&opts.agenda, "agenda", "", "meeting agenda .docx (optional)")
	flag.StringVar(&opts.workbooks, "xlsx", "", "comma-separated district workbooks")
	flag.StringVar(&opts.km, "km", "", "processing window, e.g. 08/01/2026-27/01/2026")
	flag.StringVar(&opts.ut, "ut", "", "technical review window")
	flag.BoolVar(&opts.noUT, "no-ut", false, "skip the technical review category")
	flag.StringVar(&opts.vocab, "vocab", "", "vocabulary YAML overriding the defaults")
	flag.StringVar(&opts.format, "format", "json", "output format: json, html, pdf or docx")
	flag.StringVar(&opts.out, "out", "", "output file (default stdout)")
	flag.StringVar(&opts.notes, "notes", "", "markdown notes appended to the report")
	flag.IntVar(&opts.ocrMin, "ocr-min-chars", 200, "OCR the agenda images when its text is shorter than this")
	flag.StringVar(&opts.logLevel, "log-level", "warn", "log level")
	flag.Parse()

	logger, err := logging.New(opts.logLevel, "console")
	if err != nil {
		fmt.Fprintf(os.Stderr, "lampiran: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()

	if err := run(context.Background(), opts, logger); err != nil {
		fmt.Fprintf(os.Stderr, "lampiran: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, logger *zap.Logger) error {
	params, err := parseParams(opts)
	if err != nil {
		return err
	}
	v, err := vocab.Load(opts.vocab)
	if err != nil {
		return err
	}
	norm := ref.New(v)

	var sources []sheet.Source
	for _, path := range splitList(opts.workbooks) {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		sources = append(sources, sheet.Source{Name: filepath.Base(path), Data: data})
	}
	if len(sources) == 0 {
		return errors.New("-xlsx: at least one workbook is required")
	}
	rows, err := sheet.NewReader(v, logger).ReadAll(ctx, sources)
	if err != nil {
		return err
	}

	var idx *agenda.Index
	if opts.agenda != "" {
		data, err := os.ReadFile(opts.agenda)
		if err != nil {
			return err
		}
		text, err := agenda.Extract(ctx, data, agenda.Tesseract{Lang: "msa+eng"}, opts.ocrMin)
		if err != nil {
			return err
		}
		idx = agenda.Parse(text, norm)
		stats := idx.Stats()
		logger.Info("agenda parsed", zap.Int("blocks", stats.Blocks), zap.Int("exempt", stats.Exempt), zap.Int("tails", stats.Tails))
	}

	report := classify.New(norm).RunRows(rows, idx, params)
	logger.Info("classified",
		zap.Int("rows", report.Stats.Rows),
		zap.Int("pending", report.Stats.Pending),
		zap.Int("suppressed", report.Stats.Suppressed),
		zap.Int("total", report.Total()),
	)

	output, err := render(ctx, opts, params, report)
	if err != nil {
		return err
	}
	if opts.out == "" {
		_, err = os.Stdout.Write(output)
		return err
	}
	return os.WriteFile(opts.out, output, 0o644)
}

func parseParams(opts options) (classify.Params, error) {
	km, err := permit.ParseWindow(opts.km)
	if err != nil {
		return classify.Params{}, fmt.Errorf("-km: %w", err)
	}
	params := classify.Params{KM: km, ReviewEnabled: !opts.noUT}
	if params.ReviewEnabled {
		if params.Review, err = permit.ParseWindow(opts.ut); err != nil {
			return classify.Params{}, fmt.Errorf("-ut: %w (use -no-ut to skip)", err)
		}
	}
	return params, nil
}

func render(ctx context.Context, opts options, params classify.Params, report classify.Report) ([]byte, error) {
	if opts.format == "json" {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(out, '\n'), nil
	}
	format, err := export.ParseFormat(opts.format)
	if err != nil {
		return nil, fmt.Errorf("-format %q: %w", opts.format, err)
	}
	doc := export.Document{
		KMStart:     params.KM.Start,
		KMEnd:       params.KM.End,
		UTStart:     params.Review.Start,
		UTEnd:       params.Review.End,
		UTEnabled:   params.ReviewEnabled,
		GeneratedAt: time.Now(),
		Sections:    export.FromReport(report),
		Notes:       opts.notes,
	}
	result, err := export.NewService(nil).Render(ctx, doc, format)
	if err != nil {
		return nil, err
	}
	return result.Data, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
