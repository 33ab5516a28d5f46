// Package reconcile materialises the nightly trade/command reconciliation
// report (§4.J, supplemented beyond the distilled command grammar): a
// Parquet + CSV export per document joining trades against the commands
// that spawned them, flagging anomalies for operator review.
package reconcile

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"treasuryagent/internal/store"
)

const (
	// AnomalyMissingTrade flags an EXECUTED order command with no fill on
	// record.
	AnomalyMissingTrade = "missing_trade"
	// AnomalyOrphanTrade flags a trade row whose originating command is
	// not on record.
	AnomalyOrphanTrade = "orphan_trade"
)

var orderKinds = map[string]bool{
	"MARKET_BUY":  true,
	"MARKET_SELL": true,
	"LIMIT_BUY":   true,
	"LIMIT_SELL":  true,
}

// Anomaly is one flagged row in the reconciliation report.
type Anomaly struct {
	Type    string
	DocID   string
	CmdID   string
	TradeID string
	Details string
}

// Reconciler runs the nightly export/anomaly scan across every tracked
// document.
type Reconciler struct {
	store     *store.Store
	docIDs    func() []string
	outputDir string
	interval  time.Duration
	now       func() time.Time
	log       *slog.Logger

	mu sync.Mutex
}

// Option configures a Reconciler at construction time.
type Option func(*Reconciler)

// WithClock overrides the wall-clock now().
func WithClock(clock func() time.Time) Option {
	return func(r *Reconciler) { r.now = clock }
}

// WithLogger installs a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.log = l }
}

// WithInterval overrides the default 24h run cadence.
func WithInterval(d time.Duration) Option {
	return func(r *Reconciler) { r.interval = d }
}

// WithOutputDir overrides where CSV/Parquet artefacts are written.
func WithOutputDir(dir string) Option {
	return func(r *Reconciler) { r.outputDir = dir }
}

// New constructs a Reconciler. docIDs lists the documents to scan on each run.
func New(st *store.Store, docIDs func() []string, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:     st,
		docIDs:    docIDs,
		outputDir: filepath.Join("data", "recon"),
		interval:  24 * time.Hour,
		now:       time.Now,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run blocks, executing one reconciliation pass per interval until ctx is
// cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if err := r.RunOnce(ctx); err != nil {
			r.log.Error("reconciliation run failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce executes a single reconciliation pass across every document,
// skipping re-entrantly if a prior pass is still writing output.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	if !r.mu.TryLock() {
		r.log.Warn("reconciliation run skipped: previous run still in progress")
		return nil
	}
	defer r.mu.Unlock()

	runDir := filepath.Join(r.outputDir, r.now().Format("20060102"))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("reconcile: ensure output dir: %w", err)
	}

	for _, docID := range r.docIDs() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := r.reconcileDocument(runDir, docID); err != nil {
			r.log.Error("reconcile document failed", "doc_id", docID, "error", err)
		}
	}
	return nil
}

func (r *Reconciler) reconcileDocument(runDir, docID string) error {
	cmds, err := r.store.ListCommands(docID)
	if err != nil {
		return fmt.Errorf("list commands: %w", err)
	}
	trades, err := r.store.ListTrades(docID)
	if err != nil {
		return fmt.Errorf("list trades: %w", err)
	}

	cmdByID := make(map[string]store.Command, len(cmds))
	for _, c := range cmds {
		cmdByID[c.CmdID] = c
	}
	tradesByCmd := make(map[string][]store.Trade, len(trades))
	for _, t := range trades {
		tradesByCmd[t.CmdID] = append(tradesByCmd[t.CmdID], t)
	}

	var anomalies []Anomaly
	for _, c := range cmds {
		if c.Status != store.StatusExecuted || !orderKinds[c.ParsedKind] {
			continue
		}
		if len(tradesByCmd[c.CmdID]) == 0 {
			anomalies = append(anomalies, Anomaly{
				Type: AnomalyMissingTrade, DocID: docID, CmdID: c.CmdID,
				Details: fmt.Sprintf("command %s executed as %s with no recorded fill", c.CmdID, c.ParsedKind),
			})
		}
	}
	for _, t := range trades {
		if _, ok := cmdByID[t.CmdID]; !ok {
			anomalies = append(anomalies, Anomaly{
				Type: AnomalyOrphanTrade, DocID: docID, TradeID: t.TradeID,
				Details: fmt.Sprintf("trade %s references unknown command %s", t.TradeID, t.CmdID),
			})
		}
	}

	if len(trades) == 0 {
		return nil
	}
	rows := make([]reconRow, 0, len(trades))
	anomalyByCmd := make(map[string]string)
	for _, a := range anomalies {
		if a.CmdID != "" {
			anomalyByCmd[a.CmdID] = a.Type
		}
	}
	for _, t := range trades {
		rows = append(rows, reconRow{
			TradeID:   t.TradeID,
			DocID:     t.DocID,
			CmdID:     t.CmdID,
			Side:      string(t.Side),
			Qty:       t.Qty,
			Price:     t.Price,
			Notional:  t.Notional,
			Fee:       t.Fee,
			TxID:      t.TxID,
			At:        t.At.Format(time.RFC3339),
			AnomalyTag: anomalyByCmd[t.CmdID],
		})
	}

	slug := slugify(docID)
	if err := writeCSV(filepath.Join(runDir, slug+".csv"), rows); err != nil {
		return err
	}
	if err := writeParquet(filepath.Join(runDir, slug+".parquet"), rows); err != nil {
		return err
	}
	for _, a := range anomalies {
		r.log.Warn("reconciliation anomaly", "type", a.Type, "doc_id", a.DocID, "cmd_id", a.CmdID, "trade_id", a.TradeID, "details", a.Details)
	}
	return nil
}

type reconRow struct {
	TradeID    string  `parquet:"name=trade_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	DocID      string  `parquet:"name=doc_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	CmdID      string  `parquet:"name=cmd_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Side       string  `parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8"`
	Qty        float64 `parquet:"name=qty, type=DOUBLE"`
	Price      float64 `parquet:"name=price, type=DOUBLE"`
	Notional   float64 `parquet:"name=notional, type=DOUBLE"`
	Fee        float64 `parquet:"name=fee, type=DOUBLE"`
	TxID       string  `parquet:"name=tx_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	At         string  `parquet:"name=at, type=BYTE_ARRAY, convertedtype=UTF8"`
	AnomalyTag string  `parquet:"name=anomaly_tag, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func writeCSV(path string, rows []reconRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	header := []string{"trade_id", "doc_id", "cmd_id", "side", "qty", "price", "notional", "fee", "tx_id", "at", "anomaly_tag"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.TradeID, row.DocID, row.CmdID, row.Side,
			fmt.Sprintf("%.8f", row.Qty), fmt.Sprintf("%.8f", row.Price),
			fmt.Sprintf("%.8f", row.Notional), fmt.Sprintf("%.8f", row.Fee),
			row.TxID, row.At, row.AnomalyTag,
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func writeParquet(path string, rows []reconRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(reconRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("parquet schema: %w", err)
	}
	pw.RowGroupSize = 64 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		r := row
		if err := pw.Write(&r); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("parquet flush: %w", err)
	}
	return file.Close()
}

func slugify(docID string) string {
	trimmed := strings.ToLower(strings.TrimSpace(docID))
	replacer := strings.NewReplacer("/", "-", "\\", "-", " ", "-")
	return replacer.Replace(trimmed)
}
