package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/opensource-finance/cardiorisk/internal/pipeline"
)

// labelColumn holds the ground truth in labelled heart datasets.
const labelColumn = "HeartDisease"

// labelledRecord is one dataset row and its known outcome.
type labelledRecord struct {
	Fields  map[string]string
	Disease bool
}

// predictReply is the part of the /predict response the benchmark reads.
type predictReply struct {
	Prediction  int      `json:"prediction"`
	Probability float64  `json:"probability"`
	RiskLevel   string   `json:"risk_level"`
	RiskFactors []string `json:"risk_factors"`
}

// benchMetrics tracks benchmark results.
type benchMetrics struct {
	TruePositives  int64 // disease predicted as 1
	FalsePositives int64
	TrueNegatives  int64
	FalseNegatives int64 // missed disease

	TotalProcessed int64
	TotalDisease   int64
	TotalHealthy   int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

// benchScores are the detection metrics derived from the confusion matrix.
type benchScores struct {
	Precision float64
	Recall    float64
	F1        float64
	Accuracy  float64
}

func (m *benchMetrics) scores() benchScores {
	var s benchScores
	if m.TruePositives+m.FalsePositives > 0 {
		s.Precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}
	if m.TruePositives+m.FalseNegatives > 0 {
		s.Recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}
	if s.Precision+s.Recall > 0 {
		s.F1 = 2 * (s.Precision * s.Recall) / (s.Precision + s.Recall)
	}
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		s.Accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}
	return s
}

func benchmarkCommand() *cli.Command {
	return &cli.Command{
		Name:  "benchmark",
		Usage: "Send a labelled heart CSV to a running server and report detection metrics",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "csv",
				Usage:    "Path to a labelled CSV with a HeartDisease column",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "url",
				Usage: "CardioRisk base URL",
				Value: "http://localhost:5000",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum records to send (0 = all)",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Number of concurrent workers",
				Value: 10,
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Print each record result",
			},
		},
		Action: runBenchmarkCommand,
	}
}

func runBenchmarkCommand(ctx context.Context, cmd *cli.Command) error {
	csvPath := cmd.String("csv")
	baseURL := strings.TrimRight(cmd.String("url"), "/")
	limit := int(cmd.Int("limit"))
	workers := int(cmd.Int("workers"))

	out := os.Stdout
	fmt.Fprintf(out, "\nCSV File:    %s\n", csvPath)
	fmt.Fprintf(out, "Server URL:  %s\n", baseURL)
	fmt.Fprintf(out, "Workers:     %d\n", workers)
	fmt.Fprintf(out, "Limit:       %d\n\n", limit)

	client := &http.Client{Timeout: 10 * time.Second}
	if err := checkHealth(ctx, client, baseURL); err != nil {
		return fmt.Errorf("server not reachable at %s: %w", baseURL, err)
	}
	fmt.Fprintln(out, "server is healthy")

	f, err := os.Open(csvPath)
	if err != nil {
		return err
	}
	defer f.Close()

	records, err := readLabelled(f, limit)
	if err != nil {
		return fmt.Errorf("read %s: %w", csvPath, err)
	}
	if len(records) == 0 {
		return fmt.Errorf("%s has no labelled rows", csvPath)
	}
	fmt.Fprintf(out, "loaded %d records\n", len(records))

	var verbose io.Writer
	if cmd.Bool("verbose") {
		verbose = out
	}

	start := time.Now()
	m := runBenchmark(ctx, client, records, baseURL, workers, verbose)
	printBenchmarkResults(out, m, time.Since(start))
	return nil
}

func checkHealth(ctx context.Context, client *http.Client, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// readLabelled reads a labelled table. Rows with an unreadable label are skipped.
func readLabelled(r io.Reader, limit int) ([]labelledRecord, error) {
	table, err := pipeline.ReadTable(r)
	if err != nil {
		return nil, err
	}
	var found bool
	for _, c := range table.Columns {
		if c == labelColumn {
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("missing %s column", labelColumn)
	}

	var records []labelledRecord
	for _, row := range table.Rows {
		var disease bool
		switch row[labelColumn] {
		case "1":
			disease = true
		case "0":
		default:
			continue
		}
		delete(row, labelColumn)
		records = append(records, labelledRecord{Fields: row, Disease: disease})
		if limit > 0 && len(records) >= limit {
			break
		}
	}
	return records, nil
}

func runBenchmark(ctx context.Context, client *http.Client, records []labelledRecord, baseURL string, numWorkers int, verbose io.Writer) *benchMetrics {
	m := &benchMetrics{}
	if numWorkers < 1 {
		numWorkers = 1
	}

	var printMu sync.Mutex
	work := make(chan labelledRecord, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for rec := range work {
				start := time.Now()
				reply, err := predictRecord(ctx, client, baseURL, rec)
				atomic.AddInt64(&m.ProcessingTimeMs, time.Since(start).Milliseconds())
				atomic.AddInt64(&m.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&m.TotalErrors, 1)
					if verbose != nil {
						printMu.Lock()
						fmt.Fprintf(verbose, "ERROR: %v\n", err)
						printMu.Unlock()
					}
					continue
				}

				if rec.Disease {
					atomic.AddInt64(&m.TotalDisease, 1)
				} else {
					atomic.AddInt64(&m.TotalHealthy, 1)
				}

				predicted := reply.Prediction == 1
				switch {
				case predicted && rec.Disease:
					atomic.AddInt64(&m.TruePositives, 1)
				case predicted && !rec.Disease:
					atomic.AddInt64(&m.FalsePositives, 1)
				case !predicted && !rec.Disease:
					atomic.AddInt64(&m.TrueNegatives, 1)
				default:
					atomic.AddInt64(&m.FalseNegatives, 1)
				}

				if verbose != nil {
					mark := "ok  "
					if predicted != rec.Disease {
						mark = "miss"
					}
					printMu.Lock()
					fmt.Fprintf(verbose, "%s age %-3s %-1s | disease: %-5v | predicted: %d (%6.2f%%, %s) | %s\n",
						mark,
						rec.Fields["Age"],
						rec.Fields["Sex"],
						rec.Disease,
						reply.Prediction,
						reply.Probability,
						reply.RiskLevel,
						strings.Join(reply.RiskFactors, ", "),
					)
					printMu.Unlock()
				}
			}
		}()
	}

	for _, rec := range records {
		work <- rec
	}
	close(work)
	wg.Wait()

	return m
}

func predictRecord(ctx context.Context, client *http.Client, baseURL string, rec labelledRecord) (*predictReply, error) {
	body, err := json.Marshal(rec.Fields)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var reply predictReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func printBenchmarkResults(w io.Writer, m *benchMetrics, duration time.Duration) {
	fmt.Fprintln(w, "\nBENCHMARK RESULTS")

	fmt.Fprintf(w, "\nDATASET\n")
	fmt.Fprintf(w, "   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Fprintf(w, "   With Disease:     %d\n", m.TotalDisease)
	fmt.Fprintf(w, "   Without Disease:  %d\n", m.TotalHealthy)
	fmt.Fprintf(w, "   Errors:           %d\n", m.TotalErrors)

	fmt.Fprintf(w, "\nCONFUSION MATRIX\n")
	fmt.Fprintln(w, "                        Predicted")
	fmt.Fprintln(w, "                      1          0")
	fmt.Fprintf(w, "   Actual  1   %8d   %8d   (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Fprintf(w, "           0   %8d   %8d   (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

	s := m.scores()
	fmt.Fprintf(w, "\nDETECTION METRICS\n")
	fmt.Fprintf(w, "   Precision:  %.4f\n", s.Precision)
	fmt.Fprintf(w, "   Recall:     %.4f\n", s.Recall)
	fmt.Fprintf(w, "   F1-Score:   %.4f\n", s.F1)
	fmt.Fprintf(w, "   Accuracy:   %.4f\n", s.Accuracy)

	fmt.Fprintf(w, "\nPERFORMANCE\n")
	fmt.Fprintf(w, "   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		rps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Fprintf(w, "   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Fprintf(w, "   Throughput:       %.2f records/sec\n", rps)
	}
	fmt.Fprintln(w)
}
