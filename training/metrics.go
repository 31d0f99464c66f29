package training

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// File names written into the log directory.
const (
	MetricsFile = "metrics.jsonl"
	ReportFile  = "report.html"
)

// Record is the monitoring sample emitted at the end of every episode.
type Record struct {
	RunID           string    `json:"runId"`
	Time            time.Time `json:"time"`
	Frame           int       `json:"frame"`
	Episode         int       `json:"episode"`
	Reward100       float64   `json:"cumulativeReward100"`
	Eaten100        float64   `json:"eaten100"`
	Epsilon         float64   `json:"epsilon"`
	FramesPerSecond float64   `json:"framesPerSecond"`
	Loss            float64   `json:"loss"`
}

// Sink receives monitoring records.
type Sink interface {
	Write(r Record) error
	Close() error
}

// FileSink appends records as JSON lines to dir/metrics.jsonl and renders an
// HTML chart report to dir/report.html on Close.
type FileSink struct {
	dir     string
	runID   string
	f       *os.File
	enc     *json.Encoder
	records []Record
}

// NewFileSink creates dir if needed and opens the metrics file for append.
func NewFileSink(dir, runID string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, MetricsFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open metrics file: %w", err)
	}
	return &FileSink{dir: dir, runID: runID, f: f, enc: json.NewEncoder(f)}, nil
}

// Write implements Sink.
func (s *FileSink) Write(r Record) error {
	if r.RunID == "" {
		r.RunID = s.runID
	}
	s.records = append(s.records, r)
	return s.enc.Encode(r)
}

// Close implements Sink.
func (s *FileSink) Close() error {
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("failed to close metrics file: %w", err)
	}
	f, err := os.Create(filepath.Join(s.dir, ReportFile))
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := WriteReport(f, s.runID, s.records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadRecords parses a metrics.jsonl stream.
func ReadRecords(r io.Reader) ([]Record, error) {
	var out []Record
	dec := json.NewDecoder(r)
	for dec.More() {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			return out, fmt.Errorf("failed to decode metrics record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// WriteReport renders one line chart per scalar, keyed by frame count.
func WriteReport(w io.Writer, runID string, records []Record) error {
	frames := make([]string, len(records))
	for i, r := range records {
		frames[i] = strconv.Itoa(r.Frame)
	}

	series := []struct {
		title string
		value func(Record) float64
	}{
		{"cumulativeReward100", func(r Record) float64 { return r.Reward100 }},
		{"eaten100", func(r Record) float64 { return r.Eaten100 }},
		{"epsilon", func(r Record) float64 { return r.Epsilon }},
		{"framesPerSecond", func(r Record) float64 { return r.FramesPerSecond }},
		{"loss", func(r Record) float64 { return r.Loss }},
	}

	page := components.NewPage()
	page.PageTitle = "snake-dqn " + runID
	for _, s := range series {
		items := make([]opts.LineData, len(records))
		for i, r := range records {
			items[i] = opts.LineData{Value: s.value(r)}
		}
		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithTitleOpts(opts.Title{Title: s.title, Subtitle: "run " + runID}),
			charts.WithXAxisOpts(opts.XAxis{Name: "frame"}),
		)
		line.SetXAxis(frames).AddSeries(s.title, items)
		page.AddCharts(line)
	}
	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}
