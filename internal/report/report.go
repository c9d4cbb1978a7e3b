package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"gonum.org/v1/gonum/stat"

	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/shared/id"
	"github.com/rn1024/creatoria-miniapp-mcp-sub000/internal/shared/types"
)

// Format selects the report encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat maps a config value to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown report format %q", s)
	}
}

// Document is the rendered session report.
type Document struct {
	ID         string        `json:"id" yaml:"id"`
	SessionID  string        `json:"session_id" yaml:"session_id"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	EndedAt    time.Time     `json:"ended_at" yaml:"ended_at"`
	DurationMs int64         `json:"duration_ms" yaml:"duration_ms"`
	Summary    Summary       `json:"summary" yaml:"summary"`
	Tools      []ToolSummary `json:"tools" yaml:"tools"`
	Failures   []Failure     `json:"failures" yaml:"failures"`
	Calls      []Call        `json:"calls" yaml:"calls"`
}

// Summary aggregates every recorded call.
type Summary struct {
	Total         int     `json:"total" yaml:"total"`
	Succeeded     int     `json:"succeeded" yaml:"succeeded"`
	Failed        int     `json:"failed" yaml:"failed"`
	SuccessRate   float64 `json:"success_rate" yaml:"success_rate"`
	TotalCallMs   int64   `json:"total_call_ms" yaml:"total_call_ms"`
	AverageCallMs float64 `json:"average_call_ms" yaml:"average_call_ms"`
}

// ToolSummary aggregates calls of one tool.
type ToolSummary struct {
	Name     string  `json:"name" yaml:"name"`
	Calls    int     `json:"calls" yaml:"calls"`
	Failures int     `json:"failures" yaml:"failures"`
	TotalMs  int64   `json:"total_ms" yaml:"total_ms"`
	AvgMs    float64 `json:"avg_ms" yaml:"avg_ms"`
	MaxMs    int64   `json:"max_ms" yaml:"max_ms"`
	P50Ms    float64 `json:"p50_ms" yaml:"p50_ms"`
	P95Ms    float64 `json:"p95_ms" yaml:"p95_ms"`
}

// Failure is one failed call.
type Failure struct {
	Timestamp    time.Time `json:"timestamp" yaml:"timestamp"`
	Tool         string    `json:"tool" yaml:"tool"`
	Message      string    `json:"message" yaml:"message"`
	SnapshotPath string    `json:"snapshot_path,omitempty" yaml:"snapshot_path,omitempty"`
}

// Call is one recorded call in chronological order.
type Call struct {
	Timestamp  time.Time   `json:"timestamp" yaml:"timestamp"`
	Tool       string      `json:"tool" yaml:"tool"`
	DurationMs int64       `json:"duration_ms" yaml:"duration_ms"`
	Success    bool        `json:"success" yaml:"success"`
	Result     interface{} `json:"result,omitempty" yaml:"result,omitempty"`
	Error      string      `json:"error,omitempty" yaml:"error,omitempty"`
}

// Generator renders session reports. It implements the session Reporter port.
type Generator struct {
	format Format
}

// NewGenerator creates a generator for the given format.
func NewGenerator(format Format) *Generator {
	if format == "" {
		format = FormatJSON
	}
	return &Generator{format: format}
}

// Format returns the configured encoding
func (g *Generator) Format() Format {
	return g.format
}

// Filename returns the report file name inside the session directory.
func (g *Generator) Filename() string {
	return "report." + string(g.format)
}

// Generate renders r and writes it through out. It returns the file path.
func (g *Generator) Generate(ctx context.Context, r types.SessionReport, out types.OutputManager) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := g.Render(Build(r))
	if err != nil {
		return "", err
	}

	path, err := out.WriteFile(g.Filename(), data)
	if err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// Render encodes a document in the configured format.
func (g *Generator) Render(doc Document) ([]byte, error) {
	switch g.format {
	case FormatYAML:
		data, err := yaml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encode yaml report: %w", err)
		}
		return data, nil
	case FormatJSON:
		data, err := sonic.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode json report: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unknown report format %q", g.format)
	}
}

// Build aggregates a session report into a document.
func Build(r types.SessionReport) Document {
	doc := Document{
		ID:         string(id.NewReportID()),
		SessionID:  r.SessionID,
		StartedAt:  r.StartedAt,
		EndedAt:    r.EndedAt,
		DurationMs: r.EndedAt.Sub(r.StartedAt).Milliseconds(),
		Tools:      []ToolSummary{},
		Failures:   []Failure{},
		Calls:      make([]Call, 0, len(r.Calls)),
	}

	byTool := make(map[string]*ToolSummary)
	durations := make(map[string][]float64)
	for _, rec := range r.Calls {
		ms := rec.Duration.Milliseconds()

		doc.Summary.Total++
		doc.Summary.TotalCallMs += ms

		ts, ok := byTool[rec.Tool]
		if !ok {
			ts = &ToolSummary{Name: rec.Tool}
			byTool[rec.Tool] = ts
		}
		ts.Calls++
		ts.TotalMs += ms
		durations[rec.Tool] = append(durations[rec.Tool], float64(ms))
		if ms > ts.MaxMs {
			ts.MaxMs = ms
		}

		call := Call{
			Timestamp:  rec.Timestamp,
			Tool:       rec.Tool,
			DurationMs: ms,
			Success:    rec.Success,
			Result:     rec.Result,
		}

		if rec.Success {
			doc.Summary.Succeeded++
		} else {
			doc.Summary.Failed++
			ts.Failures++

			f := Failure{Timestamp: rec.Timestamp, Tool: rec.Tool}
			if rec.Error != nil {
				f.Message = rec.Error.Message
				f.SnapshotPath = rec.Error.SnapshotPath
				call.Error = rec.Error.Message
			}
			doc.Failures = append(doc.Failures, f)
		}

		doc.Calls = append(doc.Calls, call)
	}

	if doc.Summary.Total > 0 {
		doc.Summary.SuccessRate = float64(doc.Summary.Succeeded) / float64(doc.Summary.Total)
		doc.Summary.AverageCallMs = float64(doc.Summary.TotalCallMs) / float64(doc.Summary.Total)
	}

	for _, ts := range byTool {
		ts.AvgMs = float64(ts.TotalMs) / float64(ts.Calls)
		ts.P50Ms, ts.P95Ms = percentiles(durations[ts.Name])
		doc.Tools = append(doc.Tools, *ts)
	}
	sort.Slice(doc.Tools, func(i, j int) bool {
		return doc.Tools[i].Name < doc.Tools[j].Name
	})

	return doc
}

// percentiles returns the empirical median and 95th percentile.
func percentiles(ms []float64) (p50, p95 float64) {
	if len(ms) == 0 {
		return 0, 0
	}
	sort.Float64s(ms)
	return stat.Quantile(0.5, stat.Empirical, ms, nil), stat.Quantile(0.95, stat.Empirical, ms, nil)
}
