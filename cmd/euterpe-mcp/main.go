package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wenqinglim/euterpe/internal/config"
	"github.com/wenqinglim/euterpe/internal/harmony"
	"github.com/wenqinglim/euterpe/internal/logging"
	"github.com/wenqinglim/euterpe/internal/service"
	"github.com/wenqinglim/euterpe/internal/storage"
)

var version = "dev"

// HarmonyTool exposes the harmony analysis as MCP tools.
type HarmonyTool struct {
	resolver       *storage.SourceResolver
	skipPercussion bool
	workers        int
	timeout        time.Duration
	logger         *slog.Logger
}

// NewHarmonyTool builds the tool from the same settings the HTTP service loads.
func NewHarmonyTool(cfg config.Config, logger *slog.Logger) *HarmonyTool {
	return &HarmonyTool{
		resolver:       storage.NewSourceResolver(cfg.SourceRoot, storage.WithSchemes(cfg.Schemes()...)),
		skipPercussion: cfg.SkipPercussion,
		workers:        cfg.Workers,
		timeout:        cfg.AnalysisTimeout,
		logger:         logger,
	}
}

type ChordEntropyArgs struct {
	Path          string `json:"path" jsonschema:"path or URL of the MIDI file"`
	MatrixPath    string `json:"matrix_path,omitempty" jsonschema:"optional global transition matrix JSON to score against"`
	Normalized    bool   `json:"normalized,omitempty" jsonschema:"divide the entropy by log2 of the number of distinct transitions"`
	MergeRepeated bool   `json:"merge_repeated,omitempty" jsonschema:"merge adjacent identical chords"`
}

type ChordSequenceArgs struct {
	Path string `json:"path" jsonschema:"path or URL of the MIDI file"`
	Top  int    `json:"top,omitempty" jsonschema:"number of most common transitions to include"`
}

type BuildMatrixArgs struct {
	Paths      []string `json:"paths" jsonschema:"MIDI files or directories"`
	OutputPath string   `json:"output_path" jsonschema:"where to write the matrix JSON"`
	Pattern    string   `json:"pattern,omitempty" jsonschema:"glob filter applied inside directories"`
}

func (t *HarmonyTool) analyzer() *service.Analyzer {
	return service.NewAnalyzer(nil, service.AnalyzerConfig{SkipPercussion: t.skipPercussion, Timeout: t.timeout}, t.logger)
}

func (t *HarmonyTool) chordEntropy(ctx context.Context, _ *mcp.CallToolRequest, args ChordEntropyArgs) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Path) == "" {
		return errorResult("path is required"), nil, nil
	}

	name, data, err := t.resolver.ReadFile(ctx, args.Path)
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}

	opts := service.AnalyzeOptions{MergeRepeated: args.MergeRepeated}
	if args.MatrixPath != "" {
		m, err := storage.ReadMatrix(ctx, args.MatrixPath)
		if err != nil {
			return errorResult(err.Error()), nil, nil
		}
		opts.Matrix = m
		opts.MatrixName = path.Base(args.MatrixPath)
	}

	analysis, err := t.analyzer().Analyze(ctx, name, data, opts)
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}

	out := map[string]any{
		"file":               name,
		"chord_count":        analysis.Report.ChordCount,
		"total_transitions":  analysis.Report.TotalTransitions,
		"unique_transitions": analysis.Report.UniqueTransitions,
		"entropy":            analysis.Report.Entropy,
		"normalized_entropy": analysis.Report.NormalizedEntropy,
	}
	score := analysis.Report.Entropy
	if args.Normalized {
		score = analysis.Report.NormalizedEntropy
	}
	if rel := analysis.Relative; rel != nil {
		out["relative_entropy"] = rel.Entropy
		out["relative_normalized_entropy"] = rel.NormalizedEntropy
		out["unseen_transitions"] = rel.UnseenTransitions
		score = rel.Entropy
		if args.Normalized {
			score = rel.NormalizedEntropy
		}
	}
	out["score"] = score
	return jsonResult(out)
}

func (t *HarmonyTool) chordSequence(ctx context.Context, _ *mcp.CallToolRequest, args ChordSequenceArgs) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Path) == "" {
		return errorResult("path is required"), nil, nil
	}

	name, data, err := t.resolver.ReadFile(ctx, args.Path)
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	analysis, err := t.analyzer().Chords(ctx, name, data, service.AnalyzeOptions{})
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}

	chords := make([][]string, len(analysis.Chords))
	for i, c := range analysis.Chords {
		chords[i] = c.PitchNames()
	}
	out := map[string]any{"file": name, "chords": chords}
	if args.Top > 0 {
		out["top_transitions"] = analysis.Transitions.Top(args.Top)
	}
	return jsonResult(out)
}

func (t *HarmonyTool) buildMatrix(ctx context.Context, _ *mcp.CallToolRequest, args BuildMatrixArgs) (*mcp.CallToolResult, any, error) {
	if len(args.Paths) == 0 {
		return errorResult("paths is required"), nil, nil
	}
	if strings.TrimSpace(args.OutputPath) == "" {
		return errorResult("output_path is required"), nil, nil
	}

	builder := service.NewCorpusBuilder(nil, t.resolver, nil, nil,
		service.BuilderConfig{Workers: t.workers, SkipPercussion: t.skipPercussion}, t.logger)
	collection, err := builder.Collect(ctx, nil, service.CorpusRequest{Sources: args.Paths, Pattern: args.Pattern})
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}

	matrix := harmony.MatrixFromCounts(collection.Counts)
	if err := storage.WriteMatrix(ctx, args.OutputPath, matrix); err != nil {
		return errorResult(err.Error()), nil, nil
	}

	return jsonResult(map[string]any{
		"output_path":        args.OutputPath,
		"files_processed":    collection.Processed,
		"files_failed":       len(collection.Failures),
		"total_transitions":  collection.Counts.Total(),
		"unique_transitions": len(matrix),
	})
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

func newServer(tool *HarmonyTool) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "euterpe", Version: version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "chord_entropy",
		Description: "Compute the chord transition entropy of a MIDI file, optionally relative to a global transition matrix",
	}, tool.chordEntropy)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "chord_sequence",
		Description: "List the chords of a MIDI file in order",
	}, tool.chordSequence)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "build_transition_matrix",
		Description: "Build a global chord transition matrix from MIDI files and write it as JSON",
	}, tool.buildMatrix)

	return server
}

func main() {
	// stdout carries the protocol, so logs go to stderr
	logger := logging.Setup(logging.Config{Level: slog.LevelWarn, Output: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcp server: %v\n", err)
		os.Exit(1)
	}

	if err := newServer(NewHarmonyTool(cfg, logger)).Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		fmt.Fprintf(os.Stderr, "mcp server: %v\n", err)
		os.Exit(1)
	}
}
