package mcp

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/annodex/internal/errors"
	"github.com/Aman-CERP/annodex/internal/provenance"
	"github.com/Aman-CERP/annodex/internal/telemetry"
	"github.com/Aman-CERP/annodex/pkg/element"
	"github.com/Aman-CERP/annodex/pkg/index"
	"github.com/Aman-CERP/annodex/pkg/version"
)

// Limits for list_annotated.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Catalog is the classpath view queried by the server.
// *classpath.Classpath implements it.
type Catalog interface {
	index.ResourceFinder
	// Annotations returns every annotation identity with an index resource.
	Annotations(ctx context.Context) ([]string, error)
}

// StatusSource reports what the last builds recorded.
// *provenance.Ledger implements it.
type StatusSource interface {
	Summary(ctx context.Context) (provenance.Summary, error)
}

// Options configures a Server.
type Options struct {
	// Root is the served module directory, used for project detection.
	Root string
	// Ledger is optional; without it index_status reports no build.
	Ledger StatusSource
	// Prefixes restricts the namespace prefixes probed. Empty probes all.
	Prefixes []string
	Logger   *slog.Logger
}

// Server is the MCP server for annodex.
// It answers annotation queries from AI clients using the built indexes.
type Server struct {
	mcp      *mcp.Server
	catalog  Catalog
	loader   index.ClassLoader
	ledger   StatusSource
	metrics  *telemetry.QueryMetrics
	prefixes []string
	rootPath string
	logger   *slog.Logger

	// resourceURIs are the per-annotation resources currently registered.
	resourceURIs []string

	mu sync.RWMutex
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name: "list_annotated",
		Description: "List every declaration annotated with an indexed annotation, such as all types marked @api.Audit. " +
			"Answers from the prebuilt annotation index without scanning sources. Optionally filter by element kind.",
	},
	{
		Name:        "list_annotations",
		Description: "List the annotation identities that have an index on the classpath. Use it to discover what list_annotated can answer.",
	},
	{
		Name:        "index_status",
		Description: "Report the served module, index size and the last recorded build. Use it to check the index is fresh.",
	},
}

// NewServer creates a new MCP server over a catalog of index resources
// and a loader resolving the locations they name.
func NewServer(catalog Catalog, loader index.ClassLoader, opts Options) (*Server, error) {
	if catalog == nil {
		return nil, stderrors.New("catalog is required")
	}
	if loader == nil {
		return nil, stderrors.New("class loader is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		catalog:  catalog,
		loader:   loader,
		ledger:   opts.Ledger,
		metrics:  telemetry.NewQueryMetrics(),
		prefixes: opts.Prefixes,
		rootPath: opts.Root,
		logger:   logger,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "annodex",
			Version: version.Version,
		},
		nil, // capabilities are inferred from registered tools and resources
	)

	s.registerTools()
	s.registerStatusResource()
	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return "annodex", version.Version
}

// ListTools returns the registered tools.
func (s *Server) ListTools() []ToolInfo {
	return slices.Clone(tools)
}

// CallTool invokes a tool by name with JSON-decoded arguments and returns
// its markdown rendering, or the structured output for index_status.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "list_annotated":
		in, err := listAnnotatedArgs(args)
		if err != nil {
			return nil, err
		}
		out, err := s.listAnnotated(ctx, in)
		if err != nil {
			return nil, err
		}
		return FormatElements(out, in.Kind), nil
	case "list_annotations":
		out, err := s.listAnnotations(ctx)
		if err != nil {
			return nil, err
		}
		return FormatAnnotations(out.Annotations), nil
	case "index_status":
		return s.indexStatus(ctx)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func listAnnotatedArgs(args map[string]any) (ListAnnotatedInput, error) {
	var in ListAnnotatedInput
	annotation, ok := args["annotation"].(string)
	if !ok {
		return in, NewInvalidParamsError("annotation parameter is required and must be a string")
	}
	in.Annotation = annotation
	if v, ok := args["kind"]; ok {
		kind, ok := v.(string)
		if !ok {
			return in, NewInvalidParamsError("kind must be a string")
		}
		in.Kind = kind
	}
	if l, ok := args["limit"].(float64); ok {
		in.Limit = int(l)
	}
	return in, nil
}

// listAnnotated resolves the elements indexed for an annotation.
func (s *Server) listAnnotated(ctx context.Context, in ListAnnotatedInput) (ListAnnotatedOutput, error) {
	start := time.Now()
	requestID := generateRequestID()

	annotation := strings.TrimSpace(in.Annotation)
	if annotation == "" {
		return ListAnnotatedOutput{}, NewInvalidParamsError("annotation cannot be empty or whitespace only")
	}
	annotation = strings.TrimPrefix(annotation, "@")

	var kinds []element.Kind
	if k := strings.TrimSpace(in.Kind); k != "" && k != "any" {
		kind, err := element.ParseKind(k)
		if err != nil {
			return ListAnnotatedOutput{}, NewInvalidParamsError(err.Error())
		}
		kinds = append(kinds, kind)
	}
	limit := clampLimit(in.Limit, DefaultLimit, 1, MaxLimit)

	s.logger.Info("list_annotated started",
		slog.String("request_id", requestID),
		slog.String("annotation", annotation),
		slog.String("kind", in.Kind),
		slog.Int("limit", limit))

	opts := []index.ListOption{index.WithLogger(s.logger)}
	if len(s.prefixes) > 0 {
		opts = append(opts, index.WithPrefixes(s.prefixes...))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	base, err := index.List(ctx, annotation, index.NewSource(s.catalog, s.loader), opts...)
	if err != nil {
		s.logger.Error("list_annotated failed",
			slog.String("request_id", requestID),
			errors.LogAttr(err))
		return ListAnnotatedOutput{}, MapError(err)
	}
	it := index.Filter(base, func(e element.Element) bool {
		return len(kinds) == 0 || slices.Contains(kinds, e.Kind())
	})

	out := ListAnnotatedOutput{Annotation: annotation, Elements: []ElementOutput{}}
	for it.Next() {
		if len(out.Elements) == limit {
			out.Truncated = true
			break
		}
		out.Elements = append(out.Elements, ToElementOutput(it.Element()))
	}
	if err := it.Err(); err != nil {
		s.logger.Error("list_annotated failed",
			slog.String("request_id", requestID),
			errors.LogAttr(err))
		return ListAnnotatedOutput{}, MapError(err)
	}

	elapsed := time.Since(start)
	s.metrics.Record(telemetry.QueryEvent{
		Tool:        "list_annotated",
		Annotation:  annotation,
		ResultCount: len(out.Elements),
		Latency:     elapsed,
	})
	s.logger.Info("list_annotated completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", elapsed),
		slog.Int("result_count", len(out.Elements)),
		slog.Bool("truncated", out.Truncated))
	return out, nil
}

func (s *Server) listAnnotations(ctx context.Context) (ListAnnotationsOutput, error) {
	start := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	names, err := s.catalog.Annotations(ctx)
	if err != nil {
		s.logger.Error("list_annotations failed", errors.LogAttr(err))
		return ListAnnotationsOutput{}, MapError(err)
	}
	if names == nil {
		names = []string{}
	}
	s.metrics.Record(telemetry.QueryEvent{
		Tool:        "list_annotations",
		ResultCount: len(names),
		Latency:     time.Since(start),
	})
	return ListAnnotationsOutput{Annotations: names}, nil
}

// indexStatus reports the served project, the index size and the last
// recorded build.
func (s *Server) indexStatus(ctx context.Context) (*IndexStatusOutput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	project := NewProjectDetector(s.rootPath, s.logger).Detect()
	out := &IndexStatusOutput{Project: *project, Queries: toQueryStats(s.metrics.Snapshot())}

	names, err := s.catalog.Annotations(ctx)
	if err != nil {
		return nil, MapError(err)
	}
	out.Stats.Annotations = len(names)

	if s.ledger == nil {
		return out, nil
	}
	sum, err := s.ledger.Summary(ctx)
	if err != nil {
		return nil, MapError(err)
	}
	out.Stats.Files = sum.Files
	out.Stats.Resources = sum.Resources
	out.Stats.Locations = sum.Locations
	if b := sum.LastBuild; b != nil {
		out.LastBuild = toBuildInfo(b)
	}
	return out, nil
}

// Metrics returns the query metrics collected since the server started.
func (s *Server) Metrics() *telemetry.Snapshot {
	return s.metrics.Snapshot()
}

// maxTopAnnotations bounds the annotations reported by index_status.
const maxTopAnnotations = 10

func toQueryStats(snap *telemetry.Snapshot) QueryStats {
	stats := QueryStats{
		Total:          snap.TotalQueries,
		ZeroResults:    snap.ZeroResultCount,
		Tools:          snap.ToolCounts,
		TopAnnotations: []string{},
		Misses:         snap.ZeroResultQueries,
	}
	for i, a := range snap.TopAnnotations {
		if i == maxTopAnnotations {
			break
		}
		stats.TopAnnotations = append(stats.TopAnnotations, a.Annotation)
	}
	return stats
}

func toBuildInfo(b *provenance.Build) *BuildInfo {
	info := &BuildInfo{
		ID:          b.ID,
		Mode:        b.Mode,
		Status:      b.Status,
		Message:     b.Message,
		Files:       b.Files,
		Annotations: b.Annotations,
		StartedAt:   b.StartedAt.Format(time.RFC3339),
	}
	if !b.FinishedAt.IsZero() {
		info.FinishedAt = b.FinishedAt.Format(time.RFC3339)
	}
	return info
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	s.logger.Debug("Registering MCP tools")

	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description}, s.mcpListAnnotatedHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description}, s.mcpListAnnotationsHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[2].Name, Description: tools[2].Description}, s.mcpIndexStatusHandler)

	s.logger.Info("MCP tools registered", slog.Int("count", len(tools)))
}

func (s *Server) mcpListAnnotatedHandler(ctx context.Context, _ *mcp.CallToolRequest, input ListAnnotatedInput) (
	*mcp.CallToolResult,
	ListAnnotatedOutput,
	error,
) {
	out, err := s.listAnnotated(ctx, input)
	if err != nil {
		return nil, ListAnnotatedOutput{}, err
	}
	return textResult(FormatElements(out, input.Kind)), out, nil
}

func (s *Server) mcpListAnnotationsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ ListAnnotationsInput) (
	*mcp.CallToolResult,
	ListAnnotationsOutput,
	error,
) {
	out, err := s.listAnnotations(ctx)
	if err != nil {
		return nil, ListAnnotationsOutput{}, err
	}
	return textResult(FormatAnnotations(out.Annotations)), out, nil
}

func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	out, err := s.indexStatus(ctx)
	if err != nil {
		return nil, nil, err
	}
	return textResult(FormatStatus(out)), out, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

// Invalidate drops cached source state after a rebuild and refreshes the
// per-annotation resources.
func (s *Server) Invalidate(ctx context.Context) error {
	s.mu.Lock()
	if f, ok := s.loader.(interface{ Forget(...string) }); ok {
		f.Forget()
	}
	s.mu.Unlock()
	return s.RegisterResources(ctx)
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !stderrors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	return uuid.NewString()[:8]
}
