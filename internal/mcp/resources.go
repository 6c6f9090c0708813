package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/annodex/pkg/index"
)

// Resource URIs.
const (
	StatusURI   = "annodex://status"
	IndexURIPre = "annodex://index/"
)

// RegisterResources exposes each annotation index on the classpath as a
// text resource listing its merged locations. Resources registered by an
// earlier call are replaced.
func (s *Server) RegisterResources(ctx context.Context) error {
	names, err := s.catalog.Annotations(ctx)
	if err != nil {
		return fmt.Errorf("failed to list annotations: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.resourceURIs) > 0 {
		s.mcp.RemoveResources(s.resourceURIs...)
	}
	s.resourceURIs = s.resourceURIs[:0]
	for _, name := range names {
		uri := IndexURIPre + name
		s.mcp.AddResource(
			&mcp.Resource{
				Name:        name,
				URI:         uri,
				Description: fmt.Sprintf("Index locations of @%s", name),
				MIMEType:    "text/plain",
			},
			s.makeIndexHandler(name),
		)
		s.resourceURIs = append(s.resourceURIs, uri)
	}

	s.logger.Info("registered resources", slog.Int("count", len(names)))
	return nil
}

func (s *Server) makeIndexHandler(annotation string) mcp.ResourceHandler {
	return func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return s.handleReadIndex(ctx, annotation)
	}
}

// handleReadIndex returns the sorted locations of one annotation, one
// per line, in the resource file format.
func (s *Server) handleReadIndex(ctx context.Context, annotation string) (*mcp.ReadResourceResult, error) {
	var opts []index.ListOption
	if len(s.prefixes) > 0 {
		opts = append(opts, index.WithPrefixes(s.prefixes...))
	}
	locs, err := index.Locations(ctx, annotation, s.catalog, opts...)
	if err != nil {
		return nil, MapError(err)
	}
	if len(locs) == 0 {
		return nil, NewResourceNotFoundError(IndexURIPre + annotation)
	}

	var sb strings.Builder
	for _, l := range locs {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      IndexURIPre + annotation,
				MIMEType: "text/plain",
				Text:     sb.String(),
			},
		},
	}, nil
}

func (s *Server) registerStatusResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "status",
			URI:         StatusURI,
			Description: "Served module, index size and last build",
			MIMEType:    "application/json",
		},
		func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return s.handleReadStatus(ctx)
		},
	)
}

func (s *Server) handleReadStatus(ctx context.Context) (*mcp.ReadResourceResult, error) {
	out, err := s.indexStatus(ctx)
	if err != nil {
		return nil, err
	}
	content, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      StatusURI,
				MIMEType: "application/json",
				Text:     string(content),
			},
		},
	}, nil
}
