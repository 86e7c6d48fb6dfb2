// Package mcp exposes the ruling corpus to agents as Model Context Protocol
// tools served over streamable HTTP.
package mcp

import (
	"context"
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/eratner15/tariff-engineer/features/ruling"
	"github.com/eratner15/tariff-engineer/internal/retrieval"
)

const (
	ServerName    = "tariff-rulings"
	ServerVersion = "1.0.0"
)

var ErrMissingDependency = errors.New("mcp: ranker and ruling reader are required")

type Ranker interface {
	Rank(ctx context.Context, q retrieval.Query, limit int) retrieval.Result
}

type RulingReader interface {
	Get(ctx context.Context, id string) (*ruling.Record, error)
	SearchByHTSPrefix(ctx context.Context, prefix string, limit int) ([]ruling.Record, error)
}

// Server wraps an MCP server with the ruling tools registered.
type Server struct {
	ranker  Ranker
	rulings RulingReader
	server  *mcp.Server
}

func NewServer(r Ranker, rulings RulingReader) (*Server, error) {
	if r == nil || rulings == nil {
		return nil, ErrMissingDependency
	}

	s := &Server{
		ranker:  r,
		rulings: rulings,
		server:  mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: ServerVersion}, nil),
	}
	s.registerTools()
	return s, nil
}

// Handler serves the streamable HTTP transport. Every request shares the
// same server so sessions see one tool set.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)
}

// Connect attaches the server to a single transport, e.g. stdio.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}
