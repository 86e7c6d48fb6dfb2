package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/eratner15/tariff-engineer/features/ruling"
	"github.com/eratner15/tariff-engineer/internal/category"
	"github.com/eratner15/tariff-engineer/internal/retrieval"
)

const (
	ToolSearch    = "search_rulings"
	ToolGet       = "get_ruling"
	ToolListByHTS = "list_rulings_by_hts"

	defaultToolLimit = 10
	maxToolLimit     = 50
)

var ErrInvalidArgument = errors.New("invalid tool argument")

type SearchInput struct {
	Description string `json:"description" jsonschema:"free-text product description"`
	Category    string `json:"category,omitempty" jsonschema:"override the detected product category"`
	Limit       int    `json:"limit,omitempty" jsonschema:"maximum number of rulings to return (default from settings, at most 50)"`
}

type SearchOutput struct {
	Category string          `json:"category"`
	Matches  int             `json:"matches"`
	Degraded bool            `json:"degraded"`
	Results  []RulingSummary `json:"results"`
}

// RulingSummary is the flattened view of a ruling handed to agents.
type RulingSummary struct {
	ID                 string   `json:"id"`
	IssueDate          string   `json:"issue_date,omitempty"`
	HTSCodes           []string `json:"hts_codes"`
	Category           string   `json:"category"`
	ProductDescription string   `json:"product_description,omitempty"`
	SourceURL          string   `json:"source_url"`
	Score              float64  `json:"score,omitempty"`
	MatchKind          string   `json:"match_kind,omitempty"`
}

type GetInput struct {
	ID string `json:"id" jsonschema:"ruling id such as N330123 or H310045"`
}

type GetOutput struct {
	Ruling         RulingSummary `json:"ruling"`
	Classification string        `json:"classification,omitempty"`
	Rationale      string        `json:"rationale,omitempty"`
}

type ListInput struct {
	Prefix string `json:"prefix" jsonschema:"tariff number prefix such as 6404 or 6404.19"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of rulings to return (default 10, at most 50)"`
}

type ListOutput struct {
	Results []RulingSummary `json:"results"`
	Count   int             `json:"count"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name: ToolSearch,
		Description: "Find customs rulings relevant to a product description. Rulings are ranked by keyword overlap, " +
			"boosted when they share the product category, and merged with semantic matches when embeddings are enabled. " +
			"Categories: " + strings.Join(category.Labels(), ", ") + ".",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolGet,
		Description: "Read one ruling in full by its id.",
	}, s.handleGet)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolListByHTS,
		Description: "List rulings citing a tariff number that starts with the given prefix.",
	}, s.handleListByHTS)
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		return nil, SearchOutput{}, fmt.Errorf("%w: description is required", ErrInvalidArgument)
	}
	if in.Category != "" && !category.Valid(in.Category) {
		return nil, SearchOutput{}, fmt.Errorf("%w: unknown category %q", ErrInvalidArgument, in.Category)
	}
	if in.Limit < 0 || in.Limit > maxToolLimit {
		return nil, SearchOutput{}, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidArgument, maxToolLimit)
	}

	res := s.ranker.Rank(ctx, retrieval.Query{Text: desc, Category: in.Category}, in.Limit)
	slog.InfoContext(ctx, "tool execution completed", "tool", ToolSearch, "result_count", len(res.Results))

	out := SearchOutput{
		Category: res.Category,
		Matches:  res.Matches,
		Degraded: res.Degraded,
		Results:  make([]RulingSummary, 0, len(res.Results)),
	}
	for _, r := range res.Results {
		sum := summarize(r.Record)
		sum.Score = r.Score
		sum.MatchKind = string(r.MatchKind)
		out.Results = append(out.Results, sum)
	}
	return nil, out, nil
}

func (s *Server) handleGet(ctx context.Context, _ *mcp.CallToolRequest, in GetInput) (*mcp.CallToolResult, GetOutput, error) {
	id := strings.ToUpper(strings.TrimSpace(in.ID))
	if id == "" {
		return nil, GetOutput{}, fmt.Errorf("%w: id is required", ErrInvalidArgument)
	}

	rec, err := s.rulings.Get(ctx, id)
	if errors.Is(err, ruling.ErrNotFound) {
		return nil, GetOutput{}, fmt.Errorf("no ruling stored under %s", id)
	}
	if err != nil {
		slog.ErrorContext(ctx, "get_ruling failed", "id", id, "error", err)
		return nil, GetOutput{}, err
	}

	return nil, GetOutput{
		Ruling:         summarize(*rec),
		Classification: rec.ClassificationSnippet,
		Rationale:      rec.Rationale,
	}, nil
}

func (s *Server) handleListByHTS(ctx context.Context, _ *mcp.CallToolRequest, in ListInput) (*mcp.CallToolResult, ListOutput, error) {
	prefix := strings.TrimSpace(in.Prefix)
	if prefix == "" {
		return nil, ListOutput{}, fmt.Errorf("%w: prefix is required", ErrInvalidArgument)
	}
	limit := in.Limit
	if limit <= 0 || limit > maxToolLimit {
		limit = defaultToolLimit
	}

	recs, err := s.rulings.SearchByHTSPrefix(ctx, prefix, limit)
	if err != nil {
		slog.ErrorContext(ctx, "list_rulings_by_hts failed", "prefix", prefix, "error", err)
		return nil, ListOutput{}, err
	}

	out := ListOutput{Results: make([]RulingSummary, 0, len(recs)), Count: len(recs)}
	for _, r := range recs {
		out.Results = append(out.Results, summarize(r))
	}
	return nil, out, nil
}

func summarize(r ruling.Record) RulingSummary {
	sum := RulingSummary{
		ID:                 r.ID,
		HTSCodes:           r.HTSCodes,
		Category:           r.Category,
		ProductDescription: r.ProductDescription,
		SourceURL:          r.SourceURL,
	}
	if sum.HTSCodes == nil {
		sum.HTSCodes = []string{}
	}
	if r.IssueDate != nil {
		sum.IssueDate = r.IssueDate.Format("2006-01-02")
	}
	return sum
}
