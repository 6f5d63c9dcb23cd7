package mcp

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/recalld/internal/retrieval"
)

// registerPrompts registers the knowledge-search prompt, which runs a search
// and returns the ranked chunks as conversation context.
func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(&mcp.Prompt{
		Name:        "knowledge-search",
		Description: "Search the knowledge base and inject the most relevant chunks into the conversation",
		Arguments: []*mcp.PromptArgument{
			{Name: "query", Description: "Natural-language query", Required: true},
			{Name: "namespace", Description: "Namespace to search (default: default)"},
			{Name: "top_k", Description: "Maximum results to return"},
		},
	}, s.handleKnowledgeSearchPrompt)
}

func (s *Server) handleKnowledgeSearchPrompt(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	args := req.Params.Arguments

	query := strings.TrimSpace(args["query"])
	topK := s.retrievalSvc.DefaultTopK()
	if raw, ok := args["top_k"]; ok && raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, protocolError(fmt.Errorf("top_k must be an integer, got %q", raw))
		}
		topK = n
	}

	results, err := s.retrievalSvc.Search(ctx, retrieval.Params{
		Namespace: args["namespace"],
		Query:     query,
		TopK:      topK,
	})
	if err != nil {
		return nil, protocolError(err)
	}

	messages := make([]*mcp.PromptMessage, 0, len(results)+1)
	messages = append(messages, &mcp.PromptMessage{
		Role: "user",
		Content: &mcp.TextContent{
			Text: fmt.Sprintf("Here is context retrieved for the query %q:", query),
		},
	})
	for _, res := range results {
		messages = append(messages, &mcp.PromptMessage{
			Role: "user",
			Content: &mcp.TextContent{
				Text: fmt.Sprintf("[%s | similarity %.3f]\n%s", res.ID, res.Score, strings.TrimSpace(res.Text)),
			},
		})
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Knowledge base context for %q", query),
		Messages:    messages,
	}, nil
}
