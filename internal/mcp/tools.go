package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/recalld/internal/ingest"
	"github.com/fyrsmithlabs/recalld/internal/retrieval"
	"github.com/fyrsmithlabs/recalld/internal/vectorindex"
)

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "store-document",
		Description: "Chunk, embed, and store a document in the knowledge base. Re-storing the same document_id replaces the previous version.",
	}, s.handleStoreDocument)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Semantic search over the knowledge base. Returns the most similar chunks with scores and metadata.",
	}, s.handleSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "read-document",
		Description: "Read a stored document back, reassembled from its chunks.",
	}, s.handleReadDocument)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "delete-document",
		Description: "Delete a document and all of its chunks from the knowledge base.",
	}, s.handleDeleteDocument)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list-documents",
		Description: "List stored documents in a namespace with their chunk counts.",
	}, s.handleListDocuments)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index-stats",
		Description: "Report document and record counts for a namespace.",
	}, s.handleIndexStats)
}

// instrument wraps a tool call with active-request tracking and invocation
// metrics. The returned finish func must be called with the tool's error.
func (s *Server) instrument(ctx context.Context, tool string) func(error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, tool)
	return func(err error) {
		s.metrics.DecrementActive(ctx, tool)
		s.metrics.RecordInvocation(ctx, tool, time.Since(start), err)
	}
}

// ===== STORE DOCUMENT =====

type storeDocumentInput struct {
	DocumentID string         `json:"document_id,omitempty" jsonschema:"Document identifier; generated when omitted"`
	Text       string         `json:"text" jsonschema:"required,Document content to store"`
	Namespace  string         `json:"namespace,omitempty" jsonschema:"Target namespace (default: default)"`
	Metadata   map[string]any `json:"metadata,omitempty" jsonschema:"Document metadata attached to every chunk; scalar values or lists of scalars"`
	Chunk      *bool          `json:"chunk,omitempty" jsonschema:"Split the document into overlapping chunks (default: true)"`
}

type storeDocumentOutput struct {
	DocumentID     string `json:"document_id" jsonschema:"Document identifier"`
	Namespace      string `json:"namespace" jsonschema:"Namespace written to"`
	ChunkCount     int    `json:"chunk_count" jsonschema:"Number of chunk records stored"`
	OrphansDeleted int    `json:"orphans_deleted" jsonschema:"Stale records removed from a previously larger version"`
	Replaced       bool   `json:"replaced" jsonschema:"True if a prior version of the document existed"`
}

func (s *Server) handleStoreDocument(ctx context.Context, req *mcp.CallToolRequest, args storeDocumentInput) (*mcp.CallToolResult, storeDocumentOutput, error) {
	finish := s.instrument(ctx, "store-document")
	var toolErr error
	defer func() { finish(toolErr) }()

	res, err := s.ingestSvc.Ingest(ctx, ingest.Request{
		DocumentID: args.DocumentID,
		Text:       args.Text,
		Namespace:  args.Namespace,
		Metadata:   args.Metadata,
		Chunk:      args.Chunk,
	})
	if err != nil {
		toolErr = err
		return nil, storeDocumentOutput{}, protocolError(err)
	}

	out := storeDocumentOutput{
		DocumentID:     res.DocumentID,
		Namespace:      res.Namespace,
		ChunkCount:     res.ChunkCount,
		OrphansDeleted: res.OrphansDeleted,
		Replaced:       res.Replaced,
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Stored document %q in namespace %q (%d chunks)",
				out.DocumentID, out.Namespace, out.ChunkCount)},
		},
	}, out, nil
}

// ===== SEARCH =====

type searchInput struct {
	Query     string         `json:"query" jsonschema:"required,Natural-language query"`
	TopK      int            `json:"top_k,omitempty" jsonschema:"Maximum results to return (default: 5)"`
	Namespace string         `json:"namespace,omitempty" jsonschema:"Namespace to search (default: default)"`
	Filter    map[string]any `json:"filter,omitempty" jsonschema:"Metadata filter: scalars for equality, lists for membership, {gte,lte,gt,lt} objects for ranges"`
}

type searchResultOutput struct {
	RecordID   string         `json:"record_id" jsonschema:"Chunk record identifier"`
	DocumentID string         `json:"document_id" jsonschema:"Owning document"`
	Score      float32        `json:"score" jsonschema:"Similarity score, higher is more relevant"`
	Text       string         `json:"text" jsonschema:"Chunk text"`
	Metadata   map[string]any `json:"metadata,omitempty" jsonschema:"Stored document metadata"`
}

type searchOutput struct {
	Results []searchResultOutput `json:"results" jsonschema:"Ranked results, best first"`
	Count   int                  `json:"count" jsonschema:"Number of results returned"`
}

func (s *Server) handleSearch(ctx context.Context, req *mcp.CallToolRequest, args searchInput) (*mcp.CallToolResult, searchOutput, error) {
	finish := s.instrument(ctx, "search")
	var toolErr error
	defer func() { finish(toolErr) }()

	topK := args.TopK
	if topK == 0 {
		topK = s.retrievalSvc.DefaultTopK()
	}

	results, err := s.retrievalSvc.Search(ctx, retrieval.Params{
		Namespace: args.Namespace,
		Query:     args.Query,
		TopK:      topK,
		Filter:    args.Filter,
	})
	if err != nil {
		toolErr = err
		return nil, searchOutput{}, protocolError(err)
	}

	out := searchOutput{Results: make([]searchResultOutput, len(results)), Count: len(results)}
	for i, res := range results {
		out.Results[i] = searchResultOutput{
			RecordID:   res.ID,
			DocumentID: res.DocumentID,
			Score:      res.Score,
			Text:       res.Text,
			Metadata:   res.Metadata,
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: retrieval.FormatResults(results)},
		},
	}, out, nil
}

// ===== READ DOCUMENT =====

type readDocumentInput struct {
	DocumentID string `json:"document_id" jsonschema:"required,Document identifier"`
	Namespace  string `json:"namespace,omitempty" jsonschema:"Namespace to read from (default: default)"`
}

type readDocumentOutput struct {
	DocumentID string         `json:"document_id" jsonschema:"Document identifier"`
	Namespace  string         `json:"namespace" jsonschema:"Namespace read from"`
	Text       string         `json:"text" jsonschema:"Reassembled document content"`
	ChunkCount int            `json:"chunk_count" jsonschema:"Number of chunk records"`
	Metadata   map[string]any `json:"metadata,omitempty" jsonschema:"Stored document metadata"`
}

func (s *Server) handleReadDocument(ctx context.Context, req *mcp.CallToolRequest, args readDocumentInput) (*mcp.CallToolResult, readDocumentOutput, error) {
	finish := s.instrument(ctx, "read-document")
	var toolErr error
	defer func() { finish(toolErr) }()

	doc, err := s.ingestSvc.Read(ctx, args.Namespace, args.DocumentID)
	if err != nil {
		toolErr = err
		return nil, readDocumentOutput{}, protocolError(err)
	}

	out := readDocumentOutput{
		DocumentID: doc.DocumentID,
		Namespace:  doc.Namespace,
		Text:       doc.Text,
		ChunkCount: doc.ChunkCount,
		Metadata:   doc.Metadata,
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: doc.Text},
		},
	}, out, nil
}

// ===== DELETE DOCUMENT =====

type deleteDocumentInput struct {
	DocumentID string `json:"document_id" jsonschema:"required,Document identifier"`
	Namespace  string `json:"namespace,omitempty" jsonschema:"Namespace to delete from (default: default)"`
}

type deleteDocumentOutput struct {
	DocumentID     string `json:"document_id" jsonschema:"Document identifier"`
	Namespace      string `json:"namespace" jsonschema:"Namespace deleted from"`
	Found          bool   `json:"found" jsonschema:"True if the document existed"`
	RecordsDeleted int    `json:"records_deleted" jsonschema:"Number of chunk records removed"`
}

func (s *Server) handleDeleteDocument(ctx context.Context, req *mcp.CallToolRequest, args deleteDocumentInput) (*mcp.CallToolResult, deleteDocumentOutput, error) {
	finish := s.instrument(ctx, "delete-document")
	var toolErr error
	defer func() { finish(toolErr) }()

	res, err := s.ingestSvc.Delete(ctx, args.Namespace, args.DocumentID)
	if err != nil {
		toolErr = err
		return nil, deleteDocumentOutput{}, protocolError(err)
	}

	out := deleteDocumentOutput{
		DocumentID:     res.DocumentID,
		Namespace:      res.Namespace,
		Found:          res.Found,
		RecordsDeleted: res.RecordsDeleted,
	}
	text := fmt.Sprintf("Deleted document %q (%d records)", out.DocumentID, out.RecordsDeleted)
	if !out.Found {
		text = fmt.Sprintf("Document %q not found in namespace %q", out.DocumentID, out.Namespace)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, out, nil
}

// ===== LIST DOCUMENTS =====

type listDocumentsInput struct {
	Namespace string `json:"namespace,omitempty" jsonschema:"Namespace to list (default: default)"`
}

type documentInfoOutput struct {
	DocumentID string `json:"document_id" jsonschema:"Document identifier"`
	ChunkCount int    `json:"chunk_count" jsonschema:"Number of chunk records"`
}

type listDocumentsOutput struct {
	Documents []documentInfoOutput `json:"documents" jsonschema:"Stored documents ordered by ID"`
	Count     int                  `json:"count" jsonschema:"Number of documents"`
}

func (s *Server) handleListDocuments(ctx context.Context, req *mcp.CallToolRequest, args listDocumentsInput) (*mcp.CallToolResult, listDocumentsOutput, error) {
	finish := s.instrument(ctx, "list-documents")
	var toolErr error
	defer func() { finish(toolErr) }()

	docs, err := s.ingestSvc.ListDocuments(ctx, args.Namespace)
	if err != nil {
		toolErr = err
		return nil, listDocumentsOutput{}, protocolError(err)
	}

	out := listDocumentsOutput{Documents: make([]documentInfoOutput, len(docs)), Count: len(docs)}
	for i, doc := range docs {
		out.Documents[i] = documentInfoOutput{DocumentID: doc.DocumentID, ChunkCount: doc.ChunkCount}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("%d documents", out.Count)},
		},
	}, out, nil
}

// ===== INDEX STATS =====

type indexStatsInput struct {
	Namespace string `json:"namespace,omitempty" jsonschema:"Namespace to report on (default: default)"`
}

type indexStatsOutput struct {
	Namespace  string `json:"namespace" jsonschema:"Namespace reported on"`
	Documents  int    `json:"documents" jsonschema:"Number of stored documents"`
	Records    int    `json:"records" jsonschema:"Number of chunk records"`
	VectorSize int    `json:"vector_size,omitempty" jsonschema:"Embedding dimensionality"`
	Provider   string `json:"provider" jsonschema:"Index backend"`
}

func (s *Server) handleIndexStats(ctx context.Context, req *mcp.CallToolRequest, args indexStatsInput) (*mcp.CallToolResult, indexStatsOutput, error) {
	finish := s.instrument(ctx, "index-stats")
	var toolErr error
	defer func() { finish(toolErr) }()

	stats, err := s.ingestSvc.Stats(ctx, args.Namespace)
	if err != nil {
		toolErr = err
		return nil, indexStatsOutput{}, protocolError(err)
	}

	out := statsOutput(stats)
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("namespace %q: %d documents, %d records",
				out.Namespace, out.Documents, out.Records)},
		},
	}, out, nil
}

func statsOutput(stats vectorindex.Stats) indexStatsOutput {
	return indexStatsOutput{
		Namespace:  stats.Namespace,
		Documents:  stats.Documents,
		Records:    stats.Records,
		VectorSize: stats.VectorSize,
		Provider:   stats.Provider,
	}
}
