// Package ingest turns documents into embedded chunk records and keeps the
// vector index convergent across re-ingestion.
//
// Record identity is deterministic: chunk N of document D is always stored
// under "D:N". Re-ingesting a document overwrites the records it still needs
// and deletes the orphaned tail left behind when the document shrank. Writes
// are not atomic; a failure mid-ingest can leave a mixed document version,
// and the next successful ingest converges the index again.
package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/chunking"
	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/faults"
	"github.com/fyrsmithlabs/recalld/internal/retry"
	"github.com/fyrsmithlabs/recalld/internal/vectorindex"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("recalld.ingest")

// maxDocumentIDLength bounds caller-supplied document IDs.
const maxDocumentIDLength = 512

// Config holds configuration for the ingestion service.
type Config struct {
	// Chunking bounds chunk size and overlap.
	Chunking chunking.Config

	// Retry bounds retries of transient embedding failures.
	Retry retry.Policy

	// EmbedTimeout caps one embedding attempt. Default: 30s
	EmbedTimeout time.Duration

	// DefaultNamespace is used when a request names no namespace.
	// Default: "default"
	DefaultNamespace string
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	c.Chunking.ApplyDefaults()
	c.Retry.ApplyDefaults()
	if c.EmbedTimeout == 0 {
		c.EmbedTimeout = 30 * time.Second
	}
	if c.DefaultNamespace == "" {
		c.DefaultNamespace = vectorindex.DefaultNamespace
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if err := c.Chunking.Validate(); err != nil {
		return err
	}
	return vectorindex.ValidateNamespace(c.DefaultNamespace)
}

// Service ingests, reads, and deletes documents.
type Service struct {
	config   Config
	embedder embeddings.Provider
	index    vectorindex.Index
	logger   *zap.Logger
}

// NewService creates an ingestion service.
func NewService(config Config, embedder embeddings.Provider, index vectorindex.Index, logger *zap.Logger) (*Service, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if embedder == nil {
		return nil, faults.New(faults.KindInvalidArgument, "ingest.new", "embedder required")
	}
	if index == nil {
		return nil, faults.New(faults.KindInvalidArgument, "ingest.new", "index required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{config: config, embedder: embedder, index: index, logger: logger}, nil
}

// Request describes one document to ingest.
type Request struct {
	// DocumentID identifies the document. Empty generates a fresh UUID.
	DocumentID string

	// Text is the document content.
	Text string

	// Namespace selects the target namespace. Empty uses the default.
	Namespace string

	// Metadata is attached to every record of the document. Values must be
	// scalars or lists of scalars; reserved keys are rejected.
	Metadata map[string]any

	// Chunk controls splitting. Nil means true; false stores the document
	// as a single record.
	Chunk *bool
}

// Result reports what one ingestion did.
type Result struct {
	DocumentID     string
	Namespace      string
	ChunkCount     int
	RecordsWritten int
	OrphansDeleted int
	Replaced       bool
}

// Ingest chunks, embeds, and stores one document. Re-ingesting the same
// document ID replaces its records and removes orphans from a previously
// larger version.
func (s *Service) Ingest(ctx context.Context, req Request) (Result, error) {
	const op = "ingest.ingest"
	ctx, span := tracer.Start(ctx, "Ingest.Ingest")
	defer span.End()

	namespace, err := s.resolveNamespace(req.Namespace)
	if err != nil {
		return Result{}, err
	}
	docID, err := resolveDocumentID(req.DocumentID)
	if err != nil {
		return Result{}, err
	}
	span.SetAttributes(
		attribute.String("namespace", namespace),
		attribute.String("document_id", docID),
	)

	if strings.TrimSpace(req.Text) == "" {
		return Result{}, faults.New(faults.KindInvalidArgument, op, "text cannot be empty")
	}
	if err := validateMetadata(req.Metadata); err != nil {
		return Result{}, err
	}

	chunks, err := s.split(req)
	if err != nil {
		return Result{}, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedWithRetry(ctx, op, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	if len(vectors) != len(chunks) {
		err := faults.New(faults.KindInternal, op,
			"embedded %d vectors for %d chunks", len(vectors), len(chunks))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	// The sequence-0 record of a prior version carries the previous chunk
	// count, which tells us how much orphaned tail to remove.
	prior, replaced, err := s.priorChunkCount(ctx, namespace, docID)
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}

	records := make([]vectorindex.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vectorindex.Record{
			ID:         vectorindex.RecordID(docID, c.Sequence),
			DocumentID: docID,
			Sequence:   c.Sequence,
			ChunkCount: len(chunks),
			Text:       c.Text,
			CharStart:  c.Start,
			CharEnd:    c.End,
			Vector:     vectors[i],
			Metadata:   req.Metadata,
		}
	}

	written, err := s.index.Upsert(ctx, namespace, records)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	orphans := 0
	if prior > len(chunks) {
		ids := make([]string, 0, prior-len(chunks))
		for seq := len(chunks); seq < prior; seq++ {
			ids = append(ids, vectorindex.RecordID(docID, seq))
		}
		orphans, err = s.index.Delete(ctx, namespace, ids)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return Result{}, faults.Wrap(faults.KindUnavailable, op, err)
		}
	}

	s.logger.Info("document ingested",
		zap.String("namespace", namespace),
		zap.String("document_id", docID),
		zap.Int("chunks", len(chunks)),
		zap.Int("orphans_deleted", orphans),
		zap.Bool("replaced", replaced),
	)

	span.SetAttributes(
		attribute.Int("chunk_count", len(chunks)),
		attribute.Int("orphans_deleted", orphans),
	)
	span.SetStatus(codes.Ok, "success")
	return Result{
		DocumentID:     docID,
		Namespace:      namespace,
		ChunkCount:     len(chunks),
		RecordsWritten: written,
		OrphansDeleted: orphans,
		Replaced:       replaced,
	}, nil
}

// Document is a reassembled stored document.
type Document struct {
	DocumentID string
	Namespace  string
	Text       string
	ChunkCount int
	Metadata   map[string]any
}

// Read reassembles a stored document from its chunk records. Returns a
// not-found fault if the document does not exist and an internal fault if
// its chunk set is incomplete.
func (s *Service) Read(ctx context.Context, namespace, documentID string) (Document, error) {
	const op = "ingest.read"
	ctx, span := tracer.Start(ctx, "Ingest.Read")
	defer span.End()

	namespace, err := s.resolveNamespace(namespace)
	if err != nil {
		return Document{}, err
	}
	if documentID == "" {
		return Document{}, faults.New(faults.KindInvalidArgument, op, "document_id required")
	}
	span.SetAttributes(
		attribute.String("namespace", namespace),
		attribute.String("document_id", documentID),
	)

	head, found, err := s.headRecord(ctx, namespace, documentID)
	if err != nil {
		span.RecordError(err)
		return Document{}, err
	}
	if !found {
		return Document{}, faults.New(faults.KindNotFound, op,
			"document %q not found in namespace %q", documentID, namespace)
	}

	ids := make([]string, head.ChunkCount)
	for seq := 0; seq < head.ChunkCount; seq++ {
		ids[seq] = vectorindex.RecordID(documentID, seq)
	}
	records, err := s.index.Fetch(ctx, namespace, ids)
	if err != nil {
		span.RecordError(err)
		return Document{}, err
	}

	chunks := make([]chunking.Chunk, head.ChunkCount)
	maxOverlap := 0
	for seq := 0; seq < head.ChunkCount; seq++ {
		rec, ok := records[ids[seq]]
		if !ok {
			err := faults.New(faults.KindInternal, op,
				"document %q is missing chunk %d of %d", documentID, seq, head.ChunkCount)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return Document{}, err
		}
		chunks[seq] = chunking.Chunk{
			Sequence: rec.Sequence,
			Text:     rec.Text,
			Start:    rec.CharStart,
			End:      rec.CharEnd,
		}
		if seq > 0 {
			if overlap := chunks[seq-1].End - chunks[seq].Start; overlap > maxOverlap {
				maxOverlap = overlap
			}
		}
	}

	text, err := chunking.Reassemble(chunks, maxOverlap)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Document{}, err
	}

	span.SetStatus(codes.Ok, "success")
	return Document{
		DocumentID: documentID,
		Namespace:  namespace,
		Text:       text,
		ChunkCount: head.ChunkCount,
		Metadata:   head.Metadata,
	}, nil
}

// DeleteResult reports what one document deletion did.
type DeleteResult struct {
	DocumentID     string
	Namespace      string
	Found          bool
	RecordsDeleted int
}

// Delete removes every record of a document. Deleting an absent document is
// not an error; the result reports Found=false.
func (s *Service) Delete(ctx context.Context, namespace, documentID string) (DeleteResult, error) {
	const op = "ingest.delete"
	ctx, span := tracer.Start(ctx, "Ingest.Delete")
	defer span.End()

	namespace, err := s.resolveNamespace(namespace)
	if err != nil {
		return DeleteResult{}, err
	}
	if documentID == "" {
		return DeleteResult{}, faults.New(faults.KindInvalidArgument, op, "document_id required")
	}
	span.SetAttributes(
		attribute.String("namespace", namespace),
		attribute.String("document_id", documentID),
	)

	result := DeleteResult{DocumentID: documentID, Namespace: namespace}
	head, found, err := s.headRecord(ctx, namespace, documentID)
	if err != nil {
		span.RecordError(err)
		return DeleteResult{}, err
	}
	if !found {
		span.SetStatus(codes.Ok, "document absent")
		return result, nil
	}

	ids := make([]string, head.ChunkCount)
	for seq := 0; seq < head.ChunkCount; seq++ {
		ids[seq] = vectorindex.RecordID(documentID, seq)
	}
	deleted, err := s.index.Delete(ctx, namespace, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return DeleteResult{}, err
	}

	s.logger.Info("document deleted",
		zap.String("namespace", namespace),
		zap.String("document_id", documentID),
		zap.Int("records_deleted", deleted),
	)

	result.Found = true
	result.RecordsDeleted = deleted
	span.SetAttributes(attribute.Int("records_deleted", deleted))
	span.SetStatus(codes.Ok, "success")
	return result, nil
}

// ListDocuments enumerates stored documents in a namespace.
func (s *Service) ListDocuments(ctx context.Context, namespace string) ([]vectorindex.DocumentInfo, error) {
	namespace, err := s.resolveNamespace(namespace)
	if err != nil {
		return nil, err
	}
	return s.index.ListDocuments(ctx, namespace)
}

// Stats reports index size for a namespace.
func (s *Service) Stats(ctx context.Context, namespace string) (vectorindex.Stats, error) {
	namespace, err := s.resolveNamespace(namespace)
	if err != nil {
		return vectorindex.Stats{}, err
	}
	return s.index.Stats(ctx, namespace)
}

func (s *Service) resolveNamespace(namespace string) (string, error) {
	if namespace == "" {
		namespace = s.config.DefaultNamespace
	}
	if err := vectorindex.ValidateNamespace(namespace); err != nil {
		return "", err
	}
	return namespace, nil
}

func resolveDocumentID(id string) (string, error) {
	const op = "ingest.validate_document_id"
	if id == "" {
		return uuid.New().String(), nil
	}
	if len(id) > maxDocumentIDLength {
		return "", faults.New(faults.KindInvalidArgument, op,
			"document_id exceeds %d characters", maxDocumentIDLength)
	}
	if strings.ContainsAny(id, "\n\r\t") {
		return "", faults.New(faults.KindInvalidArgument, op,
			"document_id must not contain control characters")
	}
	return id, nil
}

func validateMetadata(metadata map[string]any) error {
	const op = "ingest.validate_metadata"
	for key, value := range metadata {
		if key == "" {
			return faults.New(faults.KindInvalidArgument, op, "metadata key cannot be empty")
		}
		if vectorindex.IsReservedKey(key) {
			return faults.New(faults.KindInvalidArgument, op,
				"metadata key %q is reserved", key)
		}
		switch v := value.(type) {
		case string, bool, int, int64, float32, float64:
		case []any:
			for i, item := range v {
				switch item.(type) {
				case string, bool, int, int64, float32, float64:
				default:
					return faults.New(faults.KindInvalidArgument, op,
						"metadata %q element %d must be a scalar", key, i)
				}
			}
		default:
			return faults.New(faults.KindInvalidArgument, op,
				"metadata %q has unsupported value type %T", key, value)
		}
	}
	return nil
}

func (s *Service) split(req Request) ([]chunking.Chunk, error) {
	if req.Chunk != nil && !*req.Chunk {
		runes := len([]rune(req.Text))
		return []chunking.Chunk{{Sequence: 0, Text: req.Text, Start: 0, End: runes}}, nil
	}
	return chunking.Split(req.Text, s.config.Chunking)
}

// embedWithRetry wraps embedding generation with the shared retry policy and
// a per-attempt timeout.
func (s *Service) embedWithRetry(ctx context.Context, op string, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := retry.Do(ctx, s.config.Retry, op, faults.Retryable, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, s.config.EmbedTimeout)
		defer cancel()
		out, err := s.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return err
		}
		vectors = out
		return nil
	})
	return vectors, err
}

// headRecord fetches the sequence-0 record of a document, reporting whether
// the document exists at all.
func (s *Service) headRecord(ctx context.Context, namespace, documentID string) (vectorindex.Record, bool, error) {
	id := vectorindex.RecordID(documentID, 0)
	records, err := s.index.Fetch(ctx, namespace, []string{id})
	if err != nil {
		return vectorindex.Record{}, false, err
	}
	rec, ok := records[id]
	return rec, ok, nil
}

func (s *Service) priorChunkCount(ctx context.Context, namespace, documentID string) (int, bool, error) {
	rec, ok, err := s.headRecord(ctx, namespace, documentID)
	if err != nil || !ok {
		return 0, false, err
	}
	return rec.ChunkCount, true, nil
}
