package vectorindex

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fyrsmithlabs/recalld/internal/faults"
)

// Tracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("recalld.vectorindex.chromem")

// metadataKey stores a record's user metadata as one JSON blob, preserving
// value types chromem's string-only metadata would flatten.
const metadataKey = "meta"

// ChromemConfig holds configuration for the embedded chromem-go backend.
type ChromemConfig struct {
	// Path is the persistence directory. Empty means in-memory only.
	Path string

	// Compress enables gzip compression of persisted documents.
	Compress bool
}

// ChromemIndex is an Index implementation backed by the embedded chromem-go
// store. It needs no external service, which makes it the default for local
// use and for tests.
//
// chromem cannot enumerate documents, so the index keeps a per-namespace
// document registry in memory. After a restart of a persistent store the
// registry is rebuilt lazily from sequence-0 lookups during ingestion, but
// ListDocuments only reflects documents written during the current process
// lifetime.
type ChromemIndex struct {
	db     *chromem.DB
	config ChromemConfig

	mu sync.RWMutex
	// docs maps namespace -> document ID -> chunk count.
	docs map[string]map[string]int
}

// NewChromemIndex opens (or creates) a chromem store.
func NewChromemIndex(config ChromemConfig) (*ChromemIndex, error) {
	var db *chromem.DB
	var err error
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(config.Path, config.Compress)
		if err != nil {
			return nil, faults.Wrap(faults.KindUnavailable, "vectorindex.chromem.open", err)
		}
	}
	return &ChromemIndex{
		db:     db,
		config: config,
		docs:   make(map[string]map[string]int),
	}, nil
}

// Close is a no-op; chromem persists on write.
func (c *ChromemIndex) Close() error {
	return nil
}

// embeddingFunc rejects any attempt by chromem to embed text itself. All
// vectors are computed upstream and passed in precomputed.
func embeddingFunc(_ context.Context, text string) ([]float32, error) {
	return nil, faults.New(faults.KindInternal, "vectorindex.chromem.embed",
		"store asked to embed %d bytes; vectors must be precomputed", len(text))
}

func (c *ChromemIndex) getCollection(namespace string) *chromem.Collection {
	return c.db.GetCollection(CollectionName(namespace), embeddingFunc)
}

func (c *ChromemIndex) getOrCreateCollection(namespace string) (*chromem.Collection, error) {
	collection, err := c.db.GetOrCreateCollection(CollectionName(namespace), nil, embeddingFunc)
	if err != nil {
		return nil, faults.Wrap(faults.KindUnavailable, "vectorindex.chromem.collection", err)
	}
	return collection, nil
}

// Upsert writes records, creating the namespace collection on first write.
func (c *ChromemIndex) Upsert(ctx context.Context, namespace string, records []Record) (int, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("namespace", namespace),
		attribute.Int("record_count", len(records)),
	)

	if err := ValidateNamespace(namespace); err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	collection, err := c.getOrCreateCollection(namespace)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	docs := make([]chromem.Document, len(records))
	for i, rec := range records {
		metadata, err := encodeMetadata(rec)
		if err != nil {
			span.RecordError(err)
			return 0, err
		}
		docs[i] = chromem.Document{
			ID:        rec.ID,
			Content:   rec.Text,
			Metadata:  metadata,
			Embedding: rec.Vector,
		}
	}

	if err := collection.AddDocuments(ctx, docs, 1); err != nil {
		err = faults.Wrap(faults.KindUnavailable, "vectorindex.chromem.upsert", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	c.mu.Lock()
	if c.docs[namespace] == nil {
		c.docs[namespace] = make(map[string]int)
	}
	for _, rec := range records {
		c.docs[namespace][rec.DocumentID] = rec.ChunkCount
	}
	c.mu.Unlock()

	span.SetStatus(codes.Ok, "success")
	return len(records), nil
}

// Query searches a namespace. An absent namespace yields empty results.
// Filters are applied in memory after an exhaustive similarity pass so list
// and range filters behave identically to the Qdrant backend.
func (c *ChromemIndex) Query(ctx context.Context, namespace string, vector []float32, topK int, filter map[string]any) ([]SearchResult, error) {
	const op = "vectorindex.chromem.query"
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.Query")
	defer span.End()
	span.SetAttributes(
		attribute.String("namespace", namespace),
		attribute.Int("top_k", topK),
	)

	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, faults.New(faults.KindInvalidArgument, op, "top_k must be positive, got %d", topK)
	}
	if err := ValidateFilter(filter); err != nil {
		return nil, err
	}

	collection := c.getCollection(namespace)
	if collection == nil {
		return nil, nil
	}
	count := collection.Count()
	if count == 0 {
		return nil, nil
	}

	// Rank everything, then filter and truncate. Namespaces here are small
	// enough that exhaustive ranking beats maintaining filter pushdown.
	hits, err := collection.QueryEmbedding(ctx, vector, count, nil, nil)
	if err != nil {
		err = faults.Wrap(faults.KindUnavailable, op, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	results := make([]SearchResult, 0, topK)
	for _, hit := range hits {
		rec, err := recordFromChromem(hit.ID, hit.Content, hit.Metadata, hit.Embedding)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if len(filter) > 0 && !MatchesFilter(rec.Metadata, filter) {
			continue
		}
		results = append(results, SearchResult{Record: rec, Score: hit.Similarity})
	}
	SortResults(results)
	if len(results) > topK {
		results = results[:topK]
	}

	span.SetAttributes(attribute.Int("result_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// Fetch retrieves records by ID. Missing IDs and an absent namespace simply
// produce fewer entries.
func (c *ChromemIndex) Fetch(ctx context.Context, namespace string, ids []string) (map[string]Record, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.Fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("namespace", namespace),
		attribute.Int("id_count", len(ids)),
	)

	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}

	records := make(map[string]Record, len(ids))
	collection := c.getCollection(namespace)
	if collection == nil || len(ids) == 0 {
		return records, nil
	}

	for _, id := range ids {
		doc, err := collection.GetByID(ctx, id)
		if err != nil {
			// chromem reports missing documents as errors.
			continue
		}
		rec, err := recordFromChromem(doc.ID, doc.Content, doc.Metadata, doc.Embedding)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		records[rec.ID] = rec
	}

	span.SetStatus(codes.Ok, "success")
	return records, nil
}

// Delete removes records by ID. Returns how many of them existed.
func (c *ChromemIndex) Delete(ctx context.Context, namespace string, ids []string) (int, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.Delete")
	defer span.End()
	span.SetAttributes(
		attribute.String("namespace", namespace),
		attribute.Int("id_count", len(ids)),
	)

	if err := ValidateNamespace(namespace); err != nil {
		return 0, err
	}

	collection := c.getCollection(namespace)
	if collection == nil || len(ids) == 0 {
		return 0, nil
	}

	existing, err := c.Fetch(ctx, namespace, ids)
	if err != nil {
		return 0, err
	}
	if len(existing) == 0 {
		return 0, nil
	}

	present := make([]string, 0, len(existing))
	gone := make(map[string]bool, len(existing))
	for id, rec := range existing {
		present = append(present, id)
		gone[rec.DocumentID] = true
	}
	if err := collection.Delete(ctx, nil, nil, present...); err != nil {
		err = faults.Wrap(faults.KindUnavailable, "vectorindex.chromem.delete", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	// Drop documents whose sequence-0 record no longer exists from the
	// registry.
	c.mu.Lock()
	for docID := range gone {
		if _, err := collection.GetByID(ctx, RecordID(docID, 0)); err != nil {
			delete(c.docs[namespace], docID)
		}
	}
	c.mu.Unlock()

	span.SetAttributes(attribute.Int("deleted_count", len(present)))
	span.SetStatus(codes.Ok, "success")
	return len(present), nil
}

// ListDocuments enumerates documents written during the current process
// lifetime.
func (c *ChromemIndex) ListDocuments(ctx context.Context, namespace string) ([]DocumentInfo, error) {
	_, span := chromemTracer.Start(ctx, "ChromemIndex.ListDocuments")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", namespace))

	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	docs := make([]DocumentInfo, 0, len(c.docs[namespace]))
	for docID, count := range c.docs[namespace] {
		docs = append(docs, DocumentInfo{DocumentID: docID, ChunkCount: count})
	}
	SortDocuments(docs)

	span.SetAttributes(attribute.Int("document_count", len(docs)))
	span.SetStatus(codes.Ok, "success")
	return docs, nil
}

// Stats reports namespace size. An absent namespace reports zero.
func (c *ChromemIndex) Stats(ctx context.Context, namespace string) (Stats, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.Stats")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", namespace))

	if err := ValidateNamespace(namespace); err != nil {
		return Stats{}, err
	}

	stats := Stats{Namespace: namespace, Provider: "chromem"}
	if collection := c.getCollection(namespace); collection != nil {
		stats.Records = collection.Count()
	}

	docs, err := c.ListDocuments(ctx, namespace)
	if err != nil {
		return Stats{}, err
	}
	stats.Documents = len(docs)

	span.SetStatus(codes.Ok, "success")
	return stats, nil
}

// encodeMetadata flattens a record into chromem's string-keyed metadata.
func encodeMetadata(rec Record) (map[string]string, error) {
	metadata := map[string]string{
		KeyDocumentID:    rec.DocumentID,
		KeySequenceIndex: strconv.Itoa(rec.Sequence),
		KeyChunkCount:    strconv.Itoa(rec.ChunkCount),
		KeyCharStart:     strconv.Itoa(rec.CharStart),
		KeyCharEnd:       strconv.Itoa(rec.CharEnd),
	}
	if len(rec.Metadata) > 0 {
		blob, err := json.Marshal(rec.Metadata)
		if err != nil {
			return nil, faults.Wrap(faults.KindInvalidArgument, "vectorindex.chromem.encode", err)
		}
		metadata[metadataKey] = string(blob)
	}
	return metadata, nil
}

// recordFromChromem rebuilds a Record from a stored chromem document.
func recordFromChromem(id, content string, metadata map[string]string, embedding []float32) (Record, error) {
	const op = "vectorindex.chromem.decode"
	rec := Record{
		ID:       id,
		Text:     content,
		Vector:   embedding,
		Metadata: map[string]any{},
	}
	rec.DocumentID = metadata[KeyDocumentID]
	rec.Sequence, _ = strconv.Atoi(metadata[KeySequenceIndex])
	rec.ChunkCount, _ = strconv.Atoi(metadata[KeyChunkCount])
	rec.CharStart, _ = strconv.Atoi(metadata[KeyCharStart])
	rec.CharEnd, _ = strconv.Atoi(metadata[KeyCharEnd])

	if rec.DocumentID == "" {
		// Fall back to parsing the record ID so documents written before a
		// metadata migration stay readable.
		if i := strings.LastIndex(id, ":"); i > 0 {
			rec.DocumentID = id[:i]
		} else {
			return Record{}, faults.New(faults.KindInternal, op,
				"stored document %q has no document identity", id)
		}
	}

	if blob, ok := metadata[metadataKey]; ok && blob != "" {
		if err := json.Unmarshal([]byte(blob), &rec.Metadata); err != nil {
			return Record{}, faults.Wrap(faults.KindInternal, op, err)
		}
	}
	return rec, nil
}
