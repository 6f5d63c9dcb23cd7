package vectorindex

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/recalld/internal/faults"
	"github.com/fyrsmithlabs/recalld/internal/retry"
)

// Tracer for OpenTelemetry instrumentation.
var qdrantTracer = otel.Tracer("recalld.vectorindex.qdrant")

// pointNamespace is the UUIDv5 namespace for deriving Qdrant point IDs from
// record IDs. Qdrant only accepts UUID or integer point IDs, so the
// human-readable record ID lives in the payload and the point ID is a stable
// hash of it. Never change this value: it would orphan every stored point.
var pointNamespace = uuid.MustParse("8e3f1a6e-33c4-4b21-9f1d-6c7b5a2e9d40")

// scrollPageSize bounds one Scroll request when enumerating documents.
const scrollPageSize = 256

// QdrantConfig holds configuration for the Qdrant gRPC backend.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address. Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (not the HTTP REST port). Default: 6334
	Port int

	// APIKey authenticates against Qdrant Cloud. Optional.
	APIKey string

	// UseTLS enables TLS for the gRPC connection. Default: false
	UseTLS bool

	// VectorSize is the embedding dimensionality. Must match the embedding
	// provider's output.
	VectorSize int

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB
	MaxMessageSize int

	// Retry bounds retries of transient backend failures.
	Retry retry.Policy
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	c.Retry.ApplyDefaults()
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	const op = "vectorindex.qdrant.validate"
	if c.Host == "" {
		return faults.New(faults.KindInvalidArgument, op, "host required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return faults.New(faults.KindInvalidArgument, op, "invalid port: %d", c.Port)
	}
	if c.VectorSize <= 0 {
		return faults.New(faults.KindInvalidArgument, op, "vector size required")
	}
	return nil
}

// QdrantIndex is an Index implementation backed by Qdrant's native gRPC
// client. gRPC avoids the HTTP layer's payload limits during bulk ingestion.
type QdrantIndex struct {
	client *qdrant.Client
	config QdrantConfig

	// collections caches collection existence to avoid a round trip per
	// write. Key: collection name.
	collections sync.Map
}

// NewQdrantIndex connects to Qdrant and verifies the connection with a
// health check.
func NewQdrantIndex(config QdrantConfig) (*QdrantIndex, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, faults.Wrap(faults.KindUnavailable, "vectorindex.qdrant.connect", err)
	}

	idx := &QdrantIndex{client: client, config: config}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, faults.Wrap(faults.KindUnavailable, "vectorindex.qdrant.health_check", err)
	}

	return idx, nil
}

// Close closes the gRPC connection.
func (q *QdrantIndex) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}

// classifyGRPC maps a gRPC failure onto the shared taxonomy so the retry
// layer sees transient backend trouble as retryable.
func classifyGRPC(op string, err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return faults.Wrap(faults.KindUnavailable, op, err)
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted:
		return faults.Wrap(faults.KindUnavailable, op, err)
	case grpccodes.ResourceExhausted:
		return faults.Wrap(faults.KindRateLimited, op, err)
	case grpccodes.InvalidArgument:
		return faults.Wrap(faults.KindInvalidArgument, op, err)
	case grpccodes.NotFound:
		return faults.Wrap(faults.KindNotFound, op, err)
	default:
		return faults.Wrap(faults.KindUnavailable, op, err)
	}
}

// pointID derives the stable Qdrant point UUID for a record.
func pointID(namespace, recordID string) *qdrant.PointId {
	id := uuid.NewSHA1(pointNamespace, []byte(namespace+"/"+recordID))
	return qdrant.NewIDUUID(id.String())
}

// Upsert writes records, creating the namespace collection on first write.
func (q *QdrantIndex) Upsert(ctx context.Context, namespace string, records []Record) (int, error) {
	const op = "vectorindex.qdrant.upsert"
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.Upsert")
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

	if err := q.ensureCollection(ctx, CollectionName(namespace)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, rec := range records {
		points[i] = &qdrant.PointStruct{
			Id:      pointID(namespace, rec.ID),
			Vectors: qdrant.NewVectors(rec.Vector...),
			Payload: recordPayload(rec),
		}
	}

	err := retry.Do(ctx, q.config.Retry, op, faults.Retryable, func(ctx context.Context) error {
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: CollectionName(namespace),
			Points:         points,
			Wait:           qdrant.PtrOf(true),
		})
		return classifyGRPC(op, err)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	span.SetStatus(codes.Ok, "success")
	return len(records), nil
}

// Query searches a namespace. An absent namespace yields empty results.
func (q *QdrantIndex) Query(ctx context.Context, namespace string, vector []float32, topK int, filter map[string]any) ([]SearchResult, error) {
	const op = "vectorindex.qdrant.query"
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.Query")
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

	exists, err := q.collectionExists(ctx, CollectionName(namespace))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	var scored []*qdrant.ScoredPoint
	err = retry.Do(ctx, q.config.Retry, op, faults.Retryable, func(ctx context.Context) error {
		res, err := q.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: CollectionName(namespace),
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(topK)),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         buildFilter(filter),
		})
		if err != nil {
			return classifyGRPC(op, err)
		}
		scored = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	results := make([]SearchResult, 0, len(scored))
	for _, point := range scored {
		rec, err := recordFromPayload(point.Payload)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		results = append(results, SearchResult{Record: rec, Score: point.Score})
	}
	SortResults(results)

	span.SetAttributes(attribute.Int("result_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// Fetch retrieves records by ID. Missing IDs and an absent namespace simply
// produce fewer entries.
func (q *QdrantIndex) Fetch(ctx context.Context, namespace string, ids []string) (map[string]Record, error) {
	const op = "vectorindex.qdrant.fetch"
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.Fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("namespace", namespace),
		attribute.Int("id_count", len(ids)),
	)

	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return map[string]Record{}, nil
	}

	exists, err := q.collectionExists(ctx, CollectionName(namespace))
	if err != nil {
		return nil, err
	}
	if !exists {
		return map[string]Record{}, nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = pointID(namespace, id)
	}

	var retrieved []*qdrant.RetrievedPoint
	err = retry.Do(ctx, q.config.Retry, op, faults.Retryable, func(ctx context.Context) error {
		res, err := q.client.Get(ctx, &qdrant.GetPoints{
			CollectionName: CollectionName(namespace),
			Ids:            pointIDs,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return classifyGRPC(op, err)
		}
		retrieved = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	records := make(map[string]Record, len(retrieved))
	for _, point := range retrieved {
		rec, err := recordFromPayload(point.Payload)
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
func (q *QdrantIndex) Delete(ctx context.Context, namespace string, ids []string) (int, error) {
	const op = "vectorindex.qdrant.delete"
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.Delete")
	defer span.End()
	span.SetAttributes(
		attribute.String("namespace", namespace),
		attribute.Int("id_count", len(ids)),
	)

	if err := ValidateNamespace(namespace); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	// Fetch first so the reported count reflects records that actually
	// existed, not the length of the request.
	existing, err := q.Fetch(ctx, namespace, ids)
	if err != nil {
		return 0, err
	}
	if len(existing) == 0 {
		return 0, nil
	}

	pointIDs := make([]*qdrant.PointId, 0, len(existing))
	for id := range existing {
		pointIDs = append(pointIDs, pointID(namespace, id))
	}

	err = retry.Do(ctx, q.config.Retry, op, faults.Retryable, func(ctx context.Context) error {
		_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: CollectionName(namespace),
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Points{
					Points: &qdrant.PointsIdsList{Ids: pointIDs},
				},
			},
			Wait: qdrant.PtrOf(true),
		})
		return classifyGRPC(op, err)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	span.SetAttributes(attribute.Int("deleted_count", len(existing)))
	span.SetStatus(codes.Ok, "success")
	return len(existing), nil
}

// ListDocuments enumerates stored documents by scrolling the sequence-0
// record of each document.
func (q *QdrantIndex) ListDocuments(ctx context.Context, namespace string) ([]DocumentInfo, error) {
	const op = "vectorindex.qdrant.list_documents"
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.ListDocuments")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", namespace))

	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}

	exists, err := q.collectionExists(ctx, CollectionName(namespace))
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	seqZero := &qdrant.Filter{
		Must: []*qdrant.Condition{{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   KeySequenceIndex,
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: 0}},
				},
			},
		}},
	}

	seen := make(map[string]bool)
	var docs []DocumentInfo
	var offset *qdrant.PointId
	for {
		var page []*qdrant.RetrievedPoint
		err := retry.Do(ctx, q.config.Retry, op, faults.Retryable, func(ctx context.Context) error {
			res, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
				CollectionName: CollectionName(namespace),
				Filter:         seqZero,
				Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
				Offset:         offset,
				WithPayload:    qdrant.NewWithPayload(true),
			})
			if err != nil {
				return classifyGRPC(op, err)
			}
			page = res
			return nil
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		if len(page) == 0 {
			break
		}
		progressed := false
		for _, point := range page {
			rec, err := recordFromPayload(point.Payload)
			if err != nil {
				span.RecordError(err)
				return nil, err
			}
			if seen[rec.DocumentID] {
				continue
			}
			seen[rec.DocumentID] = true
			progressed = true
			docs = append(docs, DocumentInfo{DocumentID: rec.DocumentID, ChunkCount: rec.ChunkCount})
		}
		// The offset point is included in the next page again; dedupe by
		// document above and stop once a page adds nothing new.
		offset = page[len(page)-1].Id
		if len(page) < scrollPageSize || !progressed {
			break
		}
	}
	SortDocuments(docs)

	span.SetAttributes(attribute.Int("document_count", len(docs)))
	span.SetStatus(codes.Ok, "success")
	return docs, nil
}

// Stats reports namespace size. An absent namespace reports zero.
func (q *QdrantIndex) Stats(ctx context.Context, namespace string) (Stats, error) {
	const op = "vectorindex.qdrant.stats"
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.Stats")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", namespace))

	stats := Stats{Namespace: namespace, VectorSize: q.config.VectorSize, Provider: "qdrant"}
	if err := ValidateNamespace(namespace); err != nil {
		return Stats{}, err
	}

	exists, err := q.collectionExists(ctx, CollectionName(namespace))
	if err != nil {
		return Stats{}, err
	}
	if !exists {
		return stats, nil
	}

	err = retry.Do(ctx, q.config.Retry, op, faults.Retryable, func(ctx context.Context) error {
		info, err := q.client.GetCollectionInfo(ctx, CollectionName(namespace))
		if err != nil {
			return classifyGRPC(op, err)
		}
		if info.PointsCount != nil {
			stats.Records = int(*info.PointsCount)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Stats{}, err
	}

	docs, err := q.ListDocuments(ctx, namespace)
	if err != nil {
		return Stats{}, err
	}
	stats.Documents = len(docs)

	span.SetStatus(codes.Ok, "success")
	return stats, nil
}

// ensureCollection creates the collection on first write.
func (q *QdrantIndex) ensureCollection(ctx context.Context, collection string) error {
	const op = "vectorindex.qdrant.ensure_collection"
	if _, ok := q.collections.Load(collection); ok {
		return nil
	}

	exists, err := q.collectionExists(ctx, collection)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	err = retry.Do(ctx, q.config.Retry, op, faults.Retryable, func(ctx context.Context) error {
		return classifyGRPC(op, q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(q.config.VectorSize),
				Distance: qdrant.Distance_Cosine,
			}),
		}))
	})
	if err != nil {
		// A concurrent writer may have created it first.
		if exists, checkErr := q.collectionExists(ctx, collection); checkErr == nil && exists {
			return nil
		}
		return err
	}
	q.collections.Store(collection, true)
	return nil
}

func (q *QdrantIndex) collectionExists(ctx context.Context, collection string) (bool, error) {
	const op = "vectorindex.qdrant.collection_exists"
	if _, ok := q.collections.Load(collection); ok {
		return true, nil
	}

	var exists bool
	err := retry.Do(ctx, q.config.Retry, op, faults.Retryable, func(ctx context.Context) error {
		ok, err := q.client.CollectionExists(ctx, collection)
		if err != nil {
			return classifyGRPC(op, err)
		}
		exists = ok
		return nil
	})
	if err != nil {
		return false, err
	}
	if exists {
		q.collections.Store(collection, true)
	}
	return exists, nil
}

// recordPayload builds the Qdrant payload for a record. Reserved keys carry
// the record bookkeeping; user metadata is stored alongside under its own
// keys.
func recordPayload(rec Record) map[string]*qdrant.Value {
	payload := map[string]*qdrant.Value{
		"id":            {Kind: &qdrant.Value_StringValue{StringValue: rec.ID}},
		KeyDocumentID:   {Kind: &qdrant.Value_StringValue{StringValue: rec.DocumentID}},
		KeySequenceIndex: {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(rec.Sequence)}},
		KeyChunkCount:   {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(rec.ChunkCount)}},
		KeyText:         {Kind: &qdrant.Value_StringValue{StringValue: rec.Text}},
		KeyCharStart:    {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(rec.CharStart)}},
		KeyCharEnd:      {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(rec.CharEnd)}},
	}
	for k, v := range rec.Metadata {
		payload[k] = scalarToValue(v)
	}
	return payload
}

func scalarToValue(v any) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
	case float32:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: float64(val)}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	case []any:
		values := make([]*qdrant.Value, len(val))
		for i, item := range val {
			values[i] = scalarToValue(item)
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: values}}}
	default:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: formatScalar(v)}}
	}
}

func valueToScalar(v *qdrant.Value) any {
	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_ListValue:
		items := make([]any, len(val.ListValue.Values))
		for i, item := range val.ListValue.Values {
			items[i] = valueToScalar(item)
		}
		return items
	default:
		return nil
	}
}

// recordFromPayload rebuilds a Record from a stored payload. A payload
// missing the bookkeeping keys indicates a record this service did not
// write.
func recordFromPayload(payload map[string]*qdrant.Value) (Record, error) {
	const op = "vectorindex.qdrant.decode"
	rec := Record{Metadata: map[string]any{}}
	for k, v := range payload {
		switch k {
		case "id":
			rec.ID, _ = valueToScalar(v).(string)
		case KeyDocumentID:
			rec.DocumentID, _ = valueToScalar(v).(string)
		case KeySequenceIndex:
			rec.Sequence = intFromValue(v)
		case KeyChunkCount:
			rec.ChunkCount = intFromValue(v)
		case KeyText:
			rec.Text, _ = valueToScalar(v).(string)
		case KeyCharStart:
			rec.CharStart = intFromValue(v)
		case KeyCharEnd:
			rec.CharEnd = intFromValue(v)
		default:
			rec.Metadata[k] = valueToScalar(v)
		}
	}
	if rec.ID == "" || rec.DocumentID == "" {
		return Record{}, faults.New(faults.KindInternal, op,
			"stored point is missing record identity fields")
	}
	return rec, nil
}

func intFromValue(v *qdrant.Value) int {
	switch val := v.Kind.(type) {
	case *qdrant.Value_IntegerValue:
		return int(val.IntegerValue)
	case *qdrant.Value_DoubleValue:
		return int(val.DoubleValue)
	case *qdrant.Value_StringValue:
		n, _ := strconv.Atoi(val.StringValue)
		return n
	default:
		return 0
	}
}

// buildFilter converts a validated metadata filter into a Qdrant filter.
func buildFilter(filter map[string]any) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for key, value := range filter {
		switch v := value.(type) {
		case []any:
			keywords := make([]string, len(v))
			allStrings := true
			for i, item := range v {
				s, ok := item.(string)
				if !ok {
					allStrings = false
					break
				}
				keywords[i] = s
			}
			if allStrings {
				conditions = append(conditions, fieldCondition(key, &qdrant.Match{
					MatchValue: &qdrant.Match_Keywords{
						Keywords: &qdrant.RepeatedStrings{Strings: keywords},
					},
				}))
				continue
			}
			// Mixed-type membership becomes a should-group of equalities.
			should := make([]*qdrant.Condition, len(v))
			for i, item := range v {
				should[i] = equalityCondition(key, item)
			}
			conditions = append(conditions, &qdrant.Condition{
				ConditionOneOf: &qdrant.Condition_Filter{
					Filter: &qdrant.Filter{Should: should},
				},
			})
		case map[string]any:
			r := &qdrant.Range{}
			for bound, limit := range v {
				f, _ := toFloat(limit)
				switch bound {
				case "gte":
					r.Gte = qdrant.PtrOf(f)
				case "lte":
					r.Lte = qdrant.PtrOf(f)
				case "gt":
					r.Gt = qdrant.PtrOf(f)
				case "lt":
					r.Lt = qdrant.PtrOf(f)
				}
			}
			conditions = append(conditions, &qdrant.Condition{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{Key: key, Range: r},
				},
			})
		default:
			conditions = append(conditions, equalityCondition(key, value))
		}
	}
	return &qdrant.Filter{Must: conditions}
}

func fieldCondition(key string, match *qdrant.Match) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{Key: key, Match: match},
		},
	}
}

func equalityCondition(key string, value any) *qdrant.Condition {
	switch v := value.(type) {
	case string:
		return fieldCondition(key, &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: v}})
	case bool:
		return fieldCondition(key, &qdrant.Match{MatchValue: &qdrant.Match_Boolean{Boolean: v}})
	case int:
		return fieldCondition(key, &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: int64(v)}})
	case int64:
		return fieldCondition(key, &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: v}})
	case float32, float64:
		f, _ := toFloat(v)
		// Qdrant has no float equality match; use a degenerate range.
		return &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   key,
					Range: &qdrant.Range{Gte: qdrant.PtrOf(f), Lte: qdrant.PtrOf(f)},
				},
			},
		}
	default:
		return fieldCondition(key, &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: formatScalar(value)}})
	}
}
