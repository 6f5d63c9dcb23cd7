// Package vectorindex provides vector index implementations.
//
// An Index stores embedded chunk records grouped into namespaces and serves
// similarity queries over them. Two backends are provided: an embedded
// chromem-go store for zero-dependency deployments and a Qdrant gRPC store
// for production. Both expose identical semantics: deterministic record IDs,
// querying an absent namespace yields empty results, and result ordering is
// descending score with ascending record ID as the tie break.
package vectorindex

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/recalld/internal/faults"
)

// Reserved metadata keys attached to every stored record. User metadata may
// not use these keys.
const (
	KeyDocumentID    = "document_id"
	KeySequenceIndex = "sequence_index"
	KeyChunkCount    = "chunk_count"
	KeyText          = "text"
	KeyCharStart     = "char_start"
	KeyCharEnd       = "char_end"
)

// DefaultNamespace is used when a caller does not name a namespace.
const DefaultNamespace = "default"

// collectionPrefix maps namespaces onto backend collection names so unrelated
// collections in a shared backend are never touched.
const collectionPrefix = "kb_"

// namespacePattern validates namespace names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var namespacePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// Record is one embedded chunk of a document.
type Record struct {
	// ID is the deterministic record identifier "<document_id>:<sequence>".
	ID string

	// DocumentID names the document this chunk belongs to.
	DocumentID string

	// Sequence is the chunk's 0-based position within the document.
	Sequence int

	// ChunkCount is the total number of chunks the document had when this
	// record was written. Stored on every record so re-ingestion can
	// discover the prior chunk set without a separate bookkeeping store.
	ChunkCount int

	// Text is the chunk content.
	Text string

	// CharStart and CharEnd are rune offsets of the chunk in the source
	// document.
	CharStart int
	CharEnd   int

	// Vector is the chunk embedding.
	Vector []float32

	// Metadata holds caller-supplied document metadata: scalar values or
	// lists of scalars. Reserved keys are rejected at ingestion.
	Metadata map[string]any
}

// SearchResult is a record with its similarity score.
type SearchResult struct {
	Record
	Score float32
}

// DocumentInfo summarizes one stored document.
type DocumentInfo struct {
	DocumentID string
	ChunkCount int
}

// Stats summarizes one namespace.
type Stats struct {
	Namespace  string
	Documents  int
	Records    int
	VectorSize int
	Provider   string
}

// Index is the storage interface shared by all backends.
//
// Namespace semantics: writes create the namespace on demand; reads against
// a namespace that was never written return empty results, not an error.
type Index interface {
	// Upsert writes records, replacing any existing records with the same
	// IDs. Returns the number of records written.
	Upsert(ctx context.Context, namespace string, records []Record) (int, error)

	// Query returns up to topK records nearest to vector, filtered by the
	// optional metadata filter, ordered by descending score then ascending
	// record ID.
	Query(ctx context.Context, namespace string, vector []float32, topK int, filter map[string]any) ([]SearchResult, error)

	// Delete removes the given record IDs. Missing IDs are ignored.
	// Returns the number of records that existed and were removed.
	Delete(ctx context.Context, namespace string, ids []string) (int, error)

	// Fetch retrieves records by ID. Missing IDs are absent from the
	// returned map.
	Fetch(ctx context.Context, namespace string, ids []string) (map[string]Record, error)

	// ListDocuments enumerates stored documents with their chunk counts,
	// ordered by document ID.
	ListDocuments(ctx context.Context, namespace string) ([]DocumentInfo, error)

	// Stats reports namespace size.
	Stats(ctx context.Context, namespace string) (Stats, error)

	// Close releases backend resources.
	Close() error
}

// RecordID builds the deterministic record identifier for a chunk.
func RecordID(documentID string, sequence int) string {
	return fmt.Sprintf("%s:%d", documentID, sequence)
}

// ValidateNamespace validates a namespace name against naming rules.
// Pattern: ^[a-z0-9_]{1,64}$
func ValidateNamespace(namespace string) error {
	if namespace == "" {
		return faults.New(faults.KindInvalidArgument, "vectorindex.validate_namespace",
			"namespace cannot be empty")
	}
	if !namespacePattern.MatchString(namespace) {
		return faults.New(faults.KindInvalidArgument, "vectorindex.validate_namespace",
			"namespace must match ^[a-z0-9_]{1,64}$, got %q", namespace)
	}
	return nil
}

// CollectionName maps a namespace onto its backend collection name.
func CollectionName(namespace string) string {
	return collectionPrefix + namespace
}

// NamespaceFromCollection reverses CollectionName. Returns false for
// collections not managed by this service.
func NamespaceFromCollection(collection string) (string, bool) {
	if !strings.HasPrefix(collection, collectionPrefix) {
		return "", false
	}
	return strings.TrimPrefix(collection, collectionPrefix), true
}

// IsReservedKey reports whether a metadata key is reserved for record
// bookkeeping.
func IsReservedKey(key string) bool {
	switch key {
	case KeyDocumentID, KeySequenceIndex, KeyChunkCount, KeyText, KeyCharStart, KeyCharEnd:
		return true
	default:
		return false
	}
}

// ValidateFilter checks a metadata filter's shape. Allowed value forms:
// scalars (equality), lists of scalars (membership), and range objects with
// numeric gte/lte/gt/lt bounds.
func ValidateFilter(filter map[string]any) error {
	const op = "vectorindex.validate_filter"
	for key, value := range filter {
		if key == "" {
			return faults.New(faults.KindInvalidArgument, op, "filter key cannot be empty")
		}
		switch v := value.(type) {
		case string, bool, int, int64, float32, float64:
			// equality
		case []any:
			for i, item := range v {
				if !isScalar(item) {
					return faults.New(faults.KindInvalidArgument, op,
						"filter %q element %d must be a scalar", key, i)
				}
			}
		case map[string]any:
			if len(v) == 0 {
				return faults.New(faults.KindInvalidArgument, op,
					"filter %q range must name at least one bound", key)
			}
			for bound, limit := range v {
				switch bound {
				case "gte", "lte", "gt", "lt":
				default:
					return faults.New(faults.KindInvalidArgument, op,
						"filter %q has unknown range bound %q", key, bound)
				}
				if _, ok := toFloat(limit); !ok {
					return faults.New(faults.KindInvalidArgument, op,
						"filter %q bound %q must be numeric", key, bound)
				}
			}
		default:
			return faults.New(faults.KindInvalidArgument, op,
				"filter %q has unsupported value type %T", key, value)
		}
	}
	return nil
}

// MatchesFilter evaluates a validated filter against record metadata. Used
// by backends without native filter support and by post-filtering paths.
func MatchesFilter(metadata map[string]any, filter map[string]any) bool {
	for key, want := range filter {
		have, ok := metadata[key]
		if !ok {
			return false
		}
		switch w := want.(type) {
		case []any:
			if !containsScalar(w, have) {
				return false
			}
		case map[string]any:
			hf, ok := toFloat(have)
			if !ok {
				return false
			}
			for bound, limit := range w {
				lf, _ := toFloat(limit)
				switch bound {
				case "gte":
					if !(hf >= lf) {
						return false
					}
				case "lte":
					if !(hf <= lf) {
						return false
					}
				case "gt":
					if !(hf > lf) {
						return false
					}
				case "lt":
					if !(hf < lf) {
						return false
					}
				}
			}
		default:
			if !scalarEqual(have, want) {
				return false
			}
		}
	}
	return true
}

// SortResults orders results by descending score, breaking ties by ascending
// record ID so equal-score results are stable across backends.
func SortResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
}

// SortDocuments orders document summaries by document ID.
func SortDocuments(docs []DocumentInfo) {
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].DocumentID < docs[j].DocumentID
	})
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, int, int64, float32, float64:
		return true
	default:
		return false
	}
}

func containsScalar(list []any, v any) bool {
	for _, item := range list {
		if scalarEqual(v, item) {
			return true
		}
	}
	return false
}

// scalarEqual compares scalars with numeric coercion, so an int written at
// ingestion matches the float64 a JSON filter decodes to.
func scalarEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// formatScalar renders a scalar for string-keyed backends.
func formatScalar(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case float32:
		return strconv.FormatFloat(float64(s), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(s, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
