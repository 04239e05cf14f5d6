// Package qdrant implements retrieval and long-term memory on a Qdrant
// collection. Texts are embedded with an ai.Embedder and stored as points
// whose payload carries the original text or remembered value.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	ai "github.com/spetersoncode/toolflow"
	"github.com/spetersoncode/toolflow/memory"
)

// Payload keys and kinds stored with each point.
const (
	payloadKind  = "kind"
	payloadText  = "text"
	payloadKey   = "key"
	payloadValue = "value"
	payloadDoc   = "doc_id"
	payloadChunk = "chunk"

	kindDocument = "document"
	kindMemory   = "memory"
)

// Defaults.
const (
	DefaultCollection     = "toolflow"
	DefaultTopK           = 3
	DefaultScoreThreshold = 0.7
)

// Namespaces deriving stable point ids from remembered keys and chunks.
var (
	memoryNamespace = uuid.MustParse("6f1c7a52-3c1e-4a0e-9d4b-2a7c1b0e5f10")
	chunkNamespace  = uuid.MustParse("a3d9e0b4-57c2-4f8e-b1a6-3e4f5c6d7e80")
)

// Document is a text to index. Long texts are stored as several chunks that
// share the document's ID.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]any
}

// Retriever answers free-text queries from the collection and doubles as
// the semantic store for package memory.
type Retriever struct {
	points      pb.PointsClient
	collections pb.CollectionsClient
	embedder    ai.Embedder
	conn        *grpc.ClientConn

	collection string
	topK       int
	threshold  float32
	chunker    Chunker
}

var (
	_ ai.Retriever    = (*Retriever)(nil)
	_ memory.Semantic = (*Retriever)(nil)
)

// Option configures a Retriever.
type Option func(*Retriever)

// WithCollection sets the collection name.
func WithCollection(name string) Option {
	return func(r *Retriever) {
		r.collection = name
	}
}

// WithTopK sets how many hits a search considers.
func WithTopK(k int) Option {
	return func(r *Retriever) {
		r.topK = k
	}
}

// WithScoreThreshold drops hits scoring below t.
func WithScoreThreshold(t float32) Option {
	return func(r *Retriever) {
		r.threshold = t
	}
}

// WithChunker sets how documents are split before indexing.
func WithChunker(c Chunker) Option {
	return func(r *Retriever) {
		r.chunker = c
	}
}

// New creates a Retriever on existing gRPC clients.
func New(points pb.PointsClient, collections pb.CollectionsClient, embedder ai.Embedder, opts ...Option) (*Retriever, error) {
	if points == nil || collections == nil {
		return nil, errors.New("qdrant: clients are required")
	}
	if embedder == nil {
		return nil, errors.New("qdrant: embedder is required")
	}
	r := &Retriever{
		points:      points,
		collections: collections,
		embedder:    embedder,
		collection:  DefaultCollection,
		topK:        DefaultTopK,
		threshold:   DefaultScoreThreshold,
		chunker:     DefaultChunker,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Dial connects to the Qdrant gRPC endpoint at addr (host:port).
func Dial(addr string, embedder ai.Embedder, opts ...Option) (*Retriever, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant: connect %s: %w", addr, err)
	}
	r, err := New(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), embedder, opts...)
	if err != nil {
		conn.Close()
		return nil, err
	}
	r.conn = conn
	return r, nil
}

// Close releases the connection opened by Dial.
func (r *Retriever) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

// Collection returns the collection name.
func (r *Retriever) Collection() string {
	return r.collection
}

// EnsureCollection creates the collection if it does not exist, sized to the
// embedder's output dimension.
func (r *Retriever) EnsureCollection(ctx context.Context) error {
	exists, err := r.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{
		CollectionName: r.collection,
	})
	if err != nil {
		return fmt.Errorf("qdrant: check collection %s: %w", r.collection, err)
	}
	if exists.GetResult().GetExists() {
		return nil
	}

	sample, err := r.embed(ctx, "dimension sample")
	if err != nil {
		return err
	}
	_, err = r.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(len(sample)),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection %s: %w", r.collection, err)
	}
	return nil
}

// Index splits docs into chunks, embeds them and upserts one point per
// chunk. Documents without text are skipped and missing ids are generated.
// A document that fits in one chunk is stored under its own id.
func (r *Retriever) Index(ctx context.Context, docs ...Document) error {
	type chunk struct {
		doc   Document
		docID string
		index int
		text  string
		whole bool
	}

	var chunks []chunk
	for _, d := range docs {
		parts := r.chunker.Split(d.Text)
		if len(parts) == 0 {
			continue
		}
		docID := d.ID
		if docID == "" {
			docID = uuid.NewString()
		}
		for i, text := range parts {
			chunks = append(chunks, chunk{doc: d, docID: docID, index: i, text: text, whole: len(parts) == 1})
		}
	}
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.text
	}
	vectors, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("qdrant: embed documents: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("qdrant: embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	points := make([]*pb.PointStruct, len(chunks))
	for i, c := range chunks {
		id := c.docID
		if !c.whole {
			id = uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s/%d", c.docID, c.index))).String()
		}
		payload := map[string]*pb.Value{
			payloadKind:  toValue(kindDocument),
			payloadText:  toValue(c.text),
			payloadDoc:   toValue(c.docID),
			payloadChunk: toValue(c.index),
		}
		for k, v := range c.doc.Metadata {
			if _, reserved := payload[k]; !reserved {
				payload[k] = toValue(v)
			}
		}
		points[i] = point(id, vectors[i], payload)
	}
	return r.upsert(ctx, points)
}

// Delete removes every chunk of the documents with the given ids.
// Remembered values are never touched.
func (r *Retriever) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	filter := matchKind(kindDocument)
	filter.Must = append(filter.Must, &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
			Key:   payloadDoc,
			Match: &pb.Match{MatchValue: &pb.Match_Keywords{Keywords: &pb.RepeatedStrings{Strings: ids}}},
		}},
	})
	return r.delete(ctx, filter)
}

// DeleteAll removes every indexed document, keeping remembered values.
func (r *Retriever) DeleteAll(ctx context.Context) error {
	return r.delete(ctx, matchKind(kindDocument))
}

func (r *Retriever) delete(ctx context.Context, filter *pb.Filter) error {
	_, err := r.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{Filter: filter},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete: %w", err)
	}
	return nil
}

// Query returns the best hit for text: a remembered value or a document's
// text. Hits below the score threshold are ignored.
func (r *Retriever) Query(ctx context.Context, text string) (string, bool, error) {
	hits, err := r.search(ctx, text, nil)
	if err != nil {
		return "", false, err
	}
	for _, hit := range hits {
		if v := payloadString(hit.GetPayload(), payloadValue); v != "" {
			return v, true, nil
		}
		if v := payloadString(hit.GetPayload(), payloadText); v != "" {
			return v, true, nil
		}
	}
	return "", false, nil
}

// Search returns up to top-k document chunks similar to text. Each result
// carries the id of the document it came from.
func (r *Retriever) Search(ctx context.Context, text string) ([]Document, error) {
	hits, err := r.search(ctx, text, matchKind(kindDocument))
	if err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(hits))
	for _, hit := range hits {
		doc := Document{ID: pointID(hit.GetId()), Metadata: map[string]any{}}
		for k, v := range hit.GetPayload() {
			switch k {
			case payloadText:
				doc.Text = v.GetStringValue()
			case payloadDoc:
				doc.ID = v.GetStringValue()
			case payloadKind, payloadChunk:
			default:
				doc.Metadata[k] = fromValue(v)
			}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Remember stores value under key. Remembering a key again replaces it.
func (r *Retriever) Remember(ctx context.Context, key, value string) error {
	vec, err := r.embed(ctx, key+": "+value)
	if err != nil {
		return err
	}
	return r.upsert(ctx, []*pb.PointStruct{point(memoryID(key), vec, map[string]*pb.Value{
		payloadKind:  toValue(kindMemory),
		payloadKey:   toValue(key),
		payloadValue: toValue(value),
	})})
}

// Recall returns the value remembered under key, falling back to the most
// similar remembered entry above the score threshold.
func (r *Retriever) Recall(ctx context.Context, key string) (string, bool, error) {
	resp, err := r.points.Get(ctx, &pb.GetPoints{
		CollectionName: r.collection,
		Ids:            []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: memoryID(key)}}},
		WithPayload:    withPayload(),
	})
	if err != nil {
		return "", false, fmt.Errorf("qdrant: get %q: %w", key, err)
	}
	for _, p := range resp.GetResult() {
		if v := payloadString(p.GetPayload(), payloadValue); v != "" {
			return v, true, nil
		}
	}

	hits, err := r.search(ctx, key, matchKind(kindMemory))
	if err != nil {
		return "", false, err
	}
	for _, hit := range hits {
		if v := payloadString(hit.GetPayload(), payloadValue); v != "" {
			return v, true, nil
		}
	}
	return "", false, nil
}

func (r *Retriever) search(ctx context.Context, text string, filter *pb.Filter) ([]*pb.ScoredPoint, error) {
	vec, err := r.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	threshold := r.threshold
	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         vec,
		Limit:          uint64(r.topK),
		ScoreThreshold: &threshold,
		Filter:         filter,
		WithPayload:    withPayload(),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search: %w", err)
	}
	return resp.GetResult(), nil
}

func (r *Retriever) upsert(ctx context.Context, points []*pb.PointStruct) error {
	_, err := r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert: %w", err)
	}
	return nil
}

func (r *Retriever) embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := r.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("qdrant: embed: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, errors.New("qdrant: embedder returned no vector")
	}
	return vectors[0], nil
}

func memoryID(key string) string {
	return uuid.NewSHA1(memoryNamespace, []byte(strings.ToLower(key))).String()
}

func point(id string, vec []float32, payload map[string]*pb.Value) *pb.PointStruct {
	return &pb.PointStruct{
		Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}},
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vec}},
		},
		Payload: payload,
	}
}

func pointID(id *pb.PointId) string {
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func withPayload() *pb.WithPayloadSelector {
	return &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}}
}

func matchKind(kind string) *pb.Filter {
	return &pb.Filter{Must: []*pb.Condition{{
		ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
			Key:   payloadKind,
			Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: kind}},
		}},
	}}}
}

func payloadString(payload map[string]*pb.Value, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

func toValue(v any) *pb.Value {
	switch val := v.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: val}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: val}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: val}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: val}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: memory.Stringify(v)}}
	}
}

func fromValue(v *pb.Value) any {
	switch k := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return k.StringValue
	case *pb.Value_BoolValue:
		return k.BoolValue
	case *pb.Value_IntegerValue:
		return k.IntegerValue
	case *pb.Value_DoubleValue:
		return k.DoubleValue
	default:
		return nil
	}
}
