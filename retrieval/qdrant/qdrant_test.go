package qdrant

import (
	"context"
	"errors"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

type fakeEmbedder struct {
	calls [][]string
	err   error
}

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls = append(e.calls, texts)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, 0}
	}
	return out, nil
}

// fakePoints embeds the client interface so only the calls under test need
// implementing.
type fakePoints struct {
	pb.PointsClient
	upserts  []*pb.UpsertPoints
	searches []*pb.SearchPoints
	gets     []*pb.GetPoints
	deletes  []*pb.DeletePoints
	hits     []*pb.ScoredPoint
	stored   map[string]map[string]*pb.Value
	err      error
}

func newFakePoints() *fakePoints {
	return &fakePoints{stored: make(map[string]map[string]*pb.Value)}
}

func (f *fakePoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.upserts = append(f.upserts, in)
	for _, p := range in.GetPoints() {
		f.stored[p.GetId().GetUuid()] = p.GetPayload()
	}
	return &pb.PointsOperationResponse{}, nil
}

func (f *fakePoints) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.searches = append(f.searches, in)
	return &pb.SearchResponse{Result: f.hits}, nil
}

func (f *fakePoints) Get(_ context.Context, in *pb.GetPoints, _ ...grpc.CallOption) (*pb.GetResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.gets = append(f.gets, in)
	var out []*pb.RetrievedPoint
	for _, id := range in.GetIds() {
		if payload, ok := f.stored[id.GetUuid()]; ok {
			out = append(out, &pb.RetrievedPoint{Id: id, Payload: payload})
		}
	}
	return &pb.GetResponse{Result: out}, nil
}

func (f *fakePoints) Delete(_ context.Context, in *pb.DeletePoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.deletes = append(f.deletes, in)
	return &pb.PointsOperationResponse{}, nil
}

type fakeCollections struct {
	pb.CollectionsClient
	exists  bool
	created []*pb.CreateCollection
}

func (f *fakeCollections) CollectionExists(_ context.Context, _ *pb.CollectionExistsRequest, _ ...grpc.CallOption) (*pb.CollectionExistsResponse, error) {
	return &pb.CollectionExistsResponse{Result: &pb.CollectionExists{Exists: f.exists}}, nil
}

func (f *fakeCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	f.created = append(f.created, in)
	f.exists = true
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func newTestRetriever(t *testing.T, opts ...Option) (*Retriever, *fakePoints, *fakeCollections, *fakeEmbedder) {
	t.Helper()
	points, cols, emb := newFakePoints(), &fakeCollections{}, &fakeEmbedder{}
	r, err := New(points, cols, emb, opts...)
	require.NoError(t, err)
	return r, points, cols, emb
}

func hit(payload map[string]any, score float32) *pb.ScoredPoint {
	values := make(map[string]*pb.Value, len(payload))
	for k, v := range payload {
		values[k] = toValue(v)
	}
	return &pb.ScoredPoint{
		Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: "p1"}},
		Payload: values,
		Score:   score,
	}
}

func TestNew(t *testing.T) {
	_, err := New(nil, &fakeCollections{}, &fakeEmbedder{})
	assert.Error(t, err)

	_, err = New(newFakePoints(), &fakeCollections{}, nil)
	assert.Error(t, err)

	r, _, _, _ := newTestRetriever(t, WithCollection("kb"))
	assert.Equal(t, "kb", r.Collection())
	assert.NoError(t, r.Close())
}

func TestEnsureCollection(t *testing.T) {
	t.Run("creates with the embedded dimension", func(t *testing.T) {
		r, _, cols, _ := newTestRetriever(t)
		require.NoError(t, r.EnsureCollection(context.Background()))

		require.Len(t, cols.created, 1)
		assert.Equal(t, DefaultCollection, cols.created[0].GetCollectionName())
		params := cols.created[0].GetVectorsConfig().GetParams()
		assert.EqualValues(t, 3, params.GetSize())
		assert.Equal(t, pb.Distance_Cosine, params.GetDistance())
	})

	t.Run("existing collection is left alone", func(t *testing.T) {
		r, _, cols, emb := newTestRetriever(t)
		cols.exists = true
		require.NoError(t, r.EnsureCollection(context.Background()))
		assert.Empty(t, cols.created)
		assert.Empty(t, emb.calls)
	})
}

func TestIndex(t *testing.T) {
	r, points, _, emb := newTestRetriever(t)

	err := r.Index(context.Background(),
		Document{ID: "0b7e1f36-8f0c-4d5c-9a61-0f3f1d2b4c11", Text: "Deploys happen on Fridays", Metadata: map[string]any{"team": "ops", "text": "ignored"}},
		Document{Text: "   "},
		Document{Text: "The default channel is C123"},
	)
	require.NoError(t, err)

	require.Len(t, emb.calls, 1)
	assert.Len(t, emb.calls[0], 2)

	require.Len(t, points.upserts, 1)
	got := points.upserts[0].GetPoints()
	require.Len(t, got, 2)
	assert.Equal(t, "0b7e1f36-8f0c-4d5c-9a61-0f3f1d2b4c11", got[0].GetId().GetUuid())
	assert.Equal(t, "Deploys happen on Fridays", got[0].GetPayload()["text"].GetStringValue())
	assert.Equal(t, "ops", got[0].GetPayload()["team"].GetStringValue())
	assert.Equal(t, "document", got[0].GetPayload()["kind"].GetStringValue())
	assert.NotEmpty(t, got[1].GetId().GetUuid())

	assert.Equal(t, "0b7e1f36-8f0c-4d5c-9a61-0f3f1d2b4c11", got[0].GetPayload()["doc_id"].GetStringValue())
	assert.Equal(t, got[1].GetId().GetUuid(), got[1].GetPayload()["doc_id"].GetStringValue())

	t.Run("long documents are chunked", func(t *testing.T) {
		r, points, _, emb := newTestRetriever(t, WithChunker(Chunker{Size: 30, Margin: 15}))
		const docID = "5d0c2b7a-1e3f-4a5b-8c9d-0e1f2a3b4c5d"

		err := r.Index(context.Background(), Document{
			ID:       docID,
			Text:     "Deploys run on Fridays. Rollbacks need approval! Ask in releases?",
			Metadata: map[string]any{"source": "handbook"},
		})
		require.NoError(t, err)

		require.Len(t, emb.calls, 1)
		assert.Equal(t, []string{"Deploys run on Fridays.", "Rollbacks need approval!", "Ask in releases?"}, emb.calls[0])

		got := points.upserts[0].GetPoints()
		require.Len(t, got, 3)
		ids := map[string]bool{}
		for i, p := range got {
			ids[p.GetId().GetUuid()] = true
			assert.Equal(t, docID, p.GetPayload()["doc_id"].GetStringValue())
			assert.EqualValues(t, i, p.GetPayload()["chunk"].GetIntegerValue())
			assert.Equal(t, "handbook", p.GetPayload()["source"].GetStringValue())
		}
		assert.Len(t, ids, 3)
		assert.NotContains(t, ids, docID)

		// Re-indexing the same document overwrites the same points.
		require.NoError(t, r.Index(context.Background(), Document{
			ID:   docID,
			Text: "Deploys run on Fridays. Rollbacks need approval! Ask in releases?",
		}))
		for _, p := range points.upserts[1].GetPoints() {
			assert.True(t, ids[p.GetId().GetUuid()])
		}
	})

	t.Run("nothing to index", func(t *testing.T) {
		r, points, _, _ := newTestRetriever(t)
		require.NoError(t, r.Index(context.Background(), Document{}))
		assert.Empty(t, points.upserts)
	})
}

func TestQuery(t *testing.T) {
	t.Run("returns the best hit text", func(t *testing.T) {
		r, points, _, _ := newTestRetriever(t, WithTopK(5), WithScoreThreshold(0.5))
		points.hits = []*pb.ScoredPoint{hit(map[string]any{"text": "C123"}, 0.9)}

		got, ok, err := r.Query(context.Background(), "channel")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "C123", got)

		require.Len(t, points.searches, 1)
		assert.EqualValues(t, 5, points.searches[0].GetLimit())
		assert.InDelta(t, 0.5, points.searches[0].GetScoreThreshold(), 1e-6)
	})

	t.Run("prefers remembered values", func(t *testing.T) {
		r, points, _, _ := newTestRetriever(t)
		points.hits = []*pb.ScoredPoint{hit(map[string]any{"key": "channel", "value": "C9"}, 0.8)}

		got, ok, err := r.Query(context.Background(), "channel")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "C9", got)
	})

	t.Run("no hits", func(t *testing.T) {
		r, _, _, _ := newTestRetriever(t)
		_, ok, err := r.Query(context.Background(), "channel")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("errors are wrapped", func(t *testing.T) {
		boom := errors.New("unavailable")
		r, points, _, _ := newTestRetriever(t)
		points.err = boom
		_, _, err := r.Query(context.Background(), "channel")
		assert.ErrorIs(t, err, boom)
	})

	t.Run("embedder failure", func(t *testing.T) {
		boom := errors.New("quota")
		r, _, _, emb := newTestRetriever(t)
		emb.err = boom
		_, _, err := r.Query(context.Background(), "channel")
		assert.ErrorIs(t, err, boom)
	})
}

func TestSearch(t *testing.T) {
	r, points, _, _ := newTestRetriever(t)
	points.hits = []*pb.ScoredPoint{hit(map[string]any{"kind": "document", "text": "Deploys happen on Fridays", "team": "ops"}, 0.9)}

	docs, err := r.Search(context.Background(), "deploy")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "p1", docs[0].ID)
	assert.Equal(t, "Deploys happen on Fridays", docs[0].Text)
	assert.Equal(t, map[string]any{"team": "ops"}, docs[0].Metadata)

	filter := points.searches[0].GetFilter()
	require.Len(t, filter.GetMust(), 1)
	assert.Equal(t, "kind", filter.GetMust()[0].GetField().GetKey())
	assert.Equal(t, "document", filter.GetMust()[0].GetField().GetMatch().GetKeyword())
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("by document id", func(t *testing.T) {
		r, points, _, _ := newTestRetriever(t, WithCollection("kb"))
		require.NoError(t, r.Delete(ctx, "doc-1", "doc-2"))

		require.Len(t, points.deletes, 1)
		req := points.deletes[0]
		assert.Equal(t, "kb", req.GetCollectionName())
		must := req.GetPoints().GetFilter().GetMust()
		require.Len(t, must, 2)
		assert.Equal(t, "document", must[0].GetField().GetMatch().GetKeyword())
		assert.Equal(t, "doc_id", must[1].GetField().GetKey())
		assert.Equal(t, []string{"doc-1", "doc-2"}, must[1].GetField().GetMatch().GetKeywords().GetStrings())
	})

	t.Run("no ids is a no-op", func(t *testing.T) {
		r, points, _, _ := newTestRetriever(t)
		require.NoError(t, r.Delete(ctx))
		assert.Empty(t, points.deletes)
	})

	t.Run("all documents keep memories", func(t *testing.T) {
		r, points, _, _ := newTestRetriever(t)
		require.NoError(t, r.DeleteAll(ctx))

		must := points.deletes[0].GetPoints().GetFilter().GetMust()
		require.Len(t, must, 1)
		assert.Equal(t, "kind", must[0].GetField().GetKey())
		assert.Equal(t, "document", must[0].GetField().GetMatch().GetKeyword())
	})

	t.Run("errors are wrapped", func(t *testing.T) {
		r, points, _, _ := newTestRetriever(t)
		points.err = errors.New("unavailable")
		assert.ErrorContains(t, r.DeleteAll(ctx), "qdrant: delete")
	})
}

func TestRememberRecall(t *testing.T) {
	ctx := context.Background()

	t.Run("exact key round trip", func(t *testing.T) {
		r, points, _, _ := newTestRetriever(t)
		require.NoError(t, r.Remember(ctx, "channel", "C123"))
		require.NoError(t, r.Remember(ctx, "channel", "C456"))

		assert.Len(t, points.stored, 1)

		got, ok, err := r.Recall(ctx, "Channel")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "C456", got)
		assert.Empty(t, points.searches)
	})

	t.Run("falls back to similarity search", func(t *testing.T) {
		r, points, _, _ := newTestRetriever(t)
		points.hits = []*pb.ScoredPoint{hit(map[string]any{"kind": "memory", "key": "slack channel", "value": "C777"}, 0.8)}

		got, ok, err := r.Recall(ctx, "channel")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "C777", got)

		require.Len(t, points.searches, 1)
		assert.Equal(t, "memory", points.searches[0].GetFilter().GetMust()[0].GetField().GetMatch().GetKeyword())
	})

	t.Run("miss", func(t *testing.T) {
		r, _, _, _ := newTestRetriever(t)
		_, ok, err := r.Recall(ctx, "nothing")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestValueConversion(t *testing.T) {
	assert.Equal(t, "a", fromValue(toValue("a")))
	assert.Equal(t, true, fromValue(toValue(true)))
	assert.Equal(t, int64(3), fromValue(toValue(3)))
	assert.Equal(t, 1.5, fromValue(toValue(1.5)))
	assert.Equal(t, `["x"]`, fromValue(toValue([]string{"x"})))
}
