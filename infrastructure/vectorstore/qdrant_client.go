package vectorstore

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"dev-copilot/domain"
)

// QdrantIndex implements domain.VectorIndex against a remote Qdrant
// server. Each build goes into a fresh collection; an alias then flips to
// the new collection and the old one is dropped, so queries against the
// alias see one complete generation. The alias is the only state shared
// across processes: queries and size checks always resolve it server-side,
// so an index built by `index` is visible to a later `ask` without any
// local bookkeeping. Durability is server-side, which is why this backend
// does not implement Persist/Load.
type QdrantIndex struct {
	points      qdrant.PointsClient
	collections qdrant.CollectionsClient
	alias       string
	dimension   int
	buildMu     sync.Mutex // serializes builds; see domain.VectorIndex
}

// NewQdrantIndex connects to the Qdrant server at addr.
func NewQdrantIndex(addr, alias string, dimension int) (*QdrantIndex, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("could not connect to Qdrant: %w", err)
	}

	return &QdrantIndex{
		points:      qdrant.NewPointsClient(conn),
		collections: qdrant.NewCollectionsClient(conn),
		alias:       alias,
		dimension:   dimension,
	}, nil
}

// Build uploads all entries into a new collection and repoints the alias.
func (c *QdrantIndex) Build(ctx context.Context, entries []domain.IndexEntry) error {
	c.buildMu.Lock()
	defer c.buildMu.Unlock()

	if err := validateEntries(entries, c.dimension); err != nil {
		return err
	}

	prev, err := c.resolveAlias(ctx)
	if err != nil {
		return fmt.Errorf("%w: resolve alias: %v", domain.ErrIndexBuildFailed, err)
	}

	name := fmt.Sprintf("%s_gen_%d", c.alias, time.Now().UnixNano())
	_, err = c.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{Params: &qdrant.VectorParams{
				Size:     uint64(c.dimension),
				Distance: qdrant.Distance_Cosine,
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: create collection: %v", domain.ErrIndexBuildFailed, err)
	}

	const batchSize = 100
	for i := 0; i < len(entries); i += batchSize {
		end := i + batchSize
		if end > len(entries) {
			end = len(entries)
		}
		if err := c.upsertBatch(ctx, name, entries[i:end], i); err != nil {
			c.dropCollection(ctx, name)
			return fmt.Errorf("%w: %v", domain.ErrIndexBuildFailed, err)
		}
	}

	if err := c.swapAlias(ctx, prev, name); err != nil {
		c.dropCollection(ctx, name)
		return fmt.Errorf("%w: %v", domain.ErrIndexBuildFailed, err)
	}

	if prev != "" && prev != name {
		c.dropCollection(ctx, prev)
	}
	return nil
}

// resolveAlias returns the collection currently backing the alias, or ""
// when the alias does not exist yet (nothing has been indexed).
func (c *QdrantIndex) resolveAlias(ctx context.Context) (string, error) {
	resp, err := c.collections.ListAliases(ctx, &qdrant.ListAliasesRequest{})
	if err != nil {
		return "", fmt.Errorf("list aliases: %w", err)
	}
	for _, a := range resp.GetAliases() {
		if a.GetAliasName() == c.alias {
			return a.GetCollectionName(), nil
		}
	}
	return "", nil
}

func (c *QdrantIndex) upsertBatch(ctx context.Context, collection string, entries []domain.IndexEntry, offset int) error {
	points := make([]*qdrant.PointStruct, 0, len(entries))
	for i, e := range entries {
		payload := map[string]*qdrant.Value{
			"content":     {Kind: &qdrant.Value_StringValue{StringValue: e.Chunk.Content}},
			"file_path":   {Kind: &qdrant.Value_StringValue{StringValue: e.Chunk.FilePath}},
			"start_line":  {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(e.Chunk.StartLine)}},
			"end_line":    {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(e.Chunk.EndLine)}},
			"token_count": {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(e.Chunk.TokenCount)}},
			"symbols":     {Kind: &qdrant.Value_ListValue{ListValue: stringList(e.Chunk.Symbols)}},
			// Insertion position, kept for diagnostics.
			"position": {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(offset + i)}},
		}

		points = append(points, &qdrant.PointStruct{
			Id:      &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: e.Chunk.ID}},
			Vectors: &qdrant.Vectors{VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: e.Vector}}},
			Payload: payload,
		})
	}

	_, err := c.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
		Wait:           proto.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("upsert points: %w", err)
	}
	return nil
}

func stringList(values []string) *qdrant.ListValue {
	list := make([]*qdrant.Value, len(values))
	for i, s := range values {
		list[i] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
	}
	return &qdrant.ListValue{Values: list}
}

// swapAlias repoints the query alias at the freshly built collection.
func (c *QdrantIndex) swapAlias(ctx context.Context, prev, collection string) error {
	actions := []*qdrant.AliasOperations{}
	if prev != "" {
		actions = append(actions, &qdrant.AliasOperations{
			Action: &qdrant.AliasOperations_DeleteAlias{
				DeleteAlias: &qdrant.DeleteAlias{AliasName: c.alias},
			},
		})
	}
	actions = append(actions, &qdrant.AliasOperations{
		Action: &qdrant.AliasOperations_CreateAlias{
			CreateAlias: &qdrant.CreateAlias{
				CollectionName: collection,
				AliasName:      c.alias,
			},
		},
	})

	_, err := c.collections.UpdateAliases(ctx, &qdrant.ChangeAliases{Actions: actions})
	if err != nil {
		return fmt.Errorf("update alias: %w", err)
	}
	return nil
}

func (c *QdrantIndex) dropCollection(ctx context.Context, name string) {
	if _, err := c.collections.Delete(ctx, &qdrant.DeleteCollection{CollectionName: name}); err != nil {
		log.Printf("Warning: failed to drop collection %s: %v\n", name, err)
	}
}

// Query searches the alias for the k nearest entries. A missing alias
// means nothing has been indexed yet: an empty result, not an error.
func (c *QdrantIndex) Query(ctx context.Context, embedding domain.Embedding, k int) ([]domain.ScoredChunk, error) {
	if len(embedding) != c.dimension {
		return nil, fmt.Errorf("query embedding has dimension %d, index expects %d", len(embedding), c.dimension)
	}
	if k < 1 {
		return nil, fmt.Errorf("k must be >= 1, got %d", k)
	}

	searchResult, err := c.points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: c.alias,
		Vector:         embedding,
		Limit:          uint64(k),
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	})
	if status.Code(err) == codes.NotFound {
		return []domain.ScoredChunk{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("search points: %w", err)
	}

	results := make([]domain.ScoredChunk, 0, len(searchResult.GetResult()))
	for _, hit := range searchResult.GetResult() {
		payload := hit.GetPayload()
		if payload == nil {
			continue
		}

		id := ""
		if uuidVal, ok := hit.GetId().GetPointIdOptions().(*qdrant.PointId_Uuid); ok {
			id = uuidVal.Uuid
		}

		symbols := []string{}
		if listVal, ok := payload["symbols"].GetKind().(*qdrant.Value_ListValue); ok && listVal != nil {
			for _, v := range listVal.ListValue.GetValues() {
				if s := v.GetStringValue(); s != "" {
					symbols = append(symbols, s)
				}
			}
		}

		results = append(results, domain.ScoredChunk{
			Chunk: domain.Chunk{
				ID:         id,
				FilePath:   payload["file_path"].GetStringValue(),
				StartLine:  int(payload["start_line"].GetIntegerValue()),
				EndLine:    int(payload["end_line"].GetIntegerValue()),
				Content:    payload["content"].GetStringValue(),
				TokenCount: int(payload["token_count"].GetIntegerValue()),
				Symbols:    symbols,
			},
			Score: hit.GetScore(),
		})
	}
	return results, nil
}

// Size counts the points behind the alias; 0 when nothing has been
// indexed yet.
func (c *QdrantIndex) Size() int {
	resp, err := c.points.Count(context.Background(), &qdrant.CountPoints{
		CollectionName: c.alias,
		Exact:          proto.Bool(true),
	})
	if status.Code(err) == codes.NotFound {
		return 0
	}
	if err != nil {
		log.Printf("Warning: failed to count points: %v\n", err)
		return 0
	}
	return int(resp.GetResult().GetCount())
}

var _ domain.VectorIndex = (*QdrantIndex)(nil)
