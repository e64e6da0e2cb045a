// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package vectorindex is the approximate-nearest-neighbor store (C3):
// a rebuildable cache keyed by message id, tagged with an
// embedding-provenance string so queries can be restricted to
// semantically compatible vectors after a model upgrade.
package vectorindex

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	payloadKeyMessageID   = "message_id"
	payloadKeyFromDomain  = "from_domain"
	payloadKeyProvenance  = "vector_version"
)

// Index is the sole owner of all Qdrant operations for mailpipe.
type Index struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

func New(addr, collection string) (*Index, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("vectorindex: dial qdrant %s: %w", addr, err)
	}
	return &Index{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

func (idx *Index) Close() error {
	return idx.conn.Close()
}

// EnsureCollection creates the collection if it does not already exist.
func (idx *Index) EnsureCollection(ctx context.Context, dims int) error {
	list, err := idx.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("vectorindex: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == idx.collection {
			return nil
		}
	}

	_, err = idx.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: idx.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectorindex: create collection %s: %w", idx.collection, err)
	}
	return nil
}

// Point is one message's vector plus the provenance/domain metadata
// needed to restrict later neighbor search (spec §3, §4.2 step 2).
type Point struct {
	ID         string // deterministic uuid-v5(message id), spec §4.1 step 3(d)
	MessageID  int64
	Embedding  []float32
	FromDomain string
	Provenance string
}

// Upsert writes points to the index. Called by the ingestor (C5) after
// computing each message's embedding.
func (idx *Index) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	pbPoints := make([]*pb.PointStruct, len(points))
	for i, p := range points {
		payload := map[string]*pb.Value{
			payloadKeyMessageID:  {Kind: &pb.Value_IntegerValue{IntegerValue: p.MessageID}},
			payloadKeyFromDomain: {Kind: &pb.Value_StringValue{StringValue: p.FromDomain}},
			payloadKeyProvenance: {Kind: &pb.Value_StringValue{StringValue: p.Provenance}},
		}
		pbPoints[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: p.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: p.Embedding}}},
			Payload: payload,
		}
	}

	wait := true
	_, err := idx.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: idx.collection,
		Wait:           &wait,
		Points:         pbPoints,
	})
	if err != nil {
		return fmt.Errorf("vectorindex: upsert %d points: %w", len(points), err)
	}
	return nil
}

// Neighbor is one scored nearest-neighbor hit.
type Neighbor struct {
	MessageID int64
	Score     float32
}

// SearchDomainProvenance retrieves up to topK neighbors restricted to
// fromDomain and the current embedding-provenance tag, matching spec
// §4.2 step 2's fallback candidate-assembly path. Results below
// minScore are dropped by the caller (the index returns raw scores).
func (idx *Index) SearchDomainProvenance(ctx context.Context, embedding []float32, fromDomain, provenance string, topK int) ([]Neighbor, error) {
	req := &pb.SearchPoints{
		CollectionName: idx.collection,
		Vector:         embedding,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		Filter: &pb.Filter{
			Must: []*pb.Condition{
				fieldMatchKeyword(payloadKeyFromDomain, fromDomain),
				fieldMatchKeyword(payloadKeyProvenance, provenance),
			},
		},
	}

	resp, err := idx.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: search: %w", err)
	}

	out := make([]Neighbor, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		messageID := r.GetPayload()[payloadKeyMessageID].GetIntegerValue()
		out = append(out, Neighbor{MessageID: messageID, Score: r.GetScore()})
	}
	return out, nil
}

func fieldMatchKeyword(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
			},
		},
	}
}
