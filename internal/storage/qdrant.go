/**
 * Qdrant prospect similarity index
 *
 * Stores one point per scored prospect, keyed by the prospect id, so later
 * scans can look up people with similar text signals. Vectors are hashed
 * bag-of-words features (see FeatureVector), no embedding service required.
 * Uses Qdrant's native gRPC API.
 */

package storage

import (
	"context"
	"fmt"
	"strings"

	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/adverant/nexus/prospect-worker/internal/model"
)

// ProspectIndex handles vector operations for prospects
type ProspectIndex struct {
	points         qdrant.PointsClient
	collections    qdrant.CollectionsClient
	conn           *grpc.ClientConn
	collectionName string
}

// SimilarProspect is one search hit
type SimilarProspect struct {
	ProspectID string  `json:"prospectId"`
	ScanID     string  `json:"scanId"`
	Name       string  `json:"name"`
	Score      int     `json:"score"`
	Similarity float32 `json:"similarity"`
}

// NewProspectIndex dials Qdrant and creates the collection when missing
func NewProspectIndex(address string, collectionName string) (*ProspectIndex, error) {
	if address == "" {
		return nil, fmt.Errorf("qdrant address is required")
	}

	if collectionName == "" {
		return nil, fmt.Errorf("collection name is required")
	}

	conn, err := grpc.Dial(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}

	idx := &ProspectIndex{
		points:         qdrant.NewPointsClient(conn),
		collections:    qdrant.NewCollectionsClient(conn),
		conn:           conn,
		collectionName: collectionName,
	}

	if err := idx.ensureCollection(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}

	return idx, nil
}

func (q *ProspectIndex) ensureCollection(ctx context.Context) error {
	listResp, err := q.collections.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, col := range listResp.Collections {
		if col.Name == q.collectionName {
			return nil
		}
	}

	_, err = q.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: q.collectionName,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     FeatureDimensions,
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

// UpsertProspects indexes every prospect of a scan and returns the point ids
func (q *ProspectIndex) UpsertProspects(ctx context.Context, scanID string, prospects []model.ScoredProspect) ([]string, error) {
	if len(prospects) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(prospects))
	points := make([]*qdrant.PointStruct, 0, len(prospects))
	for _, p := range prospects {
		if p.ID == "" {
			return nil, fmt.Errorf("prospect %q has no id", p.Name)
		}
		ids = append(ids, p.ID)
		points = append(points, &qdrant.PointStruct{
			Id: pointID(p.ID),
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vector{
					Vector: &qdrant.Vector{Data: FeatureVector(ProspectText(p))},
				},
			},
			Payload: toPayload(map[string]interface{}{
				"scan_id": scanID,
				"name":    p.Name,
				"kind":    string(p.Kind),
				"score":   int64(p.Score),
			}),
		})
	}

	_, err := q.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collectionName,
		Points:         points,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert prospects: %w", err)
	}
	return ids, nil
}

// SearchSimilar returns prospects whose text signals resemble text
func (q *ProspectIndex) SearchSimilar(ctx context.Context, text string, limit int) ([]*SimilarProspect, error) {
	if limit <= 0 {
		limit = 10
	}

	results, err := q.points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: q.collectionName,
		Vector:         FeatureVector(text),
		Limit:          uint64(limit),
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search prospects: %w", err)
	}

	out := make([]*SimilarProspect, 0, len(results.Result))
	for _, r := range results.Result {
		meta := fromPayload(r.Payload)
		hit := &SimilarProspect{Similarity: r.Score}
		if r.Id != nil {
			hit.ProspectID = r.Id.GetUuid()
		}
		hit.ScanID, _ = meta["scan_id"].(string)
		hit.Name, _ = meta["name"].(string)
		if score, ok := meta["score"].(int64); ok {
			hit.Score = int(score)
		}
		out = append(out, hit)
	}
	return out, nil
}

// DeletePoints removes prospects by id
func (q *ProspectIndex) DeletePoints(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pids := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pids = append(pids, pointID(id))
	}

	_, err := q.points.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: pids},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete prospects: %w", err)
	}
	return nil
}

// GetCollectionInfo returns collection statistics
func (q *ProspectIndex) GetCollectionInfo(ctx context.Context) (map[string]interface{}, error) {
	info, err := q.collections.Get(ctx, &qdrant.GetCollectionInfoRequest{
		CollectionName: q.collectionName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get collection info: %w", err)
	}

	return map[string]interface{}{
		"collection_name": q.collectionName,
		"vectors_count":   info.Result.GetVectorsCount(),
		"points_count":    info.Result.GetPointsCount(),
		"status":          info.Result.GetStatus().String(),
	}, nil
}

// Close closes the Qdrant client connection
func (q *ProspectIndex) Close() error {
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

// ProspectText is the text a prospect is indexed under: name, own text and topics
func ProspectText(p model.ScoredProspect) string {
	parts := []string{p.Name, p.Source.Text()}
	if topics, ok := p.Metadata["topics"].([]string); ok {
		parts = append(parts, topics...)
	}
	return strings.Join(parts, " ")
}

func pointID(id string) *qdrant.PointId {
	return &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}}
}

func toPayload(meta map[string]interface{}) map[string]*qdrant.Value {
	payload := make(map[string]*qdrant.Value, len(meta))
	for k, v := range meta {
		switch val := v.(type) {
		case string:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
		case int64:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
		case float64:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
		case bool:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
		default:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprintf("%v", val)}}
		}
	}
	return payload
}

func fromPayload(payload map[string]*qdrant.Value) map[string]interface{} {
	meta := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		switch val := v.GetKind().(type) {
		case *qdrant.Value_StringValue:
			meta[k] = val.StringValue
		case *qdrant.Value_IntegerValue:
			meta[k] = val.IntegerValue
		case *qdrant.Value_DoubleValue:
			meta[k] = val.DoubleValue
		case *qdrant.Value_BoolValue:
			meta[k] = val.BoolValue
		}
	}
	return meta
}
