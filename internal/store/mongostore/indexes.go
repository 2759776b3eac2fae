package mongostore

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CURPIndexName is the name of the unique index on curp.
const CURPIndexName = "curp_1"

type indexInfo struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique bool   `bson:"unique"`
}

// indexModels are the indexes the collection must carry.
func indexModels() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "curp", Value: 1}},
			Options: options.Index().SetName(CURPIndexName).SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "correoPersonal", Value: 1}},
			Options: options.Index().SetName("correoPersonal_1"),
		},
		{
			Keys:    bson.D{{Key: "fecha", Value: -1}},
			Options: options.Index().SetName("fecha_-1"),
		},
	}
}

// EnsureIndexes creates the collection indexes. A pre-existing curp index
// that is not unique is dropped first and recreated as unique. The call is
// idempotent.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	cur, err := s.coll.Indexes().List(ctx)
	if err != nil {
		return fmt.Errorf("list indexes: %w", err)
	}
	var existing []indexInfo
	if err := cur.All(ctx, &existing); err != nil {
		return fmt.Errorf("decode indexes: %w", err)
	}

	for _, ix := range existing {
		if isCURPIndex(ix) && !ix.Unique {
			if _, err := s.coll.Indexes().DropOne(ctx, ix.Name); err != nil {
				return fmt.Errorf("drop non-unique curp index %s: %w", ix.Name, err)
			}
			slog.Info("dropped non-unique curp index", "name", ix.Name)
		}
	}

	if _, err := s.coll.Indexes().CreateMany(ctx, indexModels()); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	slog.Info("formulation indexes ready", "collection", s.coll.Name())
	return nil
}

// isCURPIndex reports whether ix is a single-field ascending index on curp.
func isCURPIndex(ix indexInfo) bool {
	if len(ix.Key) != 1 || ix.Key[0].Key != "curp" {
		return false
	}
	switch v := ix.Key[0].Value.(type) {
	case int32:
		return v == 1
	case int64:
		return v == 1
	case float64:
		return v == 1
	case int:
		return v == 1
	default:
		return false
	}
}
