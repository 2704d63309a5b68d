package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type AnalysisRunRepo interface {
	Save(ctx context.Context, run *AnalysisRunModel) error
	ListRecent(ctx context.Context, limit int64) ([]*AnalysisRunModel, error)
}

type analysisRunRepoImpl struct {
	col *mongo.Collection
}

func NewAnalysisRunRepo(db *mongo.Database) AnalysisRunRepo {
	return &analysisRunRepoImpl{
		col: db.Collection("analysis_runs"),
	}
}

// Save 插入运行记录
func (s *analysisRunRepoImpl) Save(ctx context.Context, run *AnalysisRunModel) error {
	_, err := s.col.InsertOne(ctx, run)
	return err
}

// ListRecent 按开始时间倒序
func (s *analysisRunRepoImpl) ListRecent(ctx context.Context, limit int64) ([]*AnalysisRunModel, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := s.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	list := make([]*AnalysisRunModel, 0)
	if err = cursor.All(ctx, &list); err != nil {
		return nil, err
	}
	return list, nil
}
