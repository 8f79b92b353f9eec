package repository

import (
	"context"
	"errors"
	"time"

	"github.com/codecoalition/collabd/internal/domain"
	"github.com/codecoalition/collabd/internal/persistence/db"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type workspaceSnapshotRepository struct {
	db *mongo.Database
}

func NewWorkspaceSnapshotRepository(db *mongo.Database) domain.SnapshotRepository {
	return &workspaceSnapshotRepository{
		db: db,
	}
}

func (r *workspaceSnapshotRepository) Save(ctx context.Context, roomID string, fileTree *domain.WorkspaceNode) error {
	collection := r.db.Collection(db.WorkspaceSnapshotsCollection)

	filter := bson.M{"roomId": roomID}
	update := bson.M{
		"$set": bson.M{
			"fileTree":  fileTree,
			"updatedAt": time.Now().UTC(),
		},
		"$setOnInsert": bson.M{
			"roomId": roomID,
		},
	}

	opts := options.Update().SetUpsert(true)

	_, err := collection.UpdateOne(ctx, filter, update, opts)
	return err
}

func (r *workspaceSnapshotRepository) Load(ctx context.Context, roomID string) (*domain.WorkspaceSnapshot, error) {
	collection := r.db.Collection(db.WorkspaceSnapshotsCollection)

	var snapshot domain.WorkspaceSnapshot
	err := collection.FindOne(ctx, bson.M{"roomId": roomID}).Decode(&snapshot)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}

	return &snapshot, nil
}

func (r *workspaceSnapshotRepository) EnsureIndexes(ctx context.Context) error {
	collection := r.db.Collection(db.WorkspaceSnapshotsCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "roomId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updatedAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(2592000), // 30 days TTL
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
