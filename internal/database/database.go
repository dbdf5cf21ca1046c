package database

import (
	"context"
	"time"

	"rapidphoto/internal/config"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Database interface {
	Health() error
	UploadStore
	TokenDatabase
}

// UploadStore groups the job and photo persistence the upload coordinator
// depends on
type UploadStore interface {
	JobDatabase
	PhotoDatabase
}

type mongoDB struct {
	client *mongo.Client
	db     *mongo.Database

	jobsCol   *mongo.Collection
	photosCol *mongo.Collection
	tokensCol *mongo.Collection
}

func New(config *config.Config) (Database, error) {
	clientOptions := options.Client().ApplyURI(config.MongoDB.URI)
	if config.MongoDB.Username != "" {
		clientOptions.SetAuth(options.Credential{
			Username: config.MongoDB.Username,
			Password: config.MongoDB.Password,
		})
	}

	client, err := mongo.Connect(context.TODO(), clientOptions)
	if err != nil {
		return nil, err
	}

	db := client.Database(config.MongoDB.DB)

	tokensCol := db.Collection("tokens")
	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token_hash", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	jobsCol := db.Collection("upload_jobs")
	jobIndexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index(),
		},
	}

	photosCol := db.Collection("photos")
	photoIndexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "job_id", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}},
			Options: options.Index(),
		},
		{
			// Compound index backing the stalled-upload scan
			Keys:    bson.D{{Key: "upload_status", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "s3_key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	_, err = tokensCol.Indexes().CreateMany(context.Background(), indexModels)
	if err != nil {
		log.Warn().Err(err).Str("Collection", "Tokens").Msg("Error creating indexes")
	}

	_, err = jobsCol.Indexes().CreateMany(context.Background(), jobIndexModels)
	if err != nil {
		log.Warn().Err(err).Str("Collection", "UploadJobs").Msg("Error creating indexes")
	}

	_, err = photosCol.Indexes().CreateMany(context.Background(), photoIndexModels)
	if err != nil {
		log.Warn().Err(err).Str("Collection", "Photos").Msg("Error creating indexes")
	}

	return &mongoDB{
		client:    client,
		db:        db,
		jobsCol:   jobsCol,
		photosCol: photosCol,
		tokensCol: tokensCol,
	}, nil
}

// Health implements Database interface
func (m *mongoDB) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	err := m.client.Ping(ctx, nil)
	if err != nil {
		log.Error().Msgf("Database health error: %v", err)
		return err
	}

	return nil
}
