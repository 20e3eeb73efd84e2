package db

import (
	"context"

	"duel/internal/types"

	"github.com/charmbracelet/log"
	"github.com/rotisserie/eris"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const resultsCollection = "game_results"

func ConnectMongo(ctx context.Context, uri, database string) (*mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, eris.Wrap(err, "mongo connect")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, eris.Wrap(err, "mongo ping")
	}
	log.Infof("Connected to MongoDB database %s", database)
	return client.Database(database), nil
}

// MongoRecorder appends one document per participant to game_results.
type MongoRecorder struct {
	coll *mongo.Collection
}

func NewMongoRecorder(database *mongo.Database) *MongoRecorder {
	return &MongoRecorder{coll: database.Collection(resultsCollection)}
}

func (r *MongoRecorder) Record(ctx context.Context, result types.GameResult) error {
	if _, err := r.coll.InsertOne(ctx, result); err != nil {
		return eris.Wrapf(err, "insert result of room %s", result.RoomID)
	}
	return nil
}

func (r *MongoRecorder) Close() error {
	return r.coll.Database().Client().Disconnect(context.Background())
}
