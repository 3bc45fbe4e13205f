package journal

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBRepository implements Repository using MongoDB.
type MongoDBRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// mongoSettlement represents the MongoDB document structure.
type mongoSettlement struct {
	InboundTxID   string    `bson:"_id"`
	OutboundTxID  string    `bson:"outboundTxId"`
	AuditTxID     string    `bson:"auditTxId,omitempty"`
	UserAccountID string    `bson:"userAccountId"`
	SourceToken   string    `bson:"sourceToken"`
	SourceTiny    int64     `bson:"sourceTiny"`
	DestToken     string    `bson:"destToken"`
	GrossTiny     int64     `bson:"grossTiny"`
	FeeTiny       int64     `bson:"feeTiny"`
	NetTiny       int64     `bson:"netTiny"`
	Rate          string    `bson:"rate"`
	RateSequence  int64     `bson:"rateSequence"`
	SettledAt     time.Time `bson:"settledAt"`
}

// NewMongoDBRepository creates a MongoDB-backed journal.
func NewMongoDBRepository(connectionString, database, collection string) (*MongoDBRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connectionString))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	if database == "" {
		database = "meridian"
	}
	if collection == "" {
		collection = "settlements"
	}
	coll := client.Database(database).Collection(collection)

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "userAccountId", Value: 1}, {Key: "settledAt", Value: -1}}},
	}
	if _, err := coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("create settlement indexes: %w", err)
	}

	return &MongoDBRepository{client: client, collection: coll}, nil
}

func (r *MongoDBRepository) Record(ctx context.Context, s Settlement) error {
	doc := mongoSettlement{
		InboundTxID:   s.InboundTxID,
		OutboundTxID:  s.OutboundTxID,
		AuditTxID:     s.AuditTxID,
		UserAccountID: s.UserAccountID,
		SourceToken:   s.SourceToken,
		SourceTiny:    s.SourceTiny,
		DestToken:     s.DestToken,
		GrossTiny:     s.GrossTiny,
		FeeTiny:       s.FeeTiny,
		NetTiny:       s.NetTiny,
		Rate:          s.Rate,
		RateSequence:  s.RateSequence,
		SettledAt:     s.SettledAt,
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctx, bson.M{"_id": s.InboundTxID}, doc, opts); err != nil {
		return fmt.Errorf("record settlement: %w", err)
	}
	return nil
}

func (r *MongoDBRepository) GetByInboundTx(ctx context.Context, inboundTxID string) (Settlement, error) {
	var doc mongoSettlement
	err := r.collection.FindOne(ctx, bson.M{"_id": inboundTxID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return Settlement{}, ErrNotFound
	}
	if err != nil {
		return Settlement{}, fmt.Errorf("get settlement: %w", err)
	}
	return doc.toSettlement(), nil
}

func (r *MongoDBRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]Settlement, error) {
	if limit <= 0 {
		limit = 50
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "settledAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{"userAccountId": accountID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	defer cursor.Close(ctx)

	var out []Settlement
	for cursor.Next(ctx) {
		var doc mongoSettlement
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode settlement: %w", err)
		}
		out = append(out, doc.toSettlement())
	}
	return out, cursor.Err()
}

func (r *MongoDBRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

func (d mongoSettlement) toSettlement() Settlement {
	return Settlement{
		InboundTxID:   d.InboundTxID,
		OutboundTxID:  d.OutboundTxID,
		AuditTxID:     d.AuditTxID,
		UserAccountID: d.UserAccountID,
		SourceToken:   d.SourceToken,
		SourceTiny:    d.SourceTiny,
		DestToken:     d.DestToken,
		GrossTiny:     d.GrossTiny,
		FeeTiny:       d.FeeTiny,
		NetTiny:       d.NetTiny,
		Rate:          d.Rate,
		RateSequence:  d.RateSequence,
		SettledAt:     d.SettledAt,
	}
}
