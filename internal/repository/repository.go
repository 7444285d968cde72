package repository

import (
	"context"
	"time"

	"warranty-proxy-service/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const auditCollection = "warranty_audit"

// MongoAuditRepository stores one document per successful warranty mutation.
type MongoAuditRepository struct {
	col *mongo.Collection
}

func NewMongoAuditRepository(db *mongo.Database) *MongoAuditRepository {
	return &MongoAuditRepository{col: db.Collection(auditCollection)}
}

// EnsureIndexes creates the customer/time index used by FindByCustomerID.
func (m *MongoAuditRepository) EnsureIndexes(ctx context.Context) error {
	_, err := m.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "customer_id", Value: 1},
			{Key: "created_at", Value: -1},
		},
	})
	return err
}

func (m *MongoAuditRepository) Save(ctx context.Context, e *model.AuditEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := m.col.InsertOne(ctx, e)
	return err
}

// FindByCustomerID returns up to limit entries, newest first.
func (m *MongoAuditRepository) FindByCustomerID(ctx context.Context, customerID string, limit int64) ([]*model.AuditEntry, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cur, err := m.col.Find(ctx, bson.M{"customer_id": customerID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*model.AuditEntry
	for cur.Next(ctx) {
		var v model.AuditEntry
		if err := cur.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, cur.Err()
}
