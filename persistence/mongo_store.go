package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/BaSui01/agentbus/types"
)

// mongoStateDoc is the document shape of a state record. Opaque fields are
// stored as JSON bytes so they round-trip exactly; step is indexed for the
// recovery scan.
type mongoStateDoc struct {
	ID            string    `bson:"_id"`
	WorkflowID    string    `bson:"workflow_id"`
	WorkflowType  string    `bson:"workflow_type"`
	Step          string    `bson:"step"`
	Payload       []byte    `bson:"payload,omitempty"`
	PendingAction []byte    `bson:"pending_action,omitempty"`
	Log           []byte    `bson:"log,omitempty"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

func mongoDocID(workflowID, workflowType string) string {
	return workflowType + "/" + workflowID
}

func toMongoDoc(record *types.StateRecord) (*mongoStateDoc, error) {
	doc := &mongoStateDoc{
		ID:           mongoDocID(record.WorkflowID, record.WorkflowType),
		WorkflowID:   record.WorkflowID,
		WorkflowType: record.WorkflowType,
		Step:         string(record.Step),
		UpdatedAt:    record.UpdatedAt,
	}

	var err error
	if len(record.Payload) > 0 {
		if doc.Payload, err = json.Marshal(record.Payload); err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
	}
	if record.PendingAction != nil {
		if doc.PendingAction, err = json.Marshal(record.PendingAction); err != nil {
			return nil, fmt.Errorf("failed to marshal pending action: %w", err)
		}
	}
	if len(record.Log) > 0 {
		if doc.Log, err = json.Marshal(record.Log); err != nil {
			return nil, fmt.Errorf("failed to marshal log: %w", err)
		}
	}
	return doc, nil
}

func fromMongoDoc(doc *mongoStateDoc) (*types.StateRecord, error) {
	record := &types.StateRecord{
		WorkflowID:   doc.WorkflowID,
		WorkflowType: doc.WorkflowType,
		Step:         types.Step(doc.Step),
		UpdatedAt:    doc.UpdatedAt,
	}

	if len(doc.Payload) > 0 {
		if err := json.Unmarshal(doc.Payload, &record.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}
	if len(doc.PendingAction) > 0 {
		record.PendingAction = &types.PendingAction{}
		if err := json.Unmarshal(doc.PendingAction, record.PendingAction); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pending action: %w", err)
		}
	}
	if len(doc.Log) > 0 {
		if err := json.Unmarshal(doc.Log, &record.Log); err != nil {
			return nil, fmt.Errorf("failed to unmarshal log: %w", err)
		}
	}
	return record, nil
}

// MongoStateStore is a MongoDB implementation of StateStore.
type MongoStateStore struct {
	client *mongo.Client
	col    *mongo.Collection
}

var _ StateStore = (*MongoStateStore)(nil)

// NewMongoStateStore connects to MongoDB and prepares the record collection
func NewMongoStateStore(cfg MongoStoreConfig) (*MongoStateStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	col := client.Database(cfg.Database).Collection(cfg.Collection)
	_, err = col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "step", Value: 1}},
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create step index: %w", err)
	}

	return &MongoStateStore{client: client, col: col}, nil
}

// Save upserts a record by its workflow key
func (s *MongoStateStore) Save(ctx context.Context, record *types.StateRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	doc, err := toMongoDoc(record)
	if err != nil {
		return err
	}

	_, err = s.col.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

// Load retrieves a record by workflow key
func (s *MongoStateStore) Load(ctx context.Context, workflowID, workflowType string) (*types.StateRecord, error) {
	var doc mongoStateDoc
	err := s.col.FindOne(ctx, bson.M{"_id": mongoDocID(workflowID, workflowType)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromMongoDoc(&doc)
}

// ListNonTerminal returns every record whose step is not terminal
func (s *MongoStateStore) ListNonTerminal(ctx context.Context) ([]*types.StateRecord, error) {
	cur, err := s.col.Find(ctx, bson.M{"step": bson.M{"$nin": terminalSteps()}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	result := make([]*types.StateRecord, 0)
	for cur.Next(ctx) {
		var doc mongoStateDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		record, err := fromMongoDoc(&doc)
		if err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	return result, cur.Err()
}

// Ping checks if the store is healthy
func (s *MongoStateStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects from MongoDB
func (s *MongoStateStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
