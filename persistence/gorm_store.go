package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/agentbus/internal/database"
	"github.com/BaSui01/agentbus/types"
)

// stateRow is the relational shape of a state record. Payload, pending
// action, and log are JSON columns; step is indexed for the recovery scan.
type stateRow struct {
	WorkflowID    string    `gorm:"column:workflow_id;primaryKey;size:255"`
	WorkflowType  string    `gorm:"column:workflow_type;primaryKey;size:64"`
	Step          string    `gorm:"column:step;size:32;index:idx_state_records_step"`
	Payload       []byte    `gorm:"column:payload"`
	PendingAction []byte    `gorm:"column:pending_action"`
	Log           []byte    `gorm:"column:log"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (stateRow) TableName() string { return "state_records" }

func toStateRow(record *types.StateRecord) (*stateRow, error) {
	row := &stateRow{
		WorkflowID:   record.WorkflowID,
		WorkflowType: record.WorkflowType,
		Step:         string(record.Step),
		UpdatedAt:    record.UpdatedAt,
	}

	var err error
	if len(record.Payload) > 0 {
		if row.Payload, err = json.Marshal(record.Payload); err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
	}
	if record.PendingAction != nil {
		if row.PendingAction, err = json.Marshal(record.PendingAction); err != nil {
			return nil, fmt.Errorf("failed to marshal pending action: %w", err)
		}
	}
	if len(record.Log) > 0 {
		if row.Log, err = json.Marshal(record.Log); err != nil {
			return nil, fmt.Errorf("failed to marshal log: %w", err)
		}
	}
	return row, nil
}

func fromStateRow(row *stateRow) (*types.StateRecord, error) {
	record := &types.StateRecord{
		WorkflowID:   row.WorkflowID,
		WorkflowType: row.WorkflowType,
		Step:         types.Step(row.Step),
		UpdatedAt:    row.UpdatedAt,
	}

	if len(row.Payload) > 0 {
		if err := json.Unmarshal(row.Payload, &record.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}
	if len(row.PendingAction) > 0 {
		record.PendingAction = &types.PendingAction{}
		if err := json.Unmarshal(row.PendingAction, record.PendingAction); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pending action: %w", err)
		}
	}
	if len(row.Log) > 0 {
		if err := json.Unmarshal(row.Log, &record.Log); err != nil {
			return nil, fmt.Errorf("failed to unmarshal log: %w", err)
		}
	}
	return record, nil
}

// GormStateStore is a SQL implementation of StateStore backed by GORM.
// Dialects: Postgres, MySQL, SQLite.
type GormStateStore struct {
	db *gorm.DB
}

var _ StateStore = (*GormStateStore)(nil)

// NewGormStateStore wraps an opened GORM connection. The store owns the
// connection and closes it on Close.
func NewGormStateStore(db *gorm.DB) *GormStateStore {
	return &GormStateStore{db: db}
}

// OpenSQLStateStore connects per the configuration and optionally creates
// the schema.
func OpenSQLStateStore(cfg SQLStoreConfig) (*GormStateStore, error) {
	db, err := database.Open(database.Config{
		Driver:          cfg.Driver,
		DSN:             cfg.DSN,
		MaxIdleConns:    cfg.MaxIdleConns,
		MaxOpenConns:    cfg.MaxOpenConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, nil)
	if err != nil {
		return nil, err
	}

	store := NewGormStateStore(db)
	if cfg.AutoMigrate {
		if err := store.Migrate(); err != nil {
			store.Close()
			return nil, err
		}
	}
	return store, nil
}

// Migrate creates the state_records table. Production deployments use the
// migrate subcommand instead.
func (s *GormStateStore) Migrate() error {
	return s.db.AutoMigrate(&stateRow{})
}

// Save upserts a record by its workflow key
func (s *GormStateStore) Save(ctx context.Context, record *types.StateRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	row, err := toStateRow(record)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "workflow_id"}, {Name: "workflow_type"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"step", "payload", "pending_action", "log", "updated_at",
		}),
	}).Create(row).Error
}

// Load retrieves a record by workflow key
func (s *GormStateStore) Load(ctx context.Context, workflowID, workflowType string) (*types.StateRecord, error) {
	var row stateRow
	err := s.db.WithContext(ctx).
		First(&row, "workflow_id = ? AND workflow_type = ?", workflowID, workflowType).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromStateRow(&row)
}

// ListNonTerminal returns every record whose step is not terminal
func (s *GormStateStore) ListNonTerminal(ctx context.Context) ([]*types.StateRecord, error) {
	var rows []stateRow
	err := s.db.WithContext(ctx).
		Where("step NOT IN ?", terminalSteps()).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make([]*types.StateRecord, 0, len(rows))
	for i := range rows {
		record, err := fromStateRow(&rows[i])
		if err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	return result, nil
}

// Ping checks if the store is healthy
func (s *GormStateStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the store
func (s *GormStateStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
