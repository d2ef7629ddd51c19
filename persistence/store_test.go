package persistence

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/BaSui01/agentbus/types"
)

func testRecord(id, typ string, step types.Step) *types.StateRecord {
	return &types.StateRecord{
		WorkflowID:   id,
		WorkflowType: typ,
		Step:         step,
		Payload:      types.Payload{"severity": types.String("high"), "attempts": types.Int(2)},
		Log: []types.LogEntry{
			{ID: "e1", At: time.Now().UTC().Truncate(time.Millisecond), Step: step, Event: types.EventTransition},
		},
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

// TestMemoryStateStore tests the in-memory state store
func TestMemoryStateStore(t *testing.T) {
	store := NewMemoryStateStore()
	defer store.Close()

	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := store.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndLoad", func(t *testing.T) {
		record := testRecord("INC-1", "triage", types.StepCallingLLM)
		if err := store.Save(ctx, record); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		retrieved, err := store.Load(ctx, "INC-1", "triage")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if retrieved.Step != types.StepCallingLLM {
			t.Errorf("Step mismatch: got %s, want %s", retrieved.Step, types.StepCallingLLM)
		}
		if v, _ := retrieved.Payload["severity"].AsString(); v != "high" {
			t.Errorf("Payload mismatch: got %q", v)
		}
		if len(retrieved.Log) != 1 {
			t.Errorf("Log mismatch: got %d entries", len(retrieved.Log))
		}
	})

	t.Run("LoadNotFound", func(t *testing.T) {
		if _, err := store.Load(ctx, "missing", "triage"); err != ErrNotFound {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SaveInvalid", func(t *testing.T) {
		if err := store.Save(ctx, nil); err != ErrInvalidInput {
			t.Errorf("Expected ErrInvalidInput for nil record, got %v", err)
		}
		if err := store.Save(ctx, &types.StateRecord{WorkflowType: "triage"}); err != ErrInvalidInput {
			t.Errorf("Expected ErrInvalidInput for empty id, got %v", err)
		}
	})

	t.Run("UpsertSameKey", func(t *testing.T) {
		first := testRecord("INC-2", "triage", types.StepInitialized)
		if err := store.Save(ctx, first); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		second := testRecord("INC-2", "triage", types.StepValidating)
		if err := store.Save(ctx, second); err != nil {
			t.Fatalf("Second save failed: %v", err)
		}

		retrieved, err := store.Load(ctx, "INC-2", "triage")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if retrieved.Step != types.StepValidating {
			t.Errorf("Upsert should keep last write, got %s", retrieved.Step)
		}
	})

	t.Run("ListNonTerminal", func(t *testing.T) {
		records := []*types.StateRecord{
			testRecord("INC-3", "triage", types.StepPolicyEvaluating),
			testRecord("INC-4", "triage", types.StepCompleted),
			testRecord("INC-5", "resolution", types.StepError),
			testRecord("INC-6", "resolution", types.StepPausedForReview),
		}
		for _, record := range records {
			if err := store.Save(ctx, record); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
		}

		result, err := store.ListNonTerminal(ctx)
		if err != nil {
			t.Fatalf("ListNonTerminal failed: %v", err)
		}
		for _, record := range result {
			if record.IsTerminal() {
				t.Errorf("Got terminal record %s in non-terminal scan", record.Key())
			}
		}
		found := map[string]bool{}
		for _, record := range result {
			found[record.Key().String()] = true
		}
		if !found["triage/INC-3"] || !found["resolution/INC-6"] {
			t.Errorf("Missing non-terminal records, got %v", found)
		}
		if found["triage/INC-4"] || found["resolution/INC-5"] {
			t.Errorf("Terminal records leaked into scan: %v", found)
		}
	})

	t.Run("CopyIsolation", func(t *testing.T) {
		record := testRecord("INC-7", "triage", types.StepValidating)
		if err := store.Save(ctx, record); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		// Mutating the caller's record or a loaded copy must not leak into
		// the store.
		record.Step = types.StepError
		record.Payload["severity"] = types.String("mutated")

		loaded, _ := store.Load(ctx, "INC-7", "triage")
		loaded.Step = types.StepCompleted

		fresh, err := store.Load(ctx, "INC-7", "triage")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if fresh.Step != types.StepValidating {
			t.Errorf("Store record mutated externally: %s", fresh.Step)
		}
		if v, _ := fresh.Payload["severity"].AsString(); v != "high" {
			t.Errorf("Store payload mutated externally: %q", v)
		}
	})

	t.Run("ClosedStore", func(t *testing.T) {
		closed := NewMemoryStateStore()
		closed.Close()

		if err := closed.Save(ctx, testRecord("INC-8", "triage", types.StepInitialized)); err != ErrStoreClosed {
			t.Errorf("Expected ErrStoreClosed on save, got %v", err)
		}
		if _, err := closed.Load(ctx, "INC-8", "triage"); err != ErrStoreClosed {
			t.Errorf("Expected ErrStoreClosed on load, got %v", err)
		}
		if err := closed.Ping(ctx); err != ErrStoreClosed {
			t.Errorf("Expected ErrStoreClosed on ping, got %v", err)
		}
	})
}

// TestFileStateStore tests the file-based state store
func TestFileStateStore(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "agentbus-store-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	config := DefaultStoreConfig()
	config.BaseDir = tmpDir

	store, err := NewFileStateStore(config)
	if err != nil {
		t.Fatalf("Failed to create file state store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	t.Run("SaveAndLoad", func(t *testing.T) {
		record := testRecord("INC-10", "triage", types.StepLLMCompleted)
		if err := store.Save(ctx, record); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		retrieved, err := store.Load(ctx, "INC-10", "triage")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if retrieved.Step != types.StepLLMCompleted {
			t.Errorf("Step mismatch: got %s", retrieved.Step)
		}
		if i, _ := retrieved.Payload["attempts"].AsInt(); i != 2 {
			t.Errorf("Payload int mismatch: got %d", i)
		}
	})

	t.Run("LoadNotFound", func(t *testing.T) {
		if _, err := store.Load(ctx, "missing", "triage"); err != ErrNotFound {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SameIDDifferentType", func(t *testing.T) {
		if err := store.Save(ctx, testRecord("INC-11", "triage", types.StepValidating)); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if err := store.Save(ctx, testRecord("INC-11", "resolution", types.StepStoring)); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		triage, err := store.Load(ctx, "INC-11", "triage")
		if err != nil {
			t.Fatalf("Load triage failed: %v", err)
		}
		resolution, err := store.Load(ctx, "INC-11", "resolution")
		if err != nil {
			t.Fatalf("Load resolution failed: %v", err)
		}
		if triage.Step != types.StepValidating || resolution.Step != types.StepStoring {
			t.Errorf("Records collided: %s / %s", triage.Step, resolution.Step)
		}
	})

	t.Run("PersistenceAcrossRestart", func(t *testing.T) {
		pending := testRecord("INC-12", "triage", types.StepPausedForReview)
		deadline := time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)
		pending.PendingAction = &types.PendingAction{
			ActionName: "approve_policy",
			CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
			ExpiresAt:  &deadline,
		}
		if err := store.Save(ctx, pending); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if err := store.Save(ctx, testRecord("INC-13", "triage", types.StepCompleted)); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		store.Close()

		store2, err := NewFileStateStore(config)
		if err != nil {
			t.Fatalf("Failed to reopen store: %v", err)
		}
		defer store2.Close()

		retrieved, err := store2.Load(ctx, "INC-12", "triage")
		if err != nil {
			t.Fatalf("Record should persist: %v", err)
		}
		if retrieved.PendingAction == nil || retrieved.PendingAction.ActionName != "approve_policy" {
			t.Error("Pending action should survive restart")
		}
		if retrieved.PendingAction.ExpiresAt == nil || !retrieved.PendingAction.ExpiresAt.Equal(deadline) {
			t.Error("Expiry deadline should survive restart")
		}

		result, err := store2.ListNonTerminal(ctx)
		if err != nil {
			t.Fatalf("ListNonTerminal failed: %v", err)
		}
		for _, record := range result {
			if record.IsTerminal() {
				t.Errorf("Terminal record %s leaked into scan", record.Key())
			}
		}
	})
}

// TestStateStoreFactory tests the factory functions
func TestStateStoreFactory(t *testing.T) {
	t.Run("Memory", func(t *testing.T) {
		config := DefaultStoreConfig()
		config.Type = StoreTypeMemory

		store, err := NewStateStore(config)
		if err != nil {
			t.Fatalf("Failed to create memory state store: %v", err)
		}
		defer store.Close()

		if _, ok := store.(*MemoryStateStore); !ok {
			t.Error("Expected MemoryStateStore")
		}
	})

	t.Run("File", func(t *testing.T) {
		tmpDir, _ := os.MkdirTemp("", "agentbus-factory-test-*")
		defer os.RemoveAll(tmpDir)

		config := DefaultStoreConfig()
		config.Type = StoreTypeFile
		config.BaseDir = tmpDir

		store, err := NewStateStore(config)
		if err != nil {
			t.Fatalf("Failed to create file state store: %v", err)
		}
		defer store.Close()

		if _, ok := store.(*FileStateStore); !ok {
			t.Error("Expected FileStateStore")
		}
	})

	t.Run("SQL", func(t *testing.T) {
		config := DefaultStoreConfig()
		config.Type = StoreTypeSQL
		config.SQL.Driver = "sqlite"
		config.SQL.DSN = ":memory:"
		config.SQL.AutoMigrate = true

		store, err := NewStateStore(config)
		if err != nil {
			t.Fatalf("Failed to create sql state store: %v", err)
		}
		defer store.Close()

		if _, ok := store.(*GormStateStore); !ok {
			t.Error("Expected GormStateStore")
		}
	})

	t.Run("InvalidType", func(t *testing.T) {
		config := DefaultStoreConfig()
		config.Type = "invalid"

		if _, err := NewStateStore(config); err == nil {
			t.Error("Expected error for invalid type")
		}
	})
}
