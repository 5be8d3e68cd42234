package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/longregen/cogexec/internal/domain/models"
)

func TestTransactionManager_Commit(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	pool := setupTestDB(t)

	txMgr := NewTransactionManager(pool)
	memBackend := NewMemoryBackend(pool)

	rec := models.NewMemoryRecord("mem_tx_commit1", "test-user", "hello", "hi there", "", true)

	err := txMgr.WithTransaction(context.Background(), func(txCtx context.Context) error {
		return memBackend.Put(txCtx, rec)
	})

	if err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}

	retrieved, err := memBackend.GetByID(context.Background(), rec.UserID, rec.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if retrieved.ID != rec.ID {
		t.Error("memory record should be committed")
	}
}

func TestTransactionManager_Rollback(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	pool := setupTestDB(t)

	txMgr := NewTransactionManager(pool)
	memBackend := NewMemoryBackend(pool)

	rec := models.NewMemoryRecord("mem_tx_rollback1", "test-user", "hello", "hi there", "", true)
	testErr := errors.New("test error")

	err := txMgr.WithTransaction(context.Background(), func(txCtx context.Context) error {
		if err := memBackend.Put(txCtx, rec); err != nil {
			return err
		}
		return testErr
	})

	if err != testErr {
		t.Fatalf("expected test error, got %v", err)
	}

	_, err = memBackend.GetByID(context.Background(), rec.UserID, rec.ID)
	if err == nil {
		t.Error("memory record should have been rolled back")
	}
}

func TestTransactionManager_NestedTransaction(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	pool := setupTestDB(t)

	txMgr := NewTransactionManager(pool)
	memBackend := NewMemoryBackend(pool)

	rec1 := models.NewMemoryRecord("mem_tx_nested1", "test-user", "a", "b", "", true)
	rec2 := models.NewMemoryRecord("mem_tx_nested2", "test-user", "c", "d", "", true)

	err := txMgr.WithTransaction(context.Background(), func(txCtx context.Context) error {
		if err := memBackend.Put(txCtx, rec1); err != nil {
			return err
		}

		return txMgr.WithTransaction(txCtx, func(nestedCtx context.Context) error {
			return memBackend.Put(nestedCtx, rec2)
		})
	})

	if err != nil {
		t.Fatalf("Nested transaction failed: %v", err)
	}

	if _, err := memBackend.GetByID(context.Background(), rec1.UserID, rec1.ID); err != nil {
		t.Error("first record should be committed")
	}
	if _, err := memBackend.GetByID(context.Background(), rec2.UserID, rec2.ID); err != nil {
		t.Error("second record should be committed")
	}
}

func TestTransactionManager_NestedRollback(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	pool := setupTestDB(t)

	txMgr := NewTransactionManager(pool)
	memBackend := NewMemoryBackend(pool)

	rec1 := models.NewMemoryRecord("mem_tx_nested_rb1", "test-user", "a", "b", "", true)
	rec2 := models.NewMemoryRecord("mem_tx_nested_rb2", "test-user", "c", "d", "", true)
	testErr := errors.New("nested error")

	err := txMgr.WithTransaction(context.Background(), func(txCtx context.Context) error {
		if err := memBackend.Put(txCtx, rec1); err != nil {
			return err
		}

		return txMgr.WithTransaction(txCtx, func(nestedCtx context.Context) error {
			if err := memBackend.Put(nestedCtx, rec2); err != nil {
				return err
			}
			return testErr
		})
	})

	if err != testErr {
		t.Fatalf("expected test error, got %v", err)
	}

	if _, err := memBackend.GetByID(context.Background(), rec1.UserID, rec1.ID); err == nil {
		t.Error("first record should be rolled back")
	}
	if _, err := memBackend.GetByID(context.Background(), rec2.UserID, rec2.ID); err == nil {
		t.Error("second record should be rolled back")
	}
}

func TestTransactionManager_GetTx_NoTransaction(t *testing.T) {
	ctx := context.Background()

	tx := GetTx(ctx)
	if tx != nil {
		t.Error("expected nil transaction in empty context")
	}
}

func TestTransactionManager_GetTx_WithTransaction(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	pool := setupTestDB(t)

	txMgr := NewTransactionManager(pool)

	err := txMgr.WithTransaction(context.Background(), func(txCtx context.Context) error {
		tx := GetTx(txCtx)
		if tx == nil {
			t.Error("expected transaction in transaction context")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}
}

func TestTransactionManager_GetConn_Pool(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	pool := setupTestDB(t)

	ctx := context.Background()
	conn := GetConn(ctx, pool)

	if conn == nil {
		t.Error("expected connection from pool")
	}
}

func TestTransactionManager_GetConn_Transaction(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	pool := setupTestDB(t)

	txMgr := NewTransactionManager(pool)

	err := txMgr.WithTransaction(context.Background(), func(txCtx context.Context) error {
		conn := GetConn(txCtx, pool)
		if conn == nil {
			t.Error("expected connection from transaction")
		}

		tx := GetTx(txCtx)
		if tx == nil {
			t.Error("expected transaction in context")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}
}
