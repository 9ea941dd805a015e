package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestBoltDB_Integration tests BoltDB with a real database file
func TestBoltDB_Integration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := NewBoltDB(path, "test")
	assert.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	bucket := "test"

	key := []byte("test-key")
	value := []byte("test-value")

	err = db.PutKV(ctx, bucket, key, value)
	assert.NoError(t, err)

	retrievedValue, err := db.GetKV(ctx, bucket, key)
	assert.NoError(t, err)
	assert.Equal(t, value, retrievedValue)

	err = db.DeleteKV(ctx, bucket, key)
	assert.NoError(t, err)

	retrievedValue, err = db.GetKV(ctx, bucket, key)
	assert.NoError(t, err)
	assert.Nil(t, retrievedValue)
}

// TestGenericRepository tests the generic repository
func TestGenericRepository(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test_repo.db")

	db, err := NewBoltDB(path, "test")
	assert.NoError(t, err)
	defer db.Close()

	type TestEntity struct {
		ID   string    `json:"id"`
		Name string    `json:"name"`
		Time time.Time `json:"time"`
	}

	repo := NewGenericRepository[*TestEntity](db, "test")
	ctx := context.Background()

	entity := &TestEntity{
		ID:   "test-1",
		Name: "Test Entity",
		Time: time.Now(),
	}

	err = repo.Save(ctx, entity.ID, entity)
	assert.NoError(t, err)

	retrieved, err := repo.Get(ctx, entity.ID)
	assert.NoError(t, err)
	assert.Equal(t, entity.ID, retrieved.ID)
	assert.Equal(t, entity.Name, retrieved.Name)

	entity2 := &TestEntity{
		ID:   "test-2",
		Name: "Test Entity 2",
		Time: time.Now(),
	}

	err = repo.Save(ctx, entity2.ID, entity2)
	assert.NoError(t, err)

	all, err := repo.GetAll(ctx)
	assert.NoError(t, err)
	assert.Len(t, all, 2)

	err = repo.Delete(ctx, entity.ID)
	assert.NoError(t, err)

	_, err = repo.Get(ctx, entity.ID)
	assert.Error(t, err)
}
