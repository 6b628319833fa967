package cleanup_test

import (
	"context"
	"fmt"
	"testing"

	"fieldkit/platform/assistantapi"
	"fieldkit/platform/schema"
	"fieldkit/platform/storage"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupDb(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}

	// The gather phase fans out reads; an in memory sqlite db only exists on
	// the connection that created it, so the pool must stay at one.
	sqlDb, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDb.SetMaxOpenConns(1)

	if err := db.AutoMigrate(schema.Tables()...); err != nil {
		t.Fatal(err)
	}

	return db
}

// apiFake tracks external assistant api resources as in memory sets.
// Unimplemented methods panic via the embedded nil interface.
type apiFake struct {
	assistantapi.Client

	assistants map[string]struct{}
	stores     map[string]struct{}
	files      map[string]struct{}

	deleteErrs map[string]error
}

func newApiFake() *apiFake {
	return &apiFake{
		assistants: make(map[string]struct{}),
		stores:     make(map[string]struct{}),
		files:      make(map[string]struct{}),
		deleteErrs: make(map[string]error),
	}
}

func (f *apiFake) deleteFrom(set map[string]struct{}, id string) error {
	if err := f.deleteErrs[id]; err != nil {
		return err
	}
	if _, ok := set[id]; !ok {
		return fmt.Errorf("deleting %v: %w", id, assistantapi.ErrNotFound)
	}
	delete(set, id)
	return nil
}

func (f *apiFake) DeleteAssistant(ctx context.Context, assistantId string) error {
	return f.deleteFrom(f.assistants, assistantId)
}

func (f *apiFake) DeleteVectorStore(ctx context.Context, vectorStoreId string) error {
	return f.deleteFrom(f.stores, vectorStoreId)
}

func (f *apiFake) DeleteFile(ctx context.Context, fileId string) error {
	return f.deleteFrom(f.files, fileId)
}

func (f *apiFake) AssistantExists(ctx context.Context, assistantId string) (bool, error) {
	_, ok := f.assistants[assistantId]
	return ok, nil
}

func (f *apiFake) VectorStoreExists(ctx context.Context, vectorStoreId string) (bool, error) {
	_, ok := f.stores[vectorStoreId]
	return ok, nil
}

func (f *apiFake) FileExists(ctx context.Context, fileId string) (bool, error) {
	_, ok := f.files[fileId]
	return ok, nil
}

// storeFake is an in memory object store.
type storeFake struct {
	storage.Storage

	files      map[string]struct{}
	deleteErrs map[string]error
	deleted    []string
}

func newStoreFake() *storeFake {
	return &storeFake{
		files:      make(map[string]struct{}),
		deleteErrs: make(map[string]error),
	}
}

func (f *storeFake) Delete(path string) error {
	if err := f.deleteErrs[path]; err != nil {
		return err
	}
	delete(f.files, path)
	f.deleted = append(f.deleted, path)
	return nil
}
