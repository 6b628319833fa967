package chatctx_test

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"fieldkit/platform/chatctx"
	"fieldkit/platform/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func createInventoryDoc(t *testing.T, db *gorm.DB, teamId uuid.UUID, fileId string, createdAt time.Time) {
	doc := schema.Document{
		Id: uuid.New(), TeamId: teamId, PortfolioId: uuid.New(),
		OriginalName: fileId + ".xlsx", FilePath: "inventory/" + fileId + ".xlsx",
		DocumentType: schema.DocTypeInventory, OpenAIFileId: fileId,
		CreatedAt: createdAt,
	}
	if err := db.Create(&doc).Error; err != nil {
		t.Fatal(err)
	}
}

func TestEnsureInventoryNoDocuments(t *testing.T) {
	db := setupDb(t)
	api := newApiStub()
	indexer := chatctx.NewInventoryIndexer(db, api)

	added, err := indexer.EnsureInventoryInVectorStore(context.Background(), "vs-1", uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if len(added) != 0 {
		t.Fatalf("expected nothing added, got %v", added)
	}
	if api.addCalls != 0 {
		t.Fatal("no documents should mean no api calls")
	}
}

func TestEnsureInventoryAddsMissingOnly(t *testing.T) {
	db := setupDb(t)
	api := newApiStub()
	api.storeFiles["vs-1"] = []string{"inv-a"}
	indexer := chatctx.NewInventoryIndexer(db, api)

	teamId := uuid.New()
	createInventoryDoc(t, db, teamId, "inv-a", time.Now())
	createInventoryDoc(t, db, teamId, "inv-b", time.Now())
	createInventoryDoc(t, db, teamId, "inv-c", time.Now())

	// In flight and failed ingestions must be skipped.
	createInventoryDoc(t, db, teamId, schema.FileProcessing, time.Now())
	createInventoryDoc(t, db, teamId, schema.FileFailed, time.Now())

	added, err := indexer.EnsureInventoryInVectorStore(context.Background(), "vs-1", teamId)
	if err != nil {
		t.Fatal(err)
	}

	sort.Strings(added)
	if len(added) != 2 || added[0] != "inv-b" || added[1] != "inv-c" {
		t.Fatalf("expected only missing files added, got %v", added)
	}
}

func TestEnsureInventoryContinuesPastFailures(t *testing.T) {
	db := setupDb(t)
	api := newApiStub()
	api.addFileErrs["inv-a"] = errors.New("add failed")
	indexer := chatctx.NewInventoryIndexer(db, api)

	teamId := uuid.New()
	createInventoryDoc(t, db, teamId, "inv-a", time.Now())
	createInventoryDoc(t, db, teamId, "inv-b", time.Now())

	added, err := indexer.EnsureInventoryInVectorStore(context.Background(), "vs-1", teamId)
	if err != nil {
		t.Fatal(err)
	}
	if len(added) != 1 || added[0] != "inv-b" {
		t.Fatalf("expected the remaining file added despite one failure, got %v", added)
	}
}

func TestVectorStoreHasInventory(t *testing.T) {
	db := setupDb(t)
	api := newApiStub()
	indexer := chatctx.NewInventoryIndexer(db, api)

	teamId := uuid.New()

	// A team with no inventory counts as indexed.
	if !indexer.VectorStoreHasInventory(context.Background(), "vs-1", teamId) {
		t.Fatal("expected indexed with no inventory documents")
	}

	createInventoryDoc(t, db, teamId, "inv-old", time.Now().Add(-time.Hour))
	createInventoryDoc(t, db, teamId, "inv-new", time.Now())

	api.storeFiles["vs-1"] = []string{"inv-old"}
	if indexer.VectorStoreHasInventory(context.Background(), "vs-1", teamId) {
		t.Fatal("expected not indexed when the newest document is missing")
	}

	api.storeFiles["vs-1"] = []string{"inv-old", "inv-new"}
	if !indexer.VectorStoreHasInventory(context.Background(), "vs-1", teamId) {
		t.Fatal("expected indexed when the newest document is present")
	}

	api.listErr = errors.New("list failed")
	if indexer.VectorStoreHasInventory(context.Background(), "vs-1", teamId) {
		t.Fatal("a failed check must count as not indexed")
	}
}
