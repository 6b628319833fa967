package cleanup_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"fieldkit/platform/cleanup"
	"fieldkit/platform/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func newDeletionService(db *gorm.DB, api *apiFake, store *storeFake) *cleanup.DeletionService {
	return cleanup.NewDeletionService(db, cleanup.NewOpenAICleanup(api), cleanup.NewStorageCleanup(store))
}

// seedTeam creates a team with 2 documents, 1 cached assistant backed by one
// vector store, 3 knowledge rows, and 5 chat threads, mirroring the external
// resources into the fakes.
func seedTeam(t *testing.T, db *gorm.DB, api *apiFake, store *storeFake) schema.Team {
	team := schema.Team{Id: uuid.New(), Name: "Acme", CreatedBy: uuid.New()}
	if err := db.Create(&team).Error; err != nil {
		t.Fatal(err)
	}

	portfolioId := uuid.New()

	for i, fileId := range []string{"f1", "f2"} {
		doc := schema.Document{
			Id: uuid.New(), TeamId: team.Id, PortfolioId: portfolioId,
			OriginalName: fmt.Sprintf("doc%d.pdf", i+1), FilePath: fmt.Sprintf("docs/doc%d.pdf", i+1),
			DocumentType: schema.DocTypePortfolio, OpenAIFileId: fileId,
		}
		if err := db.Create(&doc).Error; err != nil {
			t.Fatal(err)
		}
		api.files[fileId] = struct{}{}
		store.files[doc.FilePath] = struct{}{}
	}

	assistant := schema.AssistantRecord{
		Id: uuid.New(), TeamId: team.Id, PortfolioId: portfolioId,
		OpenAIAssistantId: "a1", VectorStoreId: "v1", CreatedAt: time.Now(),
	}
	if err := db.Create(&assistant).Error; err != nil {
		t.Fatal(err)
	}
	api.assistants["a1"] = struct{}{}
	api.stores["v1"] = struct{}{}

	for i := 0; i < 3; i++ {
		record := schema.KnowledgeRecord{
			Id: uuid.New(), TeamId: team.Id, PortfolioId: &portfolioId,
			Category: schema.CategoryInventory, Title: fmt.Sprintf("item %d", i),
		}
		if err := db.Create(&record).Error; err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < 5; i++ {
		thread := schema.ChatThread{
			Id: uuid.New(), UserId: uuid.New(), TeamId: team.Id,
			PortfolioId: portfolioId, ThreadId: fmt.Sprintf("thread-%d", i),
		}
		if err := db.Create(&thread).Error; err != nil {
			t.Fatal(err)
		}
	}

	return team
}

func TestDeleteTeamEndToEnd(t *testing.T) {
	db := setupDb(t)
	api := newApiFake()
	store := newStoreFake()
	team := seedTeam(t, db, api, store)

	report := newDeletionService(db, api, store).DeleteTeam(
		context.Background(), team.Id, cleanup.DeletionOptions{DeleteExternalResources: true})

	if !report.Success {
		t.Fatalf("expected success, got %+v", report)
	}
	if report.PartialCleanup {
		t.Fatal("unexpected partial cleanup flag")
	}

	deleted := report.DeletedResources
	if deleted.Assistants != 1 || deleted.VectorStores != 1 || deleted.Files != 2 {
		t.Fatalf("unexpected external counts: %+v", deleted)
	}
	// 3 knowledge rows + 5 chat threads + the team row.
	if deleted.DatabaseRecords != 9 {
		t.Fatalf("unexpected database record count: %d", deleted.DatabaseRecords)
	}
	if deleted.StorageFiles != 2 {
		t.Fatalf("unexpected storage file count: %d", deleted.StorageFiles)
	}

	if len(api.assistants) != 0 || len(api.stores) != 0 || len(api.files) != 0 {
		t.Fatal("external resources left behind")
	}
	if len(store.files) != 0 {
		t.Fatalf("storage files left behind: %v", store.files)
	}

	var count int64
	if err := db.Model(&schema.Team{}).Where("id = ?", team.Id).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatal("team row still present")
	}
}

func TestDeleteTeamSkipsExternalWhenNotRequested(t *testing.T) {
	db := setupDb(t)
	api := newApiFake()
	store := newStoreFake()
	team := seedTeam(t, db, api, store)

	report := newDeletionService(db, api, store).DeleteTeam(
		context.Background(), team.Id, cleanup.DeletionOptions{DeleteExternalResources: false})

	if !report.Success {
		t.Fatalf("expected success, got %+v", report)
	}
	if report.DeletedResources.Assistants != 0 || report.DeletedResources.Files != 0 || report.DeletedResources.StorageFiles != 0 {
		t.Fatalf("external cleanup must not run, got %+v", report.DeletedResources)
	}
	// With no external counters to carry them, the 2 document rows and the
	// cached assistant row count as database records alongside the 3
	// knowledge rows, 5 chat threads, and the team row.
	if report.DeletedResources.DatabaseRecords != 12 {
		t.Fatalf("unexpected database record count: %d", report.DeletedResources.DatabaseRecords)
	}
	if len(api.assistants) != 1 || len(store.files) != 2 {
		t.Fatal("external resources must be untouched")
	}
}

func TestDeleteTeamIdempotent(t *testing.T) {
	db := setupDb(t)
	api := newApiFake()
	store := newStoreFake()
	team := seedTeam(t, db, api, store)

	service := newDeletionService(db, api, store)
	opts := cleanup.DeletionOptions{DeleteExternalResources: true}

	first := service.DeleteTeam(context.Background(), team.Id, opts)
	if !first.Success {
		t.Fatalf("expected first deletion to succeed, got %+v", first)
	}

	second := service.DeleteTeam(context.Background(), team.Id, opts)
	if second.Success {
		t.Fatal("second deletion cannot succeed, the team is gone")
	}
	if second.PartialCleanup {
		t.Fatalf("re-deleting a deleted team is not a critical failure: %+v", second)
	}
	if second.Error != "Team not found" {
		t.Fatalf("unexpected error: %q", second.Error)
	}
}

func TestDeleteTeamNotFound(t *testing.T) {
	db := setupDb(t)
	report := newDeletionService(db, newApiFake(), newStoreFake()).DeleteTeam(
		context.Background(), uuid.New(), cleanup.DeletionOptions{})

	if report.Success || report.Error != "Team not found" {
		t.Fatalf("expected not-found report, got %+v", report)
	}
	if report.PartialCleanup {
		t.Fatal("no cleanup was attempted, partial flag must be off")
	}
}

func TestDeleteTeamRowLastDespiteChildFailure(t *testing.T) {
	db := setupDb(t)
	api := newApiFake()
	store := newStoreFake()
	team := seedTeam(t, db, api, store)

	// Force the knowledge table delete to fail mid-sequence.
	if err := db.Migrator().DropTable(&schema.KnowledgeRecord{}); err != nil {
		t.Fatal(err)
	}

	report := newDeletionService(db, api, store).DeleteTeam(
		context.Background(), team.Id, cleanup.DeletionOptions{})

	if !report.Success {
		t.Fatalf("a single child table failure is soft, got %+v", report)
	}

	dbSummary := report.CleanupSummary.Database
	if len(dbSummary.Errors) != 1 || !strings.Contains(dbSummary.Errors[0].Message, "knowledge_records") {
		t.Fatalf("expected one error naming knowledge_records, got %+v", dbSummary.Errors)
	}

	if dbSummary.TablesCleaned[len(dbSummary.TablesCleaned)-1] != "teams" {
		t.Fatalf("team row must be deleted last, got %v", dbSummary.TablesCleaned)
	}

	var count int64
	if err := db.Model(&schema.Team{}).Where("id = ?", team.Id).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatal("team row must still be deleted after a child failure")
	}
}
