package chatctx_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"fieldkit/platform/chatctx"
	"fieldkit/platform/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type markdownStub struct {
	latest *time.Time

	generateCalls int
	generateErr   error
}

func (m *markdownStub) GenerateKnowledgeMarkdown(teamId, accountId, portfolioId, userId uuid.UUID) (chatctx.MarkdownFile, error) {
	m.generateCalls++
	if m.generateErr != nil {
		return chatctx.MarkdownFile{}, m.generateErr
	}
	return chatctx.MarkdownFile{Markdown: "# Knowledge", Filename: "team-a-portfolio-b-knowledge.md"}, nil
}

func (m *markdownStub) LatestKnowledgeTimestamp(teamId, portfolioId uuid.UUID) (*time.Time, error) {
	return m.latest, nil
}

func getTracking(t *testing.T, db *gorm.DB, teamId, portfolioId uuid.UUID) schema.KnowledgeFileRecord {
	var tracking schema.KnowledgeFileRecord
	if err := db.First(&tracking, "team_id = ? AND portfolio_id = ?", teamId, portfolioId).Error; err != nil {
		t.Fatal(err)
	}
	return tracking
}

func TestUpdateKnowledgeFirstGeneration(t *testing.T) {
	db := setupDb(t)
	api := newApiStub()
	markdown := &markdownStub{}
	updater := chatctx.NewKnowledgeUpdater(db, api, markdown)

	teamId, portfolioId := uuid.New(), uuid.New()

	result, err := updater.UpdateKnowledgeIfStale(context.Background(), teamId, uuid.New(), portfolioId, "vs-1", uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if !result.WasUpdated {
		t.Fatal("expected update with no tracking record")
	}
	if markdown.generateCalls != 1 || api.uploadCalls != 1 {
		t.Fatalf("expected one generation and one upload, got %d/%d", markdown.generateCalls, api.uploadCalls)
	}

	tracking := getTracking(t, db, teamId, portfolioId)
	if tracking.OpenAIFileId != "file-1" {
		t.Fatalf("expected tracking to point at the uploaded file, got %v", tracking.OpenAIFileId)
	}
	if api.storeFiles["vs-1"][0] != "file-1" {
		t.Fatalf("expected file in vector store, got %v", api.storeFiles["vs-1"])
	}
}

func TestUpdateKnowledgeFastPath(t *testing.T) {
	db := setupDb(t)
	api := newApiStub()

	teamId, portfolioId := uuid.New(), uuid.New()

	tracking := schema.KnowledgeFileRecord{
		TeamId: teamId, PortfolioId: portfolioId,
		Filename: "knowledge.md", OpenAIFileId: "file-old",
		LastGenerated: time.Now(),
	}
	if err := db.Create(&tracking).Error; err != nil {
		t.Fatal(err)
	}

	stale := time.Now().Add(-time.Hour)
	markdown := &markdownStub{latest: &stale}
	updater := chatctx.NewKnowledgeUpdater(db, api, markdown)

	result, err := updater.UpdateKnowledgeIfStale(context.Background(), teamId, uuid.New(), portfolioId, "vs-1", uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if result.WasUpdated {
		t.Fatal("expected fast path when tracking is current")
	}
	if markdown.generateCalls != 0 || api.uploadCalls != 0 || api.addCalls != 0 {
		t.Fatalf("fast path must not generate or upload, got %d/%d/%d", markdown.generateCalls, api.uploadCalls, api.addCalls)
	}
}

func TestUpdateKnowledgeReplacesOldFile(t *testing.T) {
	db := setupDb(t)
	api := newApiStub()
	api.storeFiles["vs-1"] = []string{"file-old"}

	teamId, portfolioId := uuid.New(), uuid.New()

	tracking := schema.KnowledgeFileRecord{
		TeamId: teamId, PortfolioId: portfolioId,
		Filename: "knowledge.md", OpenAIFileId: "file-old",
		LastGenerated: time.Now().Add(-time.Hour),
	}
	if err := db.Create(&tracking).Error; err != nil {
		t.Fatal(err)
	}

	newer := time.Now()
	markdown := &markdownStub{latest: &newer}
	updater := chatctx.NewKnowledgeUpdater(db, api, markdown)

	result, err := updater.UpdateKnowledgeIfStale(context.Background(), teamId, uuid.New(), portfolioId, "vs-1", uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if !result.WasUpdated {
		t.Fatal("expected update when knowledge is newer than last generation")
	}

	if len(api.removedFromStore) != 1 || api.removedFromStore[0] != "file-old" {
		t.Fatalf("expected old file removed from store, got %v", api.removedFromStore)
	}
	if len(api.deletedFiles) != 1 || api.deletedFiles[0] != "file-old" {
		t.Fatalf("expected old file deleted, got %v", api.deletedFiles)
	}

	updated := getTracking(t, db, teamId, portfolioId)
	if updated.OpenAIFileId == "file-old" {
		t.Fatal("tracking still points at the old file")
	}
	if !updated.LastGenerated.After(tracking.LastGenerated) {
		t.Fatal("tracking timestamp not advanced")
	}
}

func TestUpdateKnowledgeUploadFailureKeepsTracking(t *testing.T) {
	db := setupDb(t)
	api := newApiStub()
	api.uploadErr = errors.New("upload rejected")

	teamId, portfolioId := uuid.New(), uuid.New()

	tracking := schema.KnowledgeFileRecord{
		TeamId: teamId, PortfolioId: portfolioId,
		Filename: "knowledge.md", OpenAIFileId: "file-old",
		LastGenerated: time.Now().Add(-time.Hour),
	}
	if err := db.Create(&tracking).Error; err != nil {
		t.Fatal(err)
	}

	newer := time.Now()
	markdown := &markdownStub{latest: &newer}
	updater := chatctx.NewKnowledgeUpdater(db, api, markdown)

	_, err := updater.UpdateKnowledgeIfStale(context.Background(), teamId, uuid.New(), portfolioId, "vs-1", uuid.New())
	if err == nil {
		t.Fatal("expected error from failed upload")
	}

	kept := getTracking(t, db, teamId, portfolioId)
	if kept.OpenAIFileId != "file-old" {
		t.Fatalf("tracking must be untouched after a failed upload, got %v", kept.OpenAIFileId)
	}
}

func TestUpdateKnowledgeAddFailureDeletesOrphan(t *testing.T) {
	db := setupDb(t)
	api := newApiStub()
	api.addFileErrs["file-1"] = errors.New("store full")

	markdown := &markdownStub{}
	updater := chatctx.NewKnowledgeUpdater(db, api, markdown)

	_, err := updater.UpdateKnowledgeIfStale(context.Background(), uuid.New(), uuid.New(), uuid.New(), "vs-1", uuid.New())
	if err == nil {
		t.Fatal("expected error from failed vector store add")
	}

	if len(api.deletedFiles) != 1 || api.deletedFiles[0] != "file-1" {
		t.Fatalf("expected orphaned upload deleted, got %v", api.deletedFiles)
	}
}
