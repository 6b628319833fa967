package chatctx_test

import (
	"context"
	"errors"
	"testing"

	"fieldkit/platform/assistantapi"
	"fieldkit/platform/chatctx"
	"fieldkit/platform/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func createDocument(t *testing.T, db *gorm.DB, fileId, name string) uuid.UUID {
	doc := schema.Document{
		Id: uuid.New(), TeamId: uuid.New(), PortfolioId: uuid.New(),
		OriginalName: name, FilePath: "docs/" + name,
		DocumentType: schema.DocTypePortfolio, OpenAIFileId: fileId,
	}
	if err := db.Create(&doc).Error; err != nil {
		t.Fatal(err)
	}
	return doc.Id
}

func TestExtractSourcesDedupAndRanking(t *testing.T) {
	db := setupDb(t)
	api := newApiStub()

	docA := createDocument(t, db, "file-a", "guide.pdf")
	docB := createDocument(t, db, "file-b", "manual.pdf")

	api.steps = []assistantapi.RunStep{{
		Id: "step-1",
		FileSearchResults: []assistantapi.FileSearchResult{
			{FileId: "file-a", Score: 0.9, Content: "<<3>> rod torque values"},
			{FileId: "file-a", Score: 0.4, Content: "--- Page 3 --- same page again"},
			{FileId: "file-b", Score: 0.95, Content: "<<1>> sizing chart"},
		},
	}}

	extractor := chatctx.NewSourceExtractor(db, api)
	sources := extractor.ExtractSourcesFromRun(context.Background(), "thread-1", "run-1")

	if len(sources) != 2 {
		t.Fatalf("expected 2 deduped sources, got %d: %+v", len(sources), sources)
	}
	if sources[0].DocId != docB || sources[0].PageNumber != 1 || sources[0].RelevanceScore != 0.95 {
		t.Fatalf("expected highest scored source first, got %+v", sources[0])
	}
	if sources[1].DocId != docA || sources[1].PageNumber != 3 || sources[1].RelevanceScore != 0.9 {
		t.Fatalf("expected deduped doc-a page 3 with its best score, got %+v", sources[1])
	}
	if sources[1].DocumentName != "guide.pdf" {
		t.Fatalf("expected document name resolved, got %v", sources[1].DocumentName)
	}
}

func TestExtractSourcesBothMarkerForms(t *testing.T) {
	db := setupDb(t)
	api := newApiStub()

	docId := createDocument(t, db, "file-a", "guide.pdf")

	api.steps = []assistantapi.RunStep{{
		Id: "step-1",
		FileSearchResults: []assistantapi.FileSearchResult{
			{FileId: "file-a", Score: 0.8, Content: "<<2>> intro --- page 7 --- detail"},
		},
	}}

	extractor := chatctx.NewSourceExtractor(db, api)
	sources := extractor.ExtractSourcesFromRun(context.Background(), "thread-1", "run-1")

	if len(sources) != 2 {
		t.Fatalf("expected a source per page marker, got %+v", sources)
	}
	for _, source := range sources {
		if source.DocId != docId {
			t.Fatalf("unexpected doc id: %+v", source)
		}
	}
	pages := []int{sources[0].PageNumber, sources[1].PageNumber}
	if pages[0] != 2 || pages[1] != 7 {
		t.Fatalf("expected pages 2 and 7, got %v", pages)
	}
}

func TestExtractSourcesLimit(t *testing.T) {
	db := setupDb(t)
	api := newApiStub()

	createDocument(t, db, "file-a", "guide.pdf")

	api.steps = []assistantapi.RunStep{{
		Id: "step-1",
		FileSearchResults: []assistantapi.FileSearchResult{
			{FileId: "file-a", Score: 0.8, Content: "<<1>> <<2>> <<3>> <<4>> <<5>> <<6>> <<7>>"},
		},
	}}

	extractor := chatctx.NewSourceExtractor(db, api)
	sources := extractor.ExtractSourcesFromRun(context.Background(), "thread-1", "run-1")

	if len(sources) != 5 {
		t.Fatalf("expected at most 5 sources, got %d", len(sources))
	}
}

func TestExtractSourcesSkipsUnknownAndUnmarked(t *testing.T) {
	db := setupDb(t)
	api := newApiStub()

	createDocument(t, db, "file-a", "guide.pdf")

	api.steps = []assistantapi.RunStep{{
		Id: "step-1",
		FileSearchResults: []assistantapi.FileSearchResult{
			{FileId: "file-unknown", Score: 0.9, Content: "<<1>> untracked file"},
			{FileId: "file-a", Score: 0.8, Content: "no page markers here"},
			{FileId: "file-a", Score: 0.7, Content: "<<4>> tracked and marked"},
		},
	}}

	extractor := chatctx.NewSourceExtractor(db, api)
	sources := extractor.ExtractSourcesFromRun(context.Background(), "thread-1", "run-1")

	if len(sources) != 1 || sources[0].PageNumber != 4 {
		t.Fatalf("expected only the tracked marked chunk, got %+v", sources)
	}
}

func TestExtractSourcesErrorYieldsEmpty(t *testing.T) {
	db := setupDb(t)
	api := newApiStub()
	api.stepsErr = errors.New("steps unavailable")

	extractor := chatctx.NewSourceExtractor(db, api)
	sources := extractor.ExtractSourcesFromRun(context.Background(), "thread-1", "run-1")

	if len(sources) != 0 {
		t.Fatalf("expected empty sources on error, got %+v", sources)
	}
}
