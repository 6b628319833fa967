package tests

import (
	"fmt"
	"testing"

	"fieldkit/platform/schema"
	"github.com/samber/lo"
)

func TestDocumentLifecycle(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("abc")
	if err != nil {
		t.Fatal(err)
	}

	teamId, err := user.createTeam("spine west")
	if err != nil {
		t.Fatal(err)
	}
	portfolioId, err := user.createPortfolio(teamId, "lumbar")
	if err != nil {
		t.Fatal(err)
	}

	doc, err := user.uploadDocument(teamId, portfolioId, "", "guide.pdf", []byte("pdf content"))
	if err != nil {
		t.Fatal(err)
	}
	if doc.Status != "ready" || doc.OriginalName != "guide.pdf" || doc.DocumentType != schema.DocTypePortfolio {
		t.Fatalf("document info wrong: %+v", doc)
	}

	var row schema.Document
	if err := env.db.First(&row, "id = ?", doc.DocumentId).Error; err != nil {
		t.Fatal(err)
	}

	var portfolio schema.Portfolio
	if err := env.db.First(&portfolio, "id = ?", portfolioId).Error; err != nil {
		t.Fatal(err)
	}
	if portfolio.VectorStoreId == nil {
		t.Fatal("portfolio should have a vector store")
	}

	// Portfolio documents are indexed into the portfolio's vector store at
	// upload time.
	if !lo.Contains(env.apiStub.vectorStoreFiles(*portfolio.VectorStoreId), row.OpenAIFileId) {
		t.Fatal("uploaded document should be in the portfolio vector store")
	}

	docs, err := user.listDocuments(teamId)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].DocumentId != doc.DocumentId {
		t.Fatalf("document listing wrong: %v", docs)
	}

	if err := user.deleteDocument(teamId, doc.DocumentId); err != nil {
		t.Fatal(err)
	}

	docs, err = user.listDocuments(teamId)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 0 {
		t.Fatal("document should be gone")
	}

	if env.apiStub.numFiles() != 0 {
		t.Fatal("remote file should be deleted with the document")
	}
}

func TestDocumentListRejectsMalformedFilter(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("abc")
	if err != nil {
		t.Fatal(err)
	}
	teamId, err := user.createTeam("Docs Co")
	if err != nil {
		t.Fatal(err)
	}

	if err := user.Get(fmt.Sprintf("/document/%v/list?portfolio_id=not-a-uuid", teamId)).Do(nil); err == nil {
		t.Fatal("malformed portfolio filter must be rejected")
	}
}
