package chatctx

import (
	"context"
	"fmt"
	"log/slog"

	"fieldkit/platform/assistantapi"
	"fieldkit/platform/schema"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

// InventoryIndexer keeps a team's inventory documents present in a vector
// store, independent of the knowledge file content.
type InventoryIndexer struct {
	db     *gorm.DB
	client assistantapi.Client
}

func NewInventoryIndexer(db *gorm.DB, client assistantapi.Client) *InventoryIndexer {
	return &InventoryIndexer{db: db, client: client}
}

func (s *InventoryIndexer) completedInventoryDocs(teamId uuid.UUID) ([]schema.Document, error) {
	var docs []schema.Document
	result := s.db.
		Where("team_id = ? AND document_type = ?", teamId, schema.DocTypeInventory).
		Where("openai_file_id != '' AND openai_file_id NOT IN ?", []string{schema.FileProcessing, schema.FileFailed}).
		Find(&docs)
	if result.Error != nil {
		return nil, fmt.Errorf("error fetching inventory documents: %w", result.Error)
	}
	return docs, nil
}

// EnsureInventoryInVectorStore adds every completed inventory document that
// is missing from the vector store. A failure adding one file does not stop
// the rest; the returned slice names only the files actually added.
func (s *InventoryIndexer) EnsureInventoryInVectorStore(ctx context.Context, vectorStoreId string, teamId uuid.UUID) ([]string, error) {
	docs, err := s.completedInventoryDocs(teamId)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return []string{}, nil
	}

	existing, err := s.client.ListVectorStoreFiles(ctx, vectorStoreId)
	if err != nil {
		return nil, fmt.Errorf("error listing vector store files: %w", err)
	}
	existingIds := lo.SliceToMap(existing, func(id string) (string, struct{}) { return id, struct{}{} })

	added := make([]string, 0)
	for _, doc := range docs {
		if _, ok := existingIds[doc.OpenAIFileId]; ok {
			continue
		}
		if err := s.client.AddFileToVectorStore(ctx, vectorStoreId, doc.OpenAIFileId); err != nil {
			slog.Error("error adding inventory file to vector store",
				"vector_store_id", vectorStoreId, "file_id", doc.OpenAIFileId, "document", doc.OriginalName, "error", err)
			continue
		}
		added = append(added, doc.OpenAIFileId)
	}

	return added, nil
}

// LatestInventoryDocument returns the newest completed inventory document
// for the team, or nil when none exists or the lookup fails.
func (s *InventoryIndexer) LatestInventoryDocument(teamId uuid.UUID) *schema.Document {
	var doc schema.Document
	result := s.db.
		Where("team_id = ? AND document_type = ?", teamId, schema.DocTypeInventory).
		Where("openai_file_id != '' AND openai_file_id NOT IN ?", []string{schema.FileProcessing, schema.FileFailed}).
		Order("created_at desc").
		Limit(1).Find(&doc)
	if result.Error != nil {
		slog.Error("error finding latest inventory document", "team_id", teamId, "error", result.Error)
		return nil
	}
	if result.RowsAffected == 0 {
		return nil
	}
	return &doc
}

// VectorStoreHasInventory reports whether the newest inventory document is
// already in the vector store. A team with no inventory counts as indexed;
// a failed check counts as not indexed.
func (s *InventoryIndexer) VectorStoreHasInventory(ctx context.Context, vectorStoreId string, teamId uuid.UUID) bool {
	latest := s.LatestInventoryDocument(teamId)
	if latest == nil {
		return true
	}

	files, err := s.client.ListVectorStoreFiles(ctx, vectorStoreId)
	if err != nil {
		slog.Error("error checking vector store inventory", "vector_store_id", vectorStoreId, "error", err)
		return false
	}

	return lo.Contains(files, latest.OpenAIFileId)
}
