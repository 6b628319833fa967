package chatctx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fieldkit/platform/assistantapi"
	"fieldkit/platform/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MarkdownSource is the slice of MarkdownGenerator used by the updater.
type MarkdownSource interface {
	GenerateKnowledgeMarkdown(teamId, accountId, portfolioId, userId uuid.UUID) (MarkdownFile, error)
	LatestKnowledgeTimestamp(teamId, portfolioId uuid.UUID) (*time.Time, error)
}

type UpdateResult struct {
	WasUpdated bool `json:"was_updated"`
}

// KnowledgeUpdater regenerates the knowledge markdown file and swaps it into
// the scope's vector store, but only when knowledge or notes changed since
// the last generation.
type KnowledgeUpdater struct {
	db       *gorm.DB
	client   assistantapi.Client
	markdown MarkdownSource
}

func NewKnowledgeUpdater(db *gorm.DB, client assistantapi.Client, markdown MarkdownSource) *KnowledgeUpdater {
	return &KnowledgeUpdater{db: db, client: client, markdown: markdown}
}

// UpdateKnowledgeIfStale checks the tracking record for the team+portfolio
// and regenerates only when no tracking exists or the newest knowledge/note
// edit postdates the last generation. The no-update case is the hot path and
// performs no generation or upload. Tracking is written only after the
// vector store swap succeeds, so a failed upload is retried on the next
// check instead of being silently skipped.
func (u *KnowledgeUpdater) UpdateKnowledgeIfStale(ctx context.Context, teamId, accountId, portfolioId uuid.UUID, vectorStoreId string, userId uuid.UUID) (UpdateResult, error) {
	latest, err := u.markdown.LatestKnowledgeTimestamp(teamId, portfolioId)
	if err != nil {
		return UpdateResult{}, err
	}

	var tracking schema.KnowledgeFileRecord
	result := u.db.Limit(1).Find(&tracking, "team_id = ? AND portfolio_id = ?", teamId, portfolioId)
	if result.Error != nil {
		return UpdateResult{}, fmt.Errorf("error loading knowledge file tracking: %w", result.Error)
	}
	hasTracking := result.RowsAffected > 0

	needsUpdate := !hasTracking || (latest != nil && latest.After(tracking.LastGenerated))
	if !needsUpdate {
		return UpdateResult{WasUpdated: false}, nil
	}

	file, err := u.markdown.GenerateKnowledgeMarkdown(teamId, accountId, portfolioId, userId)
	if err != nil {
		return UpdateResult{}, err
	}

	newFileId, err := u.client.UploadFile(ctx, file.Filename, []byte(file.Markdown))
	if err != nil {
		return UpdateResult{}, fmt.Errorf("error uploading knowledge file: %w", err)
	}

	if err := u.client.AddFileToVectorStore(ctx, vectorStoreId, newFileId); err != nil {
		if cleanupErr := u.client.DeleteFile(ctx, newFileId); cleanupErr != nil {
			slog.Error("error deleting orphaned knowledge file", "file_id", newFileId, "error", cleanupErr)
		}
		return UpdateResult{}, fmt.Errorf("error adding knowledge file to vector store %v: %w", vectorStoreId, err)
	}

	// The old file is removed best effort after the new one is in place; a
	// leftover file is harmless, a missing one is not.
	if hasTracking && tracking.OpenAIFileId != "" {
		if err := u.client.RemoveFileFromVectorStore(ctx, vectorStoreId, tracking.OpenAIFileId); err != nil {
			slog.Error("error removing old knowledge file from vector store",
				"vector_store_id", vectorStoreId, "file_id", tracking.OpenAIFileId, "error", err)
		}
		if err := u.client.DeleteFile(ctx, tracking.OpenAIFileId); err != nil {
			slog.Error("error deleting old knowledge file", "file_id", tracking.OpenAIFileId, "error", err)
		}
	}

	newTracking := schema.KnowledgeFileRecord{
		TeamId:        teamId,
		PortfolioId:   portfolioId,
		Filename:      file.Filename,
		OpenAIFileId:  newFileId,
		LastGenerated: time.Now(),
	}
	result = u.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&newTracking)
	if result.Error != nil {
		slog.Error("sql error saving knowledge file tracking", "team_id", teamId, "portfolio_id", portfolioId, "error", result.Error)
		return UpdateResult{}, fmt.Errorf("error saving knowledge file tracking: %w", result.Error)
	}

	return UpdateResult{WasUpdated: true}, nil
}
