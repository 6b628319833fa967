package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"fieldkit/platform/schema"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type DeletionOptions struct {
	DeleteExternalResources bool
}

type DeletedResources struct {
	Assistants      int `json:"assistants"`
	VectorStores    int `json:"vector_stores"`
	Files           int `json:"files"`
	DatabaseRecords int `json:"database_records"`
	StorageFiles    int `json:"storage_files"`
}

type DatabaseResult struct {
	TablesCleaned  []string       `json:"tables_cleaned"`
	RecordsDeleted int            `json:"records_deleted"`
	Errors         []CleanupError `json:"errors"`
}

type CleanupSummary struct {
	OpenAI   OpenAIResult   `json:"openai"`
	Storage  StorageResult  `json:"storage"`
	Database DatabaseResult `json:"database"`
}

// DeletionReport is the transient result of a team deletion. Success means
// no critical error occurred; soft errors are carried in the summary for
// visibility and retry, and do not flip Success.
type DeletionReport struct {
	Success          bool             `json:"success"`
	Error            string           `json:"error,omitempty"`
	PartialCleanup   bool             `json:"partial_cleanup"`
	DeletedResources DeletedResources `json:"deleted_resources"`
	CleanupSummary   CleanupSummary   `json:"cleanup_summary"`
}

// DeletionService removes a team and everything it owns: external assistant
// api resources, object storage files, and database rows. Authorization and
// name confirmation are the caller's responsibility.
type DeletionService struct {
	db      *gorm.DB
	openai  *OpenAICleanup
	storage *StorageCleanup
}

func NewDeletionService(db *gorm.DB, openai *OpenAICleanup, storage *StorageCleanup) *DeletionService {
	return &DeletionService{db: db, openai: openai, storage: storage}
}

// teamSnapshot is everything gathered up front so cleanup operates on a
// consistent view even as rows are deleted underneath it.
type teamSnapshot struct {
	team       schema.Team
	portfolios []schema.Portfolio
	accounts   []schema.Account
	documents  []schema.Document
	assistants []schema.AssistantRecord
	notes      []schema.Note
	fileRecs   []schema.KnowledgeFileRecord

	assistantIds   []string
	vectorStoreIds []string
	fileIds        []string
	storagePaths   []string
}

func (s *DeletionService) gather(teamId uuid.UUID) (*teamSnapshot, error) {
	team, err := schema.GetTeam(teamId, s.db)
	if err != nil {
		return nil, err
	}

	snapshot := &teamSnapshot{team: team}

	byTeam := func(dest interface{}) func() error {
		return func() error {
			return s.db.Find(dest, "team_id = ?", teamId).Error
		}
	}

	group := errgroup.Group{}
	group.Go(byTeam(&snapshot.portfolios))
	group.Go(byTeam(&snapshot.accounts))
	group.Go(byTeam(&snapshot.documents))
	group.Go(byTeam(&snapshot.assistants))
	group.Go(byTeam(&snapshot.notes))
	group.Go(byTeam(&snapshot.fileRecs))
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("error gathering team resources: %w", err)
	}

	// The legacy schema caches vector store ids in several places; all of
	// them are candidates for cleanup and must be unioned.
	vectorStoreIds := make([]string, 0)
	addStore := func(id *string) {
		if id != nil && *id != "" {
			vectorStoreIds = append(vectorStoreIds, *id)
		}
	}
	addStore(team.GeneralVectorStoreId)
	addStore(team.GeneralKnowledgeVectorStoreId)
	for _, portfolio := range snapshot.portfolios {
		addStore(portfolio.VectorStoreId)
	}
	for _, assistant := range snapshot.assistants {
		if assistant.VectorStoreId != "" {
			vectorStoreIds = append(vectorStoreIds, assistant.VectorStoreId)
		}
	}
	snapshot.vectorStoreIds = lo.Uniq(vectorStoreIds)

	snapshot.assistantIds = lo.FilterMap(snapshot.assistants, func(a schema.AssistantRecord, _ int) (string, bool) {
		return a.OpenAIAssistantId, a.OpenAIAssistantId != ""
	})

	fileIds := lo.FilterMap(snapshot.documents, func(d schema.Document, _ int) (string, bool) {
		return d.OpenAIFileId, d.Ready()
	})
	for _, rec := range snapshot.fileRecs {
		if rec.OpenAIFileId != "" {
			fileIds = append(fileIds, rec.OpenAIFileId)
		}
	}
	snapshot.fileIds = lo.Uniq(fileIds)

	snapshot.storagePaths = lo.Map(snapshot.documents, func(d schema.Document, _ int) string {
		return d.FilePath
	})

	return snapshot, nil
}

func (s *DeletionService) cleanupDatabase(teamId uuid.UUID, snapshot *teamSnapshot, countAll bool) DatabaseResult {
	result := DatabaseResult{TablesCleaned: make([]string, 0), Errors: make([]CleanupError, 0)}

	type tableDelete struct {
		table string
		run   func() *gorm.DB
		// Document and assistant cache rows are normally reported through
		// the files/assistants/storage counts; counting them again under
		// database records would double-report the same resources. When
		// external cleanup is skipped those counters stay empty, so the
		// rows count as database records instead.
		counted bool
	}

	byTeam := func(model interface{}) func() *gorm.DB {
		return func() *gorm.DB { return s.db.Where("team_id = ?", teamId).Delete(model) }
	}

	deletes := []tableDelete{
		{table: "message_ratings", run: byTeam(&schema.MessageRating{}), counted: true},
		{table: "chat_threads", run: byTeam(&schema.ChatThread{}), counted: true},
		{table: "knowledge_records", run: byTeam(&schema.KnowledgeRecord{}), counted: true},
		{table: "notes", run: byTeam(&schema.Note{}), counted: true},
		{table: "documents", run: byTeam(&schema.Document{})},
		{table: "knowledge_file_records", run: byTeam(&schema.KnowledgeFileRecord{}), counted: true},
		{table: "assistant_records", run: byTeam(&schema.AssistantRecord{})},
		{table: "team_invitations", run: byTeam(&schema.TeamInvitation{}), counted: true},
		{table: "team_members", run: byTeam(&schema.TeamMember{}), counted: true},
	}

	if accountIds := lo.Map(snapshot.accounts, func(a schema.Account, _ int) uuid.UUID { return a.Id }); len(accountIds) > 0 {
		deletes = append(deletes, tableDelete{
			table:   "account_portfolios",
			run:     func() *gorm.DB { return s.db.Where("account_id IN ?", accountIds).Delete(&schema.AccountPortfolio{}) },
			counted: true,
		})
	}

	deletes = append(deletes,
		tableDelete{table: "accounts", run: byTeam(&schema.Account{}), counted: true},
		tableDelete{table: "portfolios", run: byTeam(&schema.Portfolio{}), counted: true},
	)

	// Children before parents; a failure on one table must not stop the
	// rest, since partial progress beats a stuck mid-deletion state.
	for _, del := range deletes {
		txn := del.run()
		if txn.Error != nil {
			slog.Error("sql error deleting team rows", "table", del.table, "team_id", teamId, "error", txn.Error)
			result.Errors = append(result.Errors, softError("failed to delete from %s: %v", del.table, txn.Error))
			continue
		}
		result.TablesCleaned = append(result.TablesCleaned, del.table)
		if del.counted || countAll {
			result.RecordsDeleted += int(txn.RowsAffected)
		}
	}

	// The root row goes last, always. Failing to delete it strands every
	// child already removed, which is the one state an operator must be
	// forced to look at.
	txn := s.db.Delete(&schema.Team{}, "id = ?", teamId)
	if txn.Error != nil {
		slog.Error("sql error deleting team row", "team_id", teamId, "error", txn.Error)
		result.Errors = append(result.Errors, criticalError("failed to delete team row: %v", txn.Error))
	} else {
		result.TablesCleaned = append(result.TablesCleaned, "teams")
		result.RecordsDeleted += int(txn.RowsAffected)
	}

	return result
}

// DeleteTeam removes the team and all owned resources. External cleanup runs
// only when requested; database cleanup always runs. The report never comes
// back as an error: every failure is folded into it, with only critical
// failures flipping Success off.
func (s *DeletionService) DeleteTeam(ctx context.Context, teamId uuid.UUID, opts DeletionOptions) DeletionReport {
	report := DeletionReport{
		CleanupSummary: CleanupSummary{
			OpenAI:   OpenAIResult{Errors: make([]CleanupError, 0)},
			Storage:  StorageResult{Errors: make([]CleanupError, 0)},
			Database: DatabaseResult{TablesCleaned: make([]string, 0), Errors: make([]CleanupError, 0)},
		},
	}

	snapshot, err := s.gather(teamId)
	if err != nil {
		if errors.Is(err, schema.ErrTeamNotFound) {
			report.Error = "Team not found"
			return report
		}
		slog.Error("error gathering team data for deletion", "team_id", teamId, "error", err)
		report.Error = fmt.Sprintf("Critical error: %v", err)
		report.PartialCleanup = true
		return report
	}

	if opts.DeleteExternalResources {
		// The two external systems are disjoint, so their cleanups run
		// concurrently; each is sequential internally.
		group := errgroup.Group{}
		group.Go(func() error {
			report.CleanupSummary.OpenAI = s.openai.CleanupResources(ctx, snapshot.assistantIds, snapshot.vectorStoreIds, snapshot.fileIds)
			return nil
		})
		group.Go(func() error {
			report.CleanupSummary.Storage = s.storage.CleanupTeamStorage(snapshot.storagePaths, snapshot.notes)
			return nil
		})
		group.Wait() //nolint:errcheck

		report.DeletedResources.Assistants = report.CleanupSummary.OpenAI.AssistantsDeleted
		report.DeletedResources.VectorStores = report.CleanupSummary.OpenAI.VectorStoresDeleted
		report.DeletedResources.Files = report.CleanupSummary.OpenAI.FilesDeleted
		report.DeletedResources.StorageFiles = report.CleanupSummary.Storage.DocumentsDeleted + report.CleanupSummary.Storage.ImagesDeleted
	}

	report.CleanupSummary.Database = s.cleanupDatabase(teamId, snapshot, !opts.DeleteExternalResources)
	report.DeletedResources.DatabaseRecords = report.CleanupSummary.Database.RecordsDeleted

	critical := CriticalMessages(report.CleanupSummary.OpenAI.Errors)
	critical = append(critical, CriticalMessages(report.CleanupSummary.Storage.Errors)...)
	critical = append(critical, CriticalMessages(report.CleanupSummary.Database.Errors)...)

	if len(critical) > 0 {
		report.Error = "Critical errors during deletion: " + strings.Join(critical, ", ")
		report.PartialCleanup = true
		return report
	}

	report.Success = true
	return report
}
