package chatctx

import (
	"fmt"
	"time"

	"fieldkit/platform/knowledge"
	"fieldkit/platform/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MarkdownFile struct {
	Markdown string `json:"markdown"`
	Filename string `json:"filename"`
}

// MarkdownGenerator builds the knowledge markdown file for a scope. Unlike
// the context generator it fails hard on missing entities: the output is
// persisted into a vector store and must never silently contain placeholder
// names.
type MarkdownGenerator struct {
	db *gorm.DB
}

func NewMarkdownGenerator(db *gorm.DB) *MarkdownGenerator {
	return &MarkdownGenerator{db: db}
}

func (g *MarkdownGenerator) GenerateKnowledgeMarkdown(teamId, accountId, portfolioId, userId uuid.UUID) (MarkdownFile, error) {
	team, err := schema.GetTeam(teamId, g.db)
	if err != nil {
		return MarkdownFile{}, fmt.Errorf("error generating knowledge file: %w", err)
	}
	portfolio, err := schema.GetPortfolio(portfolioId, g.db)
	if err != nil {
		return MarkdownFile{}, fmt.Errorf("error generating knowledge file: %w", err)
	}
	account, err := schema.GetAccount(accountId, g.db)
	if err != nil {
		return MarkdownFile{}, fmt.Errorf("error generating knowledge file: %w", err)
	}

	scoped, err := loadScopedKnowledge(g.db, teamId, accountId, portfolioId)
	if err != nil {
		return MarkdownFile{}, err
	}

	knowledgeText := ""
	data := scoped.Data
	if len(data.Inventory)+len(data.Instruments)+len(data.Technical)+len(data.AccessMisc) > 0 {
		knowledgeText = knowledge.AccountPortfolioText(knowledge.AccountPortfolioParams{
			TeamName:      team.Name,
			AccountName:   account.Name,
			PortfolioName: portfolio.Name,
			Knowledge:     data,
		})
		knowledgeText += "\n\n"
	}
	if len(scoped.SurgeonInfo) > 0 || len(scoped.DoctorInfo) > 0 {
		knowledgeText += knowledge.GeneralText(knowledge.GeneralParams{
			TeamName:    team.Name,
			DoctorInfo:  scoped.DoctorInfo,
			SurgeonInfo: scoped.SurgeonInfo,
		})
	}

	notes, err := loadContextNotes(g.db, teamId, accountId, portfolioId, userId)
	if err != nil {
		return MarkdownFile{}, err
	}

	markdown := knowledge.BuildMarkdown(knowledge.MarkdownParams{
		TeamName:      team.Name,
		AccountName:   account.Name,
		PortfolioName: portfolio.Name,
		KnowledgeText: knowledgeText,
		NotesBody:     knowledge.FormatNotes(notes),
		GeneratedAt:   time.Now(),
	})

	return MarkdownFile{
		Markdown: markdown,
		Filename: knowledge.MarkdownFilename(team.Name, portfolio.Name),
	}, nil
}

// LatestKnowledgeTimestamp returns the newest updated_at across knowledge
// records and notes for a team+portfolio, or nil when neither exist.
func (g *MarkdownGenerator) LatestKnowledgeTimestamp(teamId, portfolioId uuid.UUID) (*time.Time, error) {
	var latest *time.Time

	var record schema.KnowledgeRecord
	result := g.db.Order("updated_at desc").
		Limit(1).Find(&record, "team_id = ? AND portfolio_id = ?", teamId, portfolioId)
	if result.Error != nil {
		return nil, fmt.Errorf("error finding latest knowledge record: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		latest = &record.UpdatedAt
	}

	var note schema.Note
	result = g.db.Order("updated_at desc").
		Limit(1).Find(&note, "team_id = ? AND portfolio_id = ?", teamId, portfolioId)
	if result.Error != nil {
		return nil, fmt.Errorf("error finding latest note: %w", result.Error)
	}
	if result.RowsAffected > 0 && (latest == nil || note.UpdatedAt.After(*latest)) {
		latest = &note.UpdatedAt
	}

	return latest, nil
}
