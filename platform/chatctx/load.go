package chatctx

import (
	"fmt"

	"fieldkit/platform/knowledge"
	"fieldkit/platform/schema"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

type scopedKnowledge struct {
	Data        knowledge.Data
	SurgeonInfo []knowledge.InfoItem
	DoctorInfo  []knowledge.InfoItem
}

// loadScopedKnowledge gathers the knowledge rows visible to an
// account+portfolio scope: portfolio-specific rows, account-level rows with
// no portfolio, and team-general rows with neither.
func loadScopedKnowledge(db *gorm.DB, teamId, accountId, portfolioId uuid.UUID) (scopedKnowledge, error) {
	var records []schema.KnowledgeRecord
	result := db.
		Where("team_id = ?", teamId).
		Where(
			db.Where("account_id = ? AND portfolio_id = ?", accountId, portfolioId).
				Or("account_id = ? AND portfolio_id IS NULL", accountId).
				Or("account_id IS NULL AND portfolio_id IS NULL"),
		).
		Find(&records)
	if result.Error != nil {
		return scopedKnowledge{}, fmt.Errorf("error loading knowledge records: %w", result.Error)
	}

	var scoped scopedKnowledge
	for _, record := range records {
		switch record.Category {
		case schema.CategoryInventory:
			scoped.Data.Inventory = append(scoped.Data.Inventory, knowledge.InventoryItem{
				Item: record.Title, Quantity: record.Quantity, Notes: record.Content,
			})
		case schema.CategoryInstruments:
			scoped.Data.Instruments = append(scoped.Data.Instruments, knowledge.Instrument{
				Name: record.Title, Description: record.Content, ImageUrl: record.ImageUrl,
			})
		case schema.CategoryTechnical:
			scoped.Data.Technical = append(scoped.Data.Technical, knowledge.InfoItem{
				Title: record.Title, Content: record.Content,
			})
		case schema.CategoryAccessMisc:
			scoped.Data.AccessMisc = append(scoped.Data.AccessMisc, knowledge.InfoItem{
				Title: record.Title, Content: record.Content,
			})
		case schema.CategorySurgeonInfo:
			scoped.SurgeonInfo = append(scoped.SurgeonInfo, knowledge.InfoItem{
				Title: record.Title, Content: record.Content,
			})
		case schema.CategoryDoctorInfo:
			scoped.DoctorInfo = append(scoped.DoctorInfo, knowledge.InfoItem{
				Title: record.Title, Content: record.Content,
			})
		}
	}

	return scoped, nil
}

// loadContextNotes returns the notes a user sees for a scope: their own plus
// team- and portfolio-shared notes, restricted to the account or
// account-free notes, newest first.
func loadContextNotes(db *gorm.DB, teamId, accountId, portfolioId, userId uuid.UUID) ([]knowledge.ContextNote, error) {
	var notes []schema.Note
	result := db.
		Where("team_id = ? AND portfolio_id = ?", teamId, portfolioId).
		Where(
			db.Where("user_id = ?", userId).
				Or("is_shared = ?", true).
				Or("is_portfolio_shared = ?", true),
		).
		Where(db.Where("account_id = ?", accountId).Or("account_id IS NULL")).
		Order("created_at desc").
		Find(&notes)
	if result.Error != nil {
		return nil, fmt.Errorf("error loading notes: %w", result.Error)
	}

	if len(notes) == 0 {
		return nil, nil
	}

	team, err := schema.GetTeam(teamId, db)
	if err != nil {
		return nil, err
	}
	portfolio, err := schema.GetPortfolio(portfolioId, db)
	if err != nil {
		return nil, err
	}

	accountIds := lo.Uniq(lo.FilterMap(notes, func(note schema.Note, _ int) (uuid.UUID, bool) {
		if note.AccountId == nil {
			return uuid.UUID{}, false
		}
		return *note.AccountId, true
	}))

	accountNames := make(map[uuid.UUID]string, len(accountIds))
	if len(accountIds) > 0 {
		var accounts []schema.Account
		result := db.Find(&accounts, "id IN ?", accountIds)
		if result.Error != nil {
			return nil, fmt.Errorf("error loading note accounts: %w", result.Error)
		}
		for _, account := range accounts {
			accountNames[account.Id] = account.Name
		}
	}

	contextNotes := make([]knowledge.ContextNote, 0, len(notes))
	for _, note := range notes {
		accountName := ""
		if note.AccountId != nil {
			accountName = accountNames[*note.AccountId]
		}
		contextNotes = append(contextNotes, knowledge.ContextNote{
			TeamName:          team.Name,
			AccountName:       accountName,
			PortfolioName:     portfolio.Name,
			Title:             note.Title,
			Content:           note.Content,
			Images:            note.Images,
			ImageUrl:          note.ImageUrl,
			IsShared:          note.IsShared,
			IsPortfolioShared: note.IsPortfolioShared,
		})
	}

	return contextNotes, nil
}
