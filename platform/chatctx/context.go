package chatctx

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"fieldkit/platform/knowledge"
	"fieldkit/platform/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Names struct {
	TeamName      string `json:"team_name"`
	PortfolioName string `json:"portfolio_name"`
}

type AccountContext struct {
	AccountInfo   string `json:"account_info"`
	PortfolioInfo string `json:"portfolio_info"`
	SurgeonInfo   string `json:"surgeon_info"`
	KnowledgeText string `json:"knowledge_text"`
}

type GeneralContext struct {
	TeamInfo      string `json:"team_info"`
	KnowledgeText string `json:"knowledge_text"`
}

// ContextGenerator assembles the strings used to prime an assistant thread.
// Every lookup degrades to a placeholder on failure; a chat session must
// never be blocked by a metadata lookup.
type ContextGenerator struct {
	db *gorm.DB
}

func NewContextGenerator(db *gorm.DB) *ContextGenerator {
	return &ContextGenerator{db: db}
}

func (c *ContextGenerator) GetNames(teamId, portfolioId uuid.UUID) Names {
	names := Names{TeamName: "Unknown Team", PortfolioName: "Unknown Portfolio"}

	team, err := schema.GetTeam(teamId, c.db)
	if err != nil {
		slog.Error("error getting team name for context", "team_id", teamId, "error", err)
	} else {
		names.TeamName = team.Name
	}

	portfolio, err := schema.GetPortfolio(portfolioId, c.db)
	if err != nil {
		slog.Error("error getting portfolio name for context", "portfolio_id", portfolioId, "error", err)
	} else {
		names.PortfolioName = portfolio.Name
	}

	return names
}

func descriptionOr(description string) string {
	if strings.TrimSpace(description) == "" {
		return "No description"
	}
	return description
}

func (c *ContextGenerator) GenerateAccountContext(teamId, accountId, portfolioId uuid.UUID) AccountContext {
	failed := AccountContext{
		AccountInfo:   "Error loading account information",
		PortfolioInfo: "Error loading portfolio information",
		SurgeonInfo:   "Error loading surgeon information",
		KnowledgeText: "Error loading knowledge",
	}

	account, err := schema.GetAccount(accountId, c.db)
	if err != nil {
		slog.Error("error loading account for context", "account_id", accountId, "error", err)
		return failed
	}

	portfolio, err := schema.GetPortfolio(portfolioId, c.db)
	if err != nil {
		slog.Error("error loading portfolio for context", "portfolio_id", portfolioId, "error", err)
		return failed
	}

	team, err := schema.GetTeam(teamId, c.db)
	if err != nil {
		slog.Error("error loading team for context", "team_id", teamId, "error", err)
		return failed
	}

	scoped, err := loadScopedKnowledge(c.db, teamId, accountId, portfolioId)
	if err != nil {
		slog.Error("error loading knowledge for context", "team_id", teamId, "error", err)
		return failed
	}

	surgeonInfo := "No surgeons assigned"
	if len(scoped.SurgeonInfo) > 0 {
		titles := make([]string, 0, len(scoped.SurgeonInfo))
		for _, info := range scoped.SurgeonInfo {
			titles = append(titles, info.Title)
		}
		surgeonInfo = "Surgeons: " + strings.Join(titles, ", ")
	}

	return AccountContext{
		AccountInfo:   fmt.Sprintf("Account: %s\nDescription: %s", account.Name, descriptionOr(account.Description)),
		PortfolioInfo: fmt.Sprintf("Portfolio: %s\nDescription: %s", portfolio.Name, descriptionOr(portfolio.Description)),
		SurgeonInfo:   surgeonInfo,
		KnowledgeText: knowledge.AccountPortfolioText(knowledge.AccountPortfolioParams{
			TeamName:      team.Name,
			AccountName:   account.Name,
			PortfolioName: portfolio.Name,
			Knowledge:     scoped.Data,
		}),
	}
}

func (c *ContextGenerator) GenerateGeneralContext(teamId uuid.UUID) GeneralContext {
	failed := GeneralContext{
		TeamInfo:      "Error loading team information",
		KnowledgeText: "Error loading general knowledge",
	}

	team, err := schema.GetTeam(teamId, c.db)
	if err != nil {
		slog.Error("error loading team for general context", "team_id", teamId, "error", err)
		return failed
	}

	var general []schema.KnowledgeRecord
	result := c.db.Find(&general, "team_id = ? AND account_id IS NULL AND portfolio_id IS NULL", teamId)
	if result.Error != nil {
		slog.Error("sql error loading general knowledge", "team_id", teamId, "error", result.Error)
		return failed
	}

	var doctorInfo, surgeonInfo []knowledge.InfoItem
	for _, record := range general {
		item := knowledge.InfoItem{Title: record.Title, Content: record.Content}
		switch record.Category {
		case schema.CategoryDoctorInfo:
			doctorInfo = append(doctorInfo, item)
		case schema.CategorySurgeonInfo:
			surgeonInfo = append(surgeonInfo, item)
		}
	}

	return GeneralContext{
		TeamInfo: fmt.Sprintf("Team: %s", team.Name),
		KnowledgeText: knowledge.GeneralText(knowledge.GeneralParams{
			TeamName:    team.Name,
			DoctorInfo:  doctorInfo,
			SurgeonInfo: surgeonInfo,
		}),
	}
}

// CheckIfCacheIsStale reports whether the cached assistant for the scope was
// created before the newest document. No documents means not stale; no
// cached assistant means stale; a failed check defaults to stale so outdated
// context is never silently served.
func (c *ContextGenerator) CheckIfCacheIsStale(teamId, portfolioId uuid.UUID) bool {
	var latest schema.Document
	result := c.db.Order("created_at desc").
		First(&latest, "team_id = ? AND portfolio_id = ?", teamId, portfolioId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return false
		}
		slog.Error("error checking latest document, assuming stale", "team_id", teamId, "error", result.Error)
		return true
	}

	var assistant schema.AssistantRecord
	result = c.db.First(&assistant, "team_id = ? AND portfolio_id = ?", teamId, portfolioId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return true
		}
		slog.Error("error checking cached assistant, assuming stale", "team_id", teamId, "error", result.Error)
		return true
	}

	return latest.CreatedAt.After(assistant.CreatedAt)
}
