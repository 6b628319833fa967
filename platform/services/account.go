package services

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"fieldkit/platform/auth"
	"fieldkit/platform/schema"
	"fieldkit/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

type AccountService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *AccountService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Route("/{team_id}", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.TeamMemberOnly(s.db))

			r.Get("/list", s.List)
			r.Get("/knowledge", s.GetKnowledge)
			r.Get("/{account_id}/portfolios", s.ListPortfolios)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.TeamManagerOnly(s.db))

			r.Post("/create", s.Create)
			r.Delete("/{account_id}", s.Delete)
			r.Post("/{account_id}/portfolios", s.AssignPortfolios)
		})

		r.With(auth.TeamMemberOnly(s.db)).Post("/knowledge", s.SaveKnowledge)
	})

	return r
}

type accountRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type accountInfo struct {
	AccountId   uuid.UUID `json:"account_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *AccountService) Create(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params accountRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Name == "" {
		http.Error(w, "account name must be specified", http.StatusBadRequest)
		return
	}

	account := schema.Account{
		Id: uuid.New(), TeamId: teamId,
		Name: params.Name, Description: params.Description,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkTeamExists(txn, teamId); err != nil {
			return err
		}
		if result := txn.Create(&account); result.Error != nil {
			slog.Error("sql error creating account", "team_id", teamId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error creating account: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, accountInfo{
		AccountId: account.Id, Name: account.Name,
		Description: account.Description, CreatedAt: account.CreatedAt,
	})
}

func (s *AccountService) List(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var accounts []schema.Account
	result := s.db.Order("name asc").Find(&accounts, "team_id = ?", teamId)
	if result.Error != nil {
		slog.Error("sql error listing accounts", "team_id", teamId, "error", result.Error)
		http.Error(w, "error listing accounts", http.StatusInternalServerError)
		return
	}

	infos := make([]accountInfo, 0, len(accounts))
	for _, account := range accounts {
		infos = append(infos, accountInfo{
			AccountId: account.Id, Name: account.Name,
			Description: account.Description, CreatedAt: account.CreatedAt,
		})
	}

	utils.WriteJsonResponse(w, infos)
}

func (s *AccountService) Delete(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	accountId, err := utils.URLParamUUID(r, "account_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkAccountInTeam(txn, teamId, accountId); err != nil {
			return err
		}

		for _, model := range []interface{}{
			&schema.KnowledgeRecord{}, &schema.AccountPortfolio{},
		} {
			result := txn.Where("account_id = ?", accountId).Delete(model)
			if result.Error != nil {
				slog.Error("sql error deleting account rows", "account_id", accountId, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}

		result := txn.Delete(&schema.Account{}, "id = ?", accountId)
		if result.Error != nil {
			slog.Error("sql error deleting account", "account_id", accountId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting account: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type assignPortfoliosRequest struct {
	PortfolioIds []uuid.UUID `json:"portfolio_ids"`
}

// AssignPortfolios replaces the account's portfolio assignments with the
// given set.
func (s *AccountService) AssignPortfolios(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	accountId, err := utils.URLParamUUID(r, "account_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params assignPortfoliosRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkAccountInTeam(txn, teamId, accountId); err != nil {
			return err
		}
		for _, portfolioId := range params.PortfolioIds {
			if err := checkPortfolioInTeam(txn, teamId, portfolioId); err != nil {
				return err
			}
		}

		result := txn.Delete(&schema.AccountPortfolio{}, "account_id = ?", accountId)
		if result.Error != nil {
			slog.Error("sql error clearing portfolio assignments", "account_id", accountId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		for _, portfolioId := range lo.Uniq(params.PortfolioIds) {
			assignment := schema.AccountPortfolio{AccountId: accountId, PortfolioId: portfolioId}
			if result := txn.Create(&assignment); result.Error != nil {
				slog.Error("sql error creating portfolio assignment", "account_id", accountId, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}
		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error assigning portfolios: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *AccountService) ListPortfolios(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	accountId, err := utils.URLParamUUID(r, "account_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := checkAccountInTeam(s.db, teamId, accountId); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	var assignments []schema.AccountPortfolio
	result := s.db.Find(&assignments, "account_id = ?", accountId)
	if result.Error != nil {
		slog.Error("sql error listing portfolio assignments", "account_id", accountId, "error", result.Error)
		http.Error(w, "error listing portfolios", http.StatusInternalServerError)
		return
	}

	portfolioIds := lo.Map(assignments, func(a schema.AccountPortfolio, _ int) uuid.UUID { return a.PortfolioId })

	infos := make([]portfolioInfo, 0, len(portfolioIds))
	if len(portfolioIds) > 0 {
		var portfolios []schema.Portfolio
		result := s.db.Find(&portfolios, "id IN ?", portfolioIds)
		if result.Error != nil {
			slog.Error("sql error loading assigned portfolios", "account_id", accountId, "error", result.Error)
			http.Error(w, "error listing portfolios", http.StatusInternalServerError)
			return
		}
		for _, portfolio := range portfolios {
			infos = append(infos, portfolioInfo{
				PortfolioId: portfolio.Id, Name: portfolio.Name,
				Description: portfolio.Description, CreatedAt: portfolio.CreatedAt,
			})
		}
	}

	utils.WriteJsonResponse(w, infos)
}

type knowledgeEntry struct {
	Category string `json:"category"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Quantity int    `json:"quantity"`
	ImageUrl string `json:"image_url"`
}

type saveKnowledgeRequest struct {
	AccountId   *uuid.UUID       `json:"account_id"`
	PortfolioId *uuid.UUID       `json:"portfolio_id"`
	Records     []knowledgeEntry `json:"records"`
}

var knowledgeCategories = map[string]struct{}{
	schema.CategoryInventory:   {},
	schema.CategoryInstruments: {},
	schema.CategoryTechnical:   {},
	schema.CategoryAccessMisc:  {},
	schema.CategorySurgeonInfo: {},
	schema.CategoryDoctorInfo:  {},
}

func scopedKnowledgeQuery(txn *gorm.DB, teamId uuid.UUID, accountId, portfolioId *uuid.UUID) *gorm.DB {
	query := txn.Where("team_id = ?", teamId)
	if accountId != nil {
		query = query.Where("account_id = ?", *accountId)
	} else {
		query = query.Where("account_id IS NULL")
	}
	if portfolioId != nil {
		query = query.Where("portfolio_id = ?", *portfolioId)
	} else {
		query = query.Where("portfolio_id IS NULL")
	}
	return query
}

// SaveKnowledge replaces every knowledge row in the given scope with the
// incoming records, so entries removed by the caller do not linger in
// generated knowledge text.
func (s *AccountService) SaveKnowledge(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params saveKnowledgeRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	for _, record := range params.Records {
		if _, ok := knowledgeCategories[record.Category]; !ok {
			http.Error(w, fmt.Sprintf("invalid knowledge category %v", record.Category), http.StatusBadRequest)
			return
		}
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if params.AccountId != nil {
			if err := checkAccountInTeam(txn, teamId, *params.AccountId); err != nil {
				return err
			}
		}
		if params.PortfolioId != nil {
			if err := checkPortfolioInTeam(txn, teamId, *params.PortfolioId); err != nil {
				return err
			}
		}

		result := scopedKnowledgeQuery(txn, teamId, params.AccountId, params.PortfolioId).
			Delete(&schema.KnowledgeRecord{})
		if result.Error != nil {
			slog.Error("sql error clearing knowledge scope", "team_id", teamId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		for _, entry := range params.Records {
			record := schema.KnowledgeRecord{
				Id: uuid.New(), TeamId: teamId,
				AccountId: params.AccountId, PortfolioId: params.PortfolioId,
				Category: entry.Category, Title: entry.Title, Content: entry.Content,
				Quantity: entry.Quantity, ImageUrl: entry.ImageUrl,
				UpdatedAt: time.Now(),
			}
			if result := txn.Create(&record); result.Error != nil {
				slog.Error("sql error creating knowledge record", "team_id", teamId, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}
		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error saving knowledge: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *AccountService) GetKnowledge(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	accountId, err := utils.QueryParamUUID(r, "account_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	portfolioId, err := utils.QueryParamUUID(r, "portfolio_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var records []schema.KnowledgeRecord
	result := scopedKnowledgeQuery(s.db, teamId, accountId, portfolioId).
		Order("category asc, title asc").Find(&records)
	if result.Error != nil {
		slog.Error("sql error loading knowledge", "team_id", teamId, "error", result.Error)
		http.Error(w, "error loading knowledge", http.StatusInternalServerError)
		return
	}

	entries := make([]knowledgeEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, knowledgeEntry{
			Category: record.Category, Title: record.Title, Content: record.Content,
			Quantity: record.Quantity, ImageUrl: record.ImageUrl,
		})
	}

	utils.WriteJsonResponse(w, entries)
}
