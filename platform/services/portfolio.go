package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"fieldkit/platform/assistantapi"
	"fieldkit/platform/auth"
	"fieldkit/platform/schema"
	"fieldkit/platform/storage"
	"fieldkit/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PortfolioService struct {
	db       *gorm.DB
	client   assistantapi.Client
	store    storage.Storage
	userAuth auth.IdentityProvider
}

func (s *PortfolioService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Route("/{team_id}", func(r chi.Router) {
		r.With(auth.TeamMemberOnly(s.db)).Get("/list", s.List)

		r.Group(func(r chi.Router) {
			r.Use(auth.TeamManagerOnly(s.db))

			r.Post("/create", s.Create)
			r.Post("/{portfolio_id}", s.Update)
			r.Delete("/{portfolio_id}", s.Delete)
		})
	})

	return r
}

type portfolioRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type portfolioInfo struct {
	PortfolioId uuid.UUID `json:"portfolio_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *PortfolioService) Create(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params portfolioRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Name == "" {
		http.Error(w, "portfolio name must be specified", http.StatusBadRequest)
		return
	}

	portfolio := schema.Portfolio{
		Id: uuid.New(), TeamId: teamId,
		Name: params.Name, Description: params.Description, CreatedAt: time.Now(),
	}

	// Each portfolio is backed by its own vector store so its documents are
	// retrievable independently of other portfolios.
	storeId, err := s.client.CreateVectorStore(r.Context(), fmt.Sprintf("portfolio-%v", portfolio.Id))
	if err != nil {
		slog.Error("error creating portfolio vector store", "portfolio_id", portfolio.Id, "error", err)
		http.Error(w, "error creating portfolio", http.StatusInternalServerError)
		return
	}
	portfolio.VectorStoreId = &storeId

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkTeamExists(txn, teamId); err != nil {
			return err
		}

		result := txn.Create(&portfolio)
		if result.Error != nil {
			slog.Error("sql error creating portfolio", "team_id", teamId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})

	if err != nil {
		if deleteErr := s.client.DeleteVectorStore(r.Context(), storeId); deleteErr != nil {
			slog.Error("error deleting orphaned vector store", "vector_store_id", storeId, "error", deleteErr)
		}
		http.Error(w, fmt.Sprintf("error creating portfolio: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, portfolioInfo{
		PortfolioId: portfolio.Id, Name: portfolio.Name,
		Description: portfolio.Description, CreatedAt: portfolio.CreatedAt,
	})
}

func (s *PortfolioService) List(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var portfolios []schema.Portfolio
	result := s.db.Order("created_at asc").Find(&portfolios, "team_id = ?", teamId)
	if result.Error != nil {
		slog.Error("sql error listing portfolios", "team_id", teamId, "error", result.Error)
		http.Error(w, "error listing portfolios", http.StatusInternalServerError)
		return
	}

	infos := make([]portfolioInfo, 0, len(portfolios))
	for _, portfolio := range portfolios {
		infos = append(infos, portfolioInfo{
			PortfolioId: portfolio.Id, Name: portfolio.Name,
			Description: portfolio.Description, CreatedAt: portfolio.CreatedAt,
		})
	}

	utils.WriteJsonResponse(w, infos)
}

func (s *PortfolioService) Update(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	portfolioId, err := utils.URLParamUUID(r, "portfolio_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params portfolioRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Name == "" {
		http.Error(w, "portfolio name must be specified", http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkPortfolioInTeam(txn, teamId, portfolioId); err != nil {
			return err
		}

		result := txn.Model(&schema.Portfolio{}).Where("id = ?", portfolioId).
			Updates(map[string]interface{}{"name": params.Name, "description": params.Description})
		if result.Error != nil {
			slog.Error("sql error updating portfolio", "portfolio_id", portfolioId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating portfolio: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *PortfolioService) Delete(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	portfolioId, err := utils.URLParamUUID(r, "portfolio_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	portfolio, err := schema.GetPortfolio(portfolioId, s.db)
	if err != nil || portfolio.TeamId != teamId {
		if err == nil || errors.Is(err, schema.ErrPortfolioNotFound) {
			http.Error(w, schema.ErrPortfolioNotFound.Error(), http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	var docs []schema.Document
	if result := s.db.Find(&docs, "portfolio_id = ?", portfolioId); result.Error != nil {
		slog.Error("sql error loading portfolio documents", "portfolio_id", portfolioId, "error", result.Error)
		http.Error(w, "error deleting portfolio", http.StatusInternalServerError)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		for _, model := range []interface{}{
			&schema.KnowledgeRecord{}, &schema.Document{}, &schema.AssistantRecord{},
			&schema.Note{}, &schema.KnowledgeFileRecord{},
		} {
			result := txn.Where("portfolio_id = ?", portfolioId).Delete(model)
			if result.Error != nil {
				slog.Error("sql error deleting portfolio rows", "portfolio_id", portfolioId, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}

		result := txn.Delete(&schema.AccountPortfolio{}, "portfolio_id = ?", portfolioId)
		if result.Error != nil {
			slog.Error("sql error deleting portfolio assignments", "portfolio_id", portfolioId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		result = txn.Delete(&schema.Portfolio{}, "id = ?", portfolioId)
		if result.Error != nil {
			slog.Error("sql error deleting portfolio", "portfolio_id", portfolioId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting portfolio: %v", err), GetResponseCode(err))
		return
	}

	// External resources are removed best effort once the rows are gone;
	// anything left behind is reclaimed by team deletion.
	if portfolio.VectorStoreId != nil && *portfolio.VectorStoreId != "" {
		if err := s.client.DeleteVectorStore(r.Context(), *portfolio.VectorStoreId); err != nil && !errors.Is(err, assistantapi.ErrNotFound) {
			slog.Error("error deleting portfolio vector store", "vector_store_id", *portfolio.VectorStoreId, "error", err)
		}
	}
	for _, doc := range docs {
		if !doc.Ready() {
			continue
		}
		if err := s.client.DeleteFile(r.Context(), doc.OpenAIFileId); err != nil && !errors.Is(err, assistantapi.ErrNotFound) {
			slog.Error("error deleting ingested file", "document_id", doc.Id, "error", err)
		}
	}
	if len(docs) > 0 {
		paths := make([]string, 0, len(docs))
		for _, doc := range docs {
			paths = append(paths, doc.FilePath)
		}
		if err := s.store.DeleteBatch(paths); err != nil {
			slog.Error("error deleting portfolio documents from storage", "portfolio_id", portfolioId, "error", err)
		}
	}

	utils.WriteSuccess(w)
}
