package services

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
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

const maxUploadBytes = 100 << 20

type DocumentService struct {
	db       *gorm.DB
	client   assistantapi.Client
	store    storage.Storage
	userAuth auth.IdentityProvider
}

func (s *DocumentService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Route("/{team_id}", func(r chi.Router) {
		r.Use(auth.TeamMemberOnly(s.db))

		r.Post("/upload", s.Upload)
		r.Get("/list", s.List)
		r.Get("/{document_id}/download", s.Download)
		r.Delete("/{document_id}", s.Delete)
	})

	return r
}

type documentInfo struct {
	DocumentId   uuid.UUID `json:"document_id"`
	PortfolioId  uuid.UUID `json:"portfolio_id"`
	OriginalName string    `json:"original_name"`
	DocumentType string    `json:"document_type"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

func documentStatus(doc *schema.Document) string {
	switch doc.OpenAIFileId {
	case schema.FileProcessing:
		return "processing"
	case schema.FileFailed:
		return "failed"
	default:
		return "ready"
	}
}

// Upload stores the file, records it, and ingests it into the external file
// store. The row carries the processing sentinel until ingestion finishes so
// staleness and inventory checks never pick up a half-ingested document.
func (s *DocumentService) Upload(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, fmt.Sprintf("error parsing uploaded file: %v", err), http.StatusBadRequest)
		return
	}

	portfolioId, err := uuid.Parse(r.FormValue("portfolio_id"))
	if err != nil {
		http.Error(w, "invalid portfolio_id", http.StatusBadRequest)
		return
	}

	documentType := r.FormValue("document_type")
	if documentType == "" {
		documentType = schema.DocTypePortfolio
	}
	if documentType != schema.DocTypePortfolio && documentType != schema.DocTypeInventory && documentType != schema.DocTypeGeneral {
		http.Error(w, fmt.Sprintf("invalid document type %v", documentType), http.StatusBadRequest)
		return
	}

	var accountId *uuid.UUID
	if value := r.FormValue("account_id"); value != "" {
		id, err := uuid.Parse(value)
		if err != nil {
			http.Error(w, "invalid account_id", http.StatusBadRequest)
			return
		}
		accountId = &id
	}

	if err := checkPortfolioInTeam(s.db, teamId, portfolioId); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing uploaded file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "error reading uploaded file", http.StatusInternalServerError)
		return
	}

	doc := schema.Document{
		Id: uuid.New(), TeamId: teamId, PortfolioId: portfolioId, AccountId: accountId,
		OriginalName: header.Filename,
		DocumentType: documentType,
		OpenAIFileId: schema.FileProcessing,
		CreatedAt:    time.Now(),
	}
	doc.FilePath = filepath.Join("teams", teamId.String(), "documents", doc.Id.String(), header.Filename)

	if err := s.store.Write(doc.FilePath, bytes.NewReader(data)); err != nil {
		slog.Error("error writing document to storage", "path", doc.FilePath, "error", err)
		http.Error(w, "error storing document", http.StatusInternalServerError)
		return
	}

	if result := s.db.Create(&doc); result.Error != nil {
		slog.Error("sql error creating document", "team_id", teamId, "error", result.Error)
		http.Error(w, "error creating document", http.StatusInternalServerError)
		return
	}

	fileId, err := s.client.UploadFile(r.Context(), header.Filename, data)
	if err != nil {
		slog.Error("error ingesting document", "document_id", doc.Id, "error", err)
		if result := s.db.Model(&doc).Update("openai_file_id", schema.FileFailed); result.Error != nil {
			slog.Error("sql error marking document failed", "document_id", doc.Id, "error", result.Error)
		}
		http.Error(w, "error ingesting document", http.StatusInternalServerError)
		return
	}

	if result := s.db.Model(&doc).Update("openai_file_id", fileId); result.Error != nil {
		slog.Error("sql error saving document file id", "document_id", doc.Id, "error", result.Error)
		http.Error(w, "error saving document", http.StatusInternalServerError)
		return
	}
	doc.OpenAIFileId = fileId

	// Portfolio documents become retrievable immediately; inventory and
	// general documents are attached lazily by the chat path.
	if documentType == schema.DocTypePortfolio {
		portfolio, err := schema.GetPortfolio(portfolioId, s.db)
		if err == nil && portfolio.VectorStoreId != nil && *portfolio.VectorStoreId != "" {
			if err := s.client.AddFileToVectorStore(r.Context(), *portfolio.VectorStoreId, fileId); err != nil {
				slog.Error("error adding document to portfolio vector store",
					"document_id", doc.Id, "vector_store_id", *portfolio.VectorStoreId, "error", err)
			}
		}
	}

	documentUploads.Inc()

	utils.WriteJsonResponse(w, documentInfo{
		DocumentId: doc.Id, PortfolioId: doc.PortfolioId, OriginalName: doc.OriginalName,
		DocumentType: doc.DocumentType, Status: documentStatus(&doc), CreatedAt: doc.CreatedAt,
	})
}

func (s *DocumentService) List(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	query := s.db.Where("team_id = ?", teamId)
	portfolioId, err := utils.QueryParamUUID(r, "portfolio_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if portfolioId != nil {
		query = query.Where("portfolio_id = ?", *portfolioId)
	}

	var docs []schema.Document
	result := query.Order("created_at desc").Find(&docs)
	if result.Error != nil {
		slog.Error("sql error listing documents", "team_id", teamId, "error", result.Error)
		http.Error(w, "error listing documents", http.StatusInternalServerError)
		return
	}

	infos := make([]documentInfo, 0, len(docs))
	for _, doc := range docs {
		infos = append(infos, documentInfo{
			DocumentId: doc.Id, PortfolioId: doc.PortfolioId, OriginalName: doc.OriginalName,
			DocumentType: doc.DocumentType, Status: documentStatus(&doc), CreatedAt: doc.CreatedAt,
		})
	}

	utils.WriteJsonResponse(w, infos)
}

type downloadResponse struct {
	Url string `json:"url"`
}

func (s *DocumentService) Download(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	documentId, err := utils.URLParamUUID(r, "document_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	doc, err := s.getTeamDocument(teamId, documentId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	url, err := s.store.SignedURL(doc.FilePath, 15*time.Minute)
	if err != nil {
		slog.Error("error creating signed url", "document_id", documentId, "error", err)
		http.Error(w, "error creating download url", http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, downloadResponse{Url: url})
}

func (s *DocumentService) getTeamDocument(teamId, documentId uuid.UUID) (schema.Document, error) {
	var doc schema.Document
	result := s.db.Limit(1).Find(&doc, "id = ? AND team_id = ?", documentId, teamId)
	if result.Error != nil {
		slog.Error("sql error loading document", "document_id", documentId, "error", result.Error)
		return doc, CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}
	if result.RowsAffected == 0 {
		return doc, CodedError(errors.New("document not found"), http.StatusNotFound)
	}
	return doc, nil
}

func (s *DocumentService) Delete(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	documentId, err := utils.URLParamUUID(r, "document_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	doc, err := s.getTeamDocument(teamId, documentId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if result := s.db.Delete(&schema.Document{}, "id = ?", doc.Id); result.Error != nil {
		slog.Error("sql error deleting document", "document_id", doc.Id, "error", result.Error)
		http.Error(w, "error deleting document", http.StatusInternalServerError)
		return
	}

	// External cleanup is best effort once the row is gone; team deletion
	// sweeps up anything left behind.
	if doc.Ready() {
		portfolio, err := schema.GetPortfolio(doc.PortfolioId, s.db)
		if err == nil && portfolio.VectorStoreId != nil && *portfolio.VectorStoreId != "" {
			if err := s.client.RemoveFileFromVectorStore(r.Context(), *portfolio.VectorStoreId, doc.OpenAIFileId); err != nil && !errors.Is(err, assistantapi.ErrNotFound) {
				slog.Error("error removing document from vector store", "document_id", doc.Id, "error", err)
			}
		}
		if err := s.client.DeleteFile(r.Context(), doc.OpenAIFileId); err != nil && !errors.Is(err, assistantapi.ErrNotFound) {
			slog.Error("error deleting ingested file", "document_id", doc.Id, "error", err)
		}
	}
	if err := s.store.Delete(doc.FilePath); err != nil {
		slog.Error("error deleting document from storage", "path", doc.FilePath, "error", err)
	}

	utils.WriteSuccess(w)
}
