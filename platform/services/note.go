package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"fieldkit/platform/auth"
	"fieldkit/platform/cleanup"
	"fieldkit/platform/schema"
	"fieldkit/platform/storage"
	"fieldkit/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NoteService struct {
	db       *gorm.DB
	store    storage.Storage
	userAuth auth.IdentityProvider
}

func (s *NoteService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Route("/{team_id}", func(r chi.Router) {
		r.Use(auth.TeamMemberOnly(s.db))

		r.Post("/create", s.Create)
		r.Get("/list", s.List)
		r.Post("/{note_id}", s.Update)
		r.Delete("/{note_id}", s.Delete)
	})

	return r
}

type noteRequest struct {
	AccountId   *uuid.UUID         `json:"account_id"`
	PortfolioId uuid.UUID          `json:"portfolio_id"`
	Title       string             `json:"title"`
	Content     string             `json:"content"`
	Images      []schema.NoteImage `json:"images"`

	IsShared          bool `json:"is_shared"`
	IsPortfolioShared bool `json:"is_portfolio_shared"`
}

type noteInfo struct {
	NoteId      uuid.UUID          `json:"note_id"`
	AccountId   *uuid.UUID         `json:"account_id"`
	PortfolioId uuid.UUID          `json:"portfolio_id"`
	Title       string             `json:"title"`
	Content     string             `json:"content"`
	Images      []schema.NoteImage `json:"images"`

	IsShared          bool `json:"is_shared"`
	IsPortfolioShared bool `json:"is_portfolio_shared"`
	IsOwn             bool `json:"is_own"`

	UpdatedAt time.Time `json:"updated_at"`
}

func toNoteInfo(note schema.Note, userId uuid.UUID) noteInfo {
	return noteInfo{
		NoteId: note.Id, AccountId: note.AccountId, PortfolioId: note.PortfolioId,
		Title: note.Title, Content: note.Content, Images: note.Images,
		IsShared: note.IsShared, IsPortfolioShared: note.IsPortfolioShared,
		IsOwn: note.UserId == userId, UpdatedAt: note.UpdatedAt,
	}
}

func (s *NoteService) Create(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params noteRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Title == "" {
		http.Error(w, "note title must be specified", http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	note := schema.Note{
		Id: uuid.New(), UserId: user.Id, TeamId: teamId,
		AccountId: params.AccountId, PortfolioId: params.PortfolioId,
		Title: params.Title, Content: params.Content, Images: params.Images,
		IsShared: params.IsShared, IsPortfolioShared: params.IsPortfolioShared,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkPortfolioInTeam(txn, teamId, params.PortfolioId); err != nil {
			return err
		}
		if params.AccountId != nil {
			if err := checkAccountInTeam(txn, teamId, *params.AccountId); err != nil {
				return err
			}
		}
		if result := txn.Create(&note); result.Error != nil {
			slog.Error("sql error creating note", "team_id", teamId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error creating note: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, toNoteInfo(note, user.Id))
}

// List returns the user's own notes plus notes shared with them for the
// given portfolio (and optionally account) scope.
func (s *NoteService) List(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	query := s.db.Where("team_id = ?", teamId).
		Where("user_id = ? OR is_shared = ? OR is_portfolio_shared = ?", user.Id, true, true)

	portfolioId, err := utils.QueryParamUUID(r, "portfolio_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if portfolioId != nil {
		query = query.Where("portfolio_id = ?", *portfolioId)
	}

	accountId, err := utils.QueryParamUUID(r, "account_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if accountId != nil {
		query = query.Where("account_id = ? OR account_id IS NULL", *accountId)
	}

	var notes []schema.Note
	if result := query.Order("created_at desc").Find(&notes); result.Error != nil {
		slog.Error("sql error listing notes", "team_id", teamId, "error", result.Error)
		http.Error(w, "error listing notes", http.StatusInternalServerError)
		return
	}

	infos := make([]noteInfo, 0, len(notes))
	for _, note := range notes {
		infos = append(infos, toNoteInfo(note, user.Id))
	}

	utils.WriteJsonResponse(w, infos)
}

func (s *NoteService) getOwnNote(r *http.Request, teamId uuid.UUID) (schema.Note, error) {
	noteId, err := utils.URLParamUUID(r, "note_id")
	if err != nil {
		return schema.Note{}, CodedError(err, http.StatusBadRequest)
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		return schema.Note{}, CodedError(err, http.StatusUnauthorized)
	}

	var note schema.Note
	result := s.db.Limit(1).Find(&note, "id = ? AND team_id = ?", noteId, teamId)
	if result.Error != nil {
		slog.Error("sql error loading note", "note_id", noteId, "error", result.Error)
		return schema.Note{}, CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}
	if result.RowsAffected == 0 {
		return schema.Note{}, CodedError(errors.New("note not found"), http.StatusNotFound)
	}
	if note.UserId != user.Id {
		return schema.Note{}, CodedError(errors.New("only the note's author can modify it"), http.StatusForbidden)
	}
	return note, nil
}

func (s *NoteService) Update(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	note, err := s.getOwnNote(r, teamId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	var params noteRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Title == "" {
		http.Error(w, "note title must be specified", http.StatusBadRequest)
		return
	}

	updates := map[string]interface{}{
		"title":               params.Title,
		"content":             params.Content,
		"images":              params.Images,
		"is_shared":           params.IsShared,
		"is_portfolio_shared": params.IsPortfolioShared,
		"updated_at":          time.Now(),
	}
	if result := s.db.Model(&note).Updates(updates); result.Error != nil {
		slog.Error("sql error updating note", "note_id", note.Id, "error", result.Error)
		http.Error(w, "error updating note", http.StatusInternalServerError)
		return
	}

	utils.WriteSuccess(w)
}

func (s *NoteService) Delete(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	note, err := s.getOwnNote(r, teamId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	if result := s.db.Delete(&schema.Note{}, "id = ?", note.Id); result.Error != nil {
		slog.Error("sql error deleting note", "note_id", note.Id, "error", result.Error)
		http.Error(w, "error deleting note", http.StatusInternalServerError)
		return
	}

	for _, path := range cleanup.NoteImagePaths([]schema.Note{note}) {
		if err := s.store.Delete(path); err != nil {
			slog.Error("error deleting note image", "path", path, "error", err)
		}
	}

	utils.WriteSuccess(w)
}
