package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"fieldkit/platform/assistantapi"
	"fieldkit/platform/auth"
	"fieldkit/platform/chatctx"
	"fieldkit/platform/schema"
	"fieldkit/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	assistantModel = "gpt-4.1"

	maxThreadTitleLen = 50
)

type ChatService struct {
	db     *gorm.DB
	client assistantapi.Client

	contexts  *chatctx.ContextGenerator
	updater   *chatctx.KnowledgeUpdater
	inventory *chatctx.InventoryIndexer
	sources   *chatctx.SourceExtractor

	userAuth auth.IdentityProvider
}

func (s *ChatService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Route("/{team_id}", func(r chi.Router) {
		r.Use(auth.TeamMemberOnly(s.db))

		r.Post("/start", s.StartThread)
		r.Get("/threads", s.ListThreads)
		r.Get("/context", s.Context)

		r.Route("/threads/{thread_id}", func(r chi.Router) {
			r.Get("/messages", s.Messages)
			r.Post("/message", s.SendMessage)
			r.Post("/rate", s.RateMessage)
			r.Delete("/", s.DeleteThread)
		})
	})

	return r
}

type threadInfo struct {
	ChatId      uuid.UUID `json:"chat_id"`
	ThreadId    string    `json:"thread_id"`
	AccountId   uuid.UUID `json:"account_id"`
	PortfolioId uuid.UUID `json:"portfolio_id"`
	AssistantId string    `json:"assistant_id"`
	Title       string    `json:"title"`
	CreatedAt   time.Time `json:"created_at"`
}

func toThreadInfo(thread schema.ChatThread) threadInfo {
	return threadInfo{
		ChatId: thread.Id, ThreadId: thread.ThreadId,
		AccountId: thread.AccountId, PortfolioId: thread.PortfolioId,
		AssistantId: thread.AssistantId, Title: thread.Title,
		CreatedAt: thread.CreatedAt,
	}
}

// ensureAssistant returns the cached assistant for the team+portfolio scope,
// creating a fresh one when no cache exists or a newer document has made the
// cached assistant stale. The portfolio's vector store is created on first
// use and persisted on the portfolio row.
func (s *ChatService) ensureAssistant(ctx context.Context, teamId, portfolioId uuid.UUID) (schema.AssistantRecord, error) {
	var cached schema.AssistantRecord
	result := s.db.Limit(1).Find(&cached, "team_id = ? AND portfolio_id = ?", teamId, portfolioId)
	if result.Error != nil {
		slog.Error("sql error loading cached assistant", "team_id", teamId, "error", result.Error)
		return cached, schema.ErrDbAccessFailed
	}
	haveCached := result.RowsAffected > 0

	if haveCached && !s.contexts.CheckIfCacheIsStale(teamId, portfolioId) {
		return cached, nil
	}

	portfolio, err := schema.GetPortfolio(portfolioId, s.db)
	if err != nil {
		return cached, err
	}

	vectorStoreId := ""
	if portfolio.VectorStoreId != nil {
		vectorStoreId = *portfolio.VectorStoreId
	} else {
		vectorStoreId, err = s.client.CreateVectorStore(ctx, fmt.Sprintf("portfolio-%v", portfolioId))
		if err != nil {
			return cached, fmt.Errorf("error creating vector store: %w", err)
		}
		update := s.db.Model(&schema.Portfolio{}).Where("id = ?", portfolioId).
			Update("vector_store_id", vectorStoreId)
		if update.Error != nil {
			slog.Error("sql error saving portfolio vector store", "portfolio_id", portfolioId, "error", update.Error)
		}
	}

	names := s.contexts.GetNames(teamId, portfolioId)
	general := s.contexts.GenerateGeneralContext(teamId)

	assistantId, err := s.client.CreateAssistant(ctx, assistantapi.AssistantConfig{
		Name:           fmt.Sprintf("%s - %s Assistant", names.TeamName, names.PortfolioName),
		Model:          assistantModel,
		Instructions:   assistantInstructions(names, general),
		VectorStoreIds: []string{vectorStoreId},
	})
	if err != nil {
		return cached, fmt.Errorf("error creating assistant: %w", err)
	}

	record := schema.AssistantRecord{
		Id: uuid.New(), TeamId: teamId, PortfolioId: portfolioId,
		OpenAIAssistantId: assistantId, VectorStoreId: vectorStoreId,
		Name: fmt.Sprintf("%s - %s Assistant", names.TeamName, names.PortfolioName), CreatedAt: time.Now(),
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if haveCached {
			if result := txn.Delete(&schema.AssistantRecord{}, "id = ?", cached.Id); result.Error != nil {
				return result.Error
			}
		}
		return txn.Create(&record).Error
	})
	if err != nil {
		slog.Error("sql error caching assistant", "team_id", teamId, "error", err)
		if deleteErr := s.client.DeleteAssistant(ctx, assistantId); deleteErr != nil {
			slog.Error("error deleting orphaned assistant", "assistant_id", assistantId, "error", deleteErr)
		}
		return cached, schema.ErrDbAccessFailed
	}

	if haveCached {
		if err := s.client.DeleteAssistant(ctx, cached.OpenAIAssistantId); err != nil && !errors.Is(err, assistantapi.ErrNotFound) {
			slog.Error("error deleting stale assistant", "assistant_id", cached.OpenAIAssistantId, "error", err)
		}
	}

	return record, nil
}

func assistantInstructions(names chatctx.Names, general chatctx.GeneralContext) string {
	return fmt.Sprintf(
		"You are a field assistant for %s supporting the %s portfolio.\n\n%s\n\n%s\n\n"+
			"Always use file search to find relevant information in the portfolio's "+
			"documents and knowledge files before answering. Cite the documents you used.",
		names.TeamName, names.PortfolioName, general.TeamInfo, general.KnowledgeText)
}

// ensureFreshContext makes the scope's assistant, knowledge file, and
// inventory documents current before a message is sent. Knowledge refresh
// failures abort the send; an inventory indexing failure only logs, since
// the assistant can still answer from the rest of the store.
func (s *ChatService) ensureFreshContext(ctx context.Context, teamId, accountId, portfolioId, userId uuid.UUID) (schema.AssistantRecord, error) {
	assistant, err := s.ensureAssistant(ctx, teamId, portfolioId)
	if err != nil {
		return assistant, err
	}

	update, err := s.updater.UpdateKnowledgeIfStale(ctx, teamId, accountId, portfolioId, assistant.VectorStoreId, userId)
	if err != nil {
		return assistant, fmt.Errorf("error refreshing knowledge: %w", err)
	}
	if update.WasUpdated {
		knowledgeRefreshes.Inc()
	}

	if _, err := s.inventory.EnsureInventoryInVectorStore(ctx, assistant.VectorStoreId, teamId); err != nil {
		slog.Error("error indexing inventory documents", "team_id", teamId, "error", err)
	}

	return assistant, nil
}

type startThreadRequest struct {
	AccountId   uuid.UUID `json:"account_id"`
	PortfolioId uuid.UUID `json:"portfolio_id"`
	Title       string    `json:"title"`
}

func (s *ChatService) StartThread(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params startThreadRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Title == "" {
		http.Error(w, "thread title must be specified", http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	if err := checkPortfolioInTeam(s.db, teamId, params.PortfolioId); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}
	if err := checkAccountInTeam(s.db, teamId, params.AccountId); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	assistant, err := s.ensureFreshContext(r.Context(), teamId, params.AccountId, params.PortfolioId, user.Id)
	if err != nil {
		http.Error(w, fmt.Sprintf("error preparing assistant: %v", err), http.StatusInternalServerError)
		return
	}

	threadId, err := s.client.CreateThread(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("error creating thread: %v", err), http.StatusInternalServerError)
		return
	}

	title := params.Title
	if runes := []rune(title); len(runes) > maxThreadTitleLen {
		title = string(runes[:maxThreadTitleLen]) + "..."
	}

	thread := schema.ChatThread{
		Id: uuid.New(), UserId: user.Id, TeamId: teamId,
		AccountId: params.AccountId, PortfolioId: params.PortfolioId,
		AssistantId: assistant.OpenAIAssistantId, ThreadId: threadId,
		Title: title, CreatedAt: time.Now(),
	}
	if result := s.db.Create(&thread); result.Error != nil {
		slog.Error("sql error creating chat thread", "team_id", teamId, "error", result.Error)
		if deleteErr := s.client.DeleteThread(r.Context(), threadId); deleteErr != nil {
			slog.Error("error deleting orphaned thread", "thread_id", threadId, "error", deleteErr)
		}
		http.Error(w, "error saving chat thread", http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, toThreadInfo(thread))
}

func (s *ChatService) ListThreads(w http.ResponseWriter, r *http.Request) {
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

	var threads []schema.ChatThread
	result := s.db.Order("created_at desc").
		Find(&threads, "team_id = ? AND user_id = ?", teamId, user.Id)
	if result.Error != nil {
		slog.Error("sql error listing chat threads", "team_id", teamId, "error", result.Error)
		http.Error(w, "error listing chat threads", http.StatusInternalServerError)
		return
	}

	infos := make([]threadInfo, 0, len(threads))
	for _, thread := range threads {
		infos = append(infos, toThreadInfo(thread))
	}

	utils.WriteJsonResponse(w, infos)
}

// Context returns the account context strings used to prime the chat UI.
func (s *ChatService) Context(w http.ResponseWriter, r *http.Request) {
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

	if accountId != nil && portfolioId != nil {
		utils.WriteJsonResponse(w, s.contexts.GenerateAccountContext(teamId, *accountId, *portfolioId))
		return
	}
	utils.WriteJsonResponse(w, s.contexts.GenerateGeneralContext(teamId))
}

// getOwnThread loads the thread and verifies it belongs to both the caller
// and the team in the route.
func (s *ChatService) getOwnThread(r *http.Request, teamId uuid.UUID) (schema.ChatThread, error) {
	threadId := chi.URLParam(r, "thread_id")
	if threadId == "" {
		return schema.ChatThread{}, CodedError(errors.New("thread id must be specified"), http.StatusBadRequest)
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		return schema.ChatThread{}, CodedError(err, http.StatusUnauthorized)
	}

	thread, err := schema.GetThreadForUser(threadId, user.Id, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrThreadNotFound) {
			return thread, CodedError(err, http.StatusNotFound)
		}
		return thread, CodedError(err, http.StatusInternalServerError)
	}
	if thread.TeamId != teamId {
		return thread, CodedError(schema.ErrThreadNotFound, http.StatusNotFound)
	}
	return thread, nil
}

func (s *ChatService) Messages(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	thread, err := s.getOwnThread(r, teamId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	messages, err := s.client.ListMessages(r.Context(), thread.ThreadId)
	if err != nil {
		http.Error(w, fmt.Sprintf("error listing messages: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, map[string]interface{}{"messages": messages})
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

type sendMessageResponse struct {
	Messages  []assistantapi.Message `json:"messages"`
	Citations []chatctx.SourceInfo   `json:"citations"`
}

func (s *ChatService) SendMessage(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	thread, err := s.getOwnThread(r, teamId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	var params sendMessageRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Message == "" {
		http.Error(w, "message must be specified", http.StatusBadRequest)
		return
	}

	assistant, err := s.ensureFreshContext(r.Context(), teamId, thread.AccountId, thread.PortfolioId, thread.UserId)
	if err != nil {
		http.Error(w, fmt.Sprintf("error preparing assistant: %v", err), http.StatusInternalServerError)
		return
	}

	if assistant.OpenAIAssistantId != thread.AssistantId {
		update := s.db.Model(&schema.ChatThread{}).Where("id = ?", thread.Id).
			Update("assistant_id", assistant.OpenAIAssistantId)
		if update.Error != nil {
			slog.Error("sql error updating thread assistant", "thread_id", thread.ThreadId, "error", update.Error)
		}
	}

	if _, err := s.client.AddMessage(r.Context(), thread.ThreadId, params.Message); err != nil {
		http.Error(w, fmt.Sprintf("error adding message: %v", err), http.StatusInternalServerError)
		return
	}

	start := time.Now()
	run, err := s.client.RunAndWait(r.Context(), thread.ThreadId, assistant.OpenAIAssistantId, "")
	if err != nil {
		http.Error(w, fmt.Sprintf("error running assistant: %v", err), http.StatusInternalServerError)
		return
	}
	if run.Status != assistantapi.RunCompleted {
		http.Error(w, fmt.Sprintf("assistant run ended with status %v", run.Status), http.StatusInternalServerError)
		return
	}

	chatMessagesSent.Inc()
	chatResponseSeconds.Observe(time.Since(start).Seconds())

	messages, err := s.client.ListMessages(r.Context(), thread.ThreadId)
	if err != nil {
		http.Error(w, fmt.Sprintf("error listing messages: %v", err), http.StatusInternalServerError)
		return
	}

	// Citation extraction is best effort, it returns an empty slice on error.
	citations := s.sources.ExtractSourcesFromRun(r.Context(), thread.ThreadId, run.Id)

	utils.WriteJsonResponse(w, sendMessageResponse{Messages: messages, Citations: citations})
}

type rateMessageRequest struct {
	MessageId      string   `json:"message_id"`
	Rating         *int     `json:"rating"`
	FeedbackText   string   `json:"feedback_text"`
	ResponseTimeMs *int     `json:"response_time_ms"`
	Citations      []string `json:"citations"`
}

func (s *ChatService) RateMessage(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	thread, err := s.getOwnThread(r, teamId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	var params rateMessageRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.MessageId == "" {
		http.Error(w, "message id must be specified", http.StatusBadRequest)
		return
	}

	rating := schema.MessageRating{
		Id: uuid.New(), UserId: thread.UserId, MessageId: params.MessageId,
		TeamId: teamId, ThreadId: thread.ThreadId,
		AccountId: thread.AccountId, PortfolioId: thread.PortfolioId,
		Rating: params.Rating, FeedbackText: params.FeedbackText,
		ResponseTimeMs: params.ResponseTimeMs, Citations: params.Citations,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}

	// One rating row per (user, message). Re-rating updates in place; the
	// rating value itself is only overwritten when the request carries one.
	updated := []string{"feedback_text", "response_time_ms", "citations", "updated_at"}
	if params.Rating != nil {
		updated = append(updated, "rating")
	}
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "message_id"}},
		DoUpdates: clause.AssignmentColumns(updated),
	}).Create(&rating)
	if result.Error != nil {
		slog.Error("sql error saving message rating", "thread_id", thread.ThreadId, "error", result.Error)
		http.Error(w, "error saving rating", http.StatusInternalServerError)
		return
	}

	utils.WriteSuccess(w)
}

func (s *ChatService) DeleteThread(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	thread, err := s.getOwnThread(r, teamId)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if result := txn.Delete(&schema.MessageRating{}, "thread_id = ?", thread.ThreadId); result.Error != nil {
			return result.Error
		}
		return txn.Delete(&schema.ChatThread{}, "id = ?", thread.Id).Error
	})
	if err != nil {
		slog.Error("sql error deleting chat thread", "thread_id", thread.ThreadId, "error", err)
		http.Error(w, "error deleting chat thread", http.StatusInternalServerError)
		return
	}

	if err := s.client.DeleteThread(r.Context(), thread.ThreadId); err != nil && !errors.Is(err, assistantapi.ErrNotFound) {
		slog.Error("error deleting remote thread", "thread_id", thread.ThreadId, "error", err)
	}

	utils.WriteSuccess(w)
}
