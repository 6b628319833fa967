package assistantapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const openaiBaseUrl = "https://api.openai.com/v1"

type OpenAIClient struct {
	client  *openai.Client
	apiKey  string
	baseUrl string
	http    *http.Client
}

func NewOpenAI(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		client:  openai.NewClient(apiKey),
		apiKey:  apiKey,
		baseUrl: openaiBaseUrl,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

func convertError(err error) error {
	apiErr := &openai.APIError{}
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

func (c *OpenAIClient) CreateAssistant(ctx context.Context, config AssistantConfig) (string, error) {
	req := openai.AssistantRequest{
		Model:        config.Model,
		Name:         &config.Name,
		Instructions: &config.Instructions,
		Tools:        []openai.AssistantTool{{Type: openai.AssistantToolTypeFileSearch}},
	}
	if len(config.VectorStoreIds) > 0 {
		req.ToolResources = &openai.AssistantToolResource{
			FileSearch: &openai.AssistantToolFileSearch{VectorStoreIDs: config.VectorStoreIds},
		}
	}

	assistant, err := c.client.CreateAssistant(ctx, req)
	if err != nil {
		slog.Error("error creating assistant", "name", config.Name, "error", err)
		return "", fmt.Errorf("error creating assistant: %w", err)
	}
	return assistant.ID, nil
}

func (c *OpenAIClient) AssistantExists(ctx context.Context, assistantId string) (bool, error) {
	_, err := c.client.RetrieveAssistant(ctx, assistantId)
	if err != nil {
		if errors.Is(convertError(err), ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("error retrieving assistant %v: %w", assistantId, err)
	}
	return true, nil
}

func (c *OpenAIClient) DeleteAssistant(ctx context.Context, assistantId string) error {
	_, err := c.client.DeleteAssistant(ctx, assistantId)
	if err != nil {
		return fmt.Errorf("error deleting assistant %v: %w", assistantId, convertError(err))
	}
	return nil
}

func (c *OpenAIClient) CreateVectorStore(ctx context.Context, name string) (string, error) {
	store, err := c.client.CreateVectorStore(ctx, openai.VectorStoreRequest{Name: name})
	if err != nil {
		slog.Error("error creating vector store", "name", name, "error", err)
		return "", fmt.Errorf("error creating vector store: %w", err)
	}
	return store.ID, nil
}

func (c *OpenAIClient) VectorStoreExists(ctx context.Context, vectorStoreId string) (bool, error) {
	_, err := c.client.RetrieveVectorStore(ctx, vectorStoreId)
	if err != nil {
		if errors.Is(convertError(err), ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("error retrieving vector store %v: %w", vectorStoreId, err)
	}
	return true, nil
}

func (c *OpenAIClient) DeleteVectorStore(ctx context.Context, vectorStoreId string) error {
	_, err := c.client.DeleteVectorStore(ctx, vectorStoreId)
	if err != nil {
		return fmt.Errorf("error deleting vector store %v: %w", vectorStoreId, convertError(err))
	}
	return nil
}

func (c *OpenAIClient) ListVectorStoreFiles(ctx context.Context, vectorStoreId string) ([]string, error) {
	limit := 100
	files, err := c.client.ListVectorStoreFiles(ctx, vectorStoreId, openai.Pagination{Limit: &limit})
	if err != nil {
		return nil, fmt.Errorf("error listing files in vector store %v: %w", vectorStoreId, convertError(err))
	}

	fileIds := make([]string, 0, len(files.VectorStoreFiles))
	for _, file := range files.VectorStoreFiles {
		fileIds = append(fileIds, file.ID)
	}
	return fileIds, nil
}

func (c *OpenAIClient) AddFileToVectorStore(ctx context.Context, vectorStoreId, fileId string) error {
	_, err := c.client.CreateVectorStoreFile(ctx, vectorStoreId, openai.VectorStoreFileRequest{FileID: fileId})
	if err != nil {
		return fmt.Errorf("error adding file %v to vector store %v: %w", fileId, vectorStoreId, convertError(err))
	}
	return nil
}

func (c *OpenAIClient) RemoveFileFromVectorStore(ctx context.Context, vectorStoreId, fileId string) error {
	err := c.client.DeleteVectorStoreFile(ctx, vectorStoreId, fileId)
	if err != nil {
		return fmt.Errorf("error removing file %v from vector store %v: %w", fileId, vectorStoreId, convertError(err))
	}
	return nil
}

func (c *OpenAIClient) UploadFile(ctx context.Context, filename string, data []byte) (string, error) {
	file, err := c.client.CreateFileBytes(ctx, openai.FileBytesRequest{
		Name:    filename,
		Bytes:   data,
		Purpose: openai.PurposeAssistants,
	})
	if err != nil {
		slog.Error("error uploading file", "filename", filename, "error", err)
		return "", fmt.Errorf("error uploading file %v: %w", filename, err)
	}
	return file.ID, nil
}

func (c *OpenAIClient) FileExists(ctx context.Context, fileId string) (bool, error) {
	_, err := c.client.GetFile(ctx, fileId)
	if err != nil {
		if errors.Is(convertError(err), ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("error retrieving file %v: %w", fileId, err)
	}
	return true, nil
}

func (c *OpenAIClient) DeleteFile(ctx context.Context, fileId string) error {
	err := c.client.DeleteFile(ctx, fileId)
	if err != nil {
		return fmt.Errorf("error deleting file %v: %w", fileId, convertError(err))
	}
	return nil
}

func (c *OpenAIClient) CreateThread(ctx context.Context) (string, error) {
	thread, err := c.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		slog.Error("error creating thread", "error", err)
		return "", fmt.Errorf("error creating thread: %w", err)
	}
	return thread.ID, nil
}

func (c *OpenAIClient) DeleteThread(ctx context.Context, threadId string) error {
	_, err := c.client.DeleteThread(ctx, threadId)
	if err != nil {
		return fmt.Errorf("error deleting thread %v: %w", threadId, convertError(err))
	}
	return nil
}

func (c *OpenAIClient) AddMessage(ctx context.Context, threadId, content string) (string, error) {
	msg, err := c.client.CreateMessage(ctx, threadId, openai.MessageRequest{
		Role:    string(openai.ThreadMessageRoleUser),
		Content: content,
	})
	if err != nil {
		return "", fmt.Errorf("error adding message to thread %v: %w", threadId, convertError(err))
	}
	return msg.ID, nil
}

func (c *OpenAIClient) ListMessages(ctx context.Context, threadId string) ([]Message, error) {
	limit := 100
	order := "asc"
	msgs, err := c.client.ListMessage(ctx, threadId, &limit, &order, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("error listing messages in thread %v: %w", threadId, convertError(err))
	}

	messages := make([]Message, 0, len(msgs.Messages))
	for _, msg := range msgs.Messages {
		var content strings.Builder
		for _, part := range msg.Content {
			if part.Text != nil {
				content.WriteString(part.Text.Value)
			}
		}
		messages = append(messages, Message{
			Id:        msg.ID,
			Role:      msg.Role,
			Content:   content.String(),
			CreatedAt: int64(msg.CreatedAt),
		})
	}
	return messages, nil
}

func runPending(status openai.RunStatus) bool {
	switch status {
	case openai.RunStatusQueued, openai.RunStatusInProgress, openai.RunStatusCancelling:
		return true
	default:
		return false
	}
}

func (c *OpenAIClient) RunAndWait(ctx context.Context, threadId, assistantId, instructions string) (Run, error) {
	run, err := c.client.CreateRun(ctx, threadId, openai.RunRequest{
		AssistantID:            assistantId,
		AdditionalInstructions: instructions,
	})
	if err != nil {
		slog.Error("error creating run", "thread_id", threadId, "assistant_id", assistantId, "error", err)
		return Run{}, fmt.Errorf("error creating run on thread %v: %w", threadId, convertError(err))
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for runPending(run.Status) {
		select {
		case <-ctx.Done():
			return Run{}, fmt.Errorf("run %v did not complete: %w", run.ID, ctx.Err())
		case <-ticker.C:
		}

		run, err = c.client.RetrieveRun(ctx, threadId, run.ID)
		if err != nil {
			return Run{}, fmt.Errorf("error polling run %v: %w", run.ID, convertError(err))
		}
	}

	return Run{Id: run.ID, Status: string(run.Status)}, nil
}

// The go-openai sdk does not expose the include parameter needed to request
// file search result content on run steps, so this call is made directly.
func (c *OpenAIClient) ListRunSteps(ctx context.Context, threadId, runId string) ([]RunStep, error) {
	query := url.Values{}
	query.Set("limit", "100")
	query.Add("include[]", "step_details.tool_calls[*].file_search.results[*].content")

	endpoint := fmt.Sprintf("%s/threads/%s/runs/%s/steps?%s", c.baseUrl, threadId, runId, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating run steps request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error listing steps for run %v: %w", runId, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("error listing steps for run %v: %w", runId, ErrNotFound)
	}
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("error listing steps for run %v: status %d: %s", runId, res.StatusCode, body)
	}

	var parsed runStepsResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("error parsing run steps response: %w", err)
	}

	steps := make([]RunStep, 0, len(parsed.Data))
	for _, step := range parsed.Data {
		converted := RunStep{Id: step.Id}
		for _, toolCall := range step.StepDetails.ToolCalls {
			if toolCall.Type != "file_search" {
				continue
			}
			for _, result := range toolCall.FileSearch.Results {
				var content strings.Builder
				for _, part := range result.Content {
					if part.Type == "text" {
						content.WriteString(part.Text)
					}
				}
				converted.FileSearchResults = append(converted.FileSearchResults, FileSearchResult{
					FileId:  result.FileId,
					Score:   result.Score,
					Content: content.String(),
				})
			}
		}
		steps = append(steps, converted)
	}

	return steps, nil
}

type runStepsResponse struct {
	Data []struct {
		Id          string `json:"id"`
		StepDetails struct {
			Type      string `json:"type"`
			ToolCalls []struct {
				Type       string `json:"type"`
				FileSearch struct {
					Results []struct {
						FileId  string  `json:"file_id"`
						Score   float64 `json:"score"`
						Content []struct {
							Type string `json:"type"`
							Text string `json:"text"`
						} `json:"content"`
					} `json:"results"`
				} `json:"file_search"`
			} `json:"tool_calls"`
		} `json:"step_details"`
	} `json:"data"`
}
