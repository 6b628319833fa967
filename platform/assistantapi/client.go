package assistantapi

import (
	"context"
	"errors"
)

// ErrNotFound is returned by retrieval operations when the remote resource
// does not exist. Deletion flows treat it as already-deleted.
var ErrNotFound = errors.New("resource not found")

type AssistantConfig struct {
	Name           string
	Model          string
	Instructions   string
	VectorStoreIds []string
}

type Message struct {
	Id        string
	Role      string
	Content   string
	CreatedAt int64
}

type Run struct {
	Id     string
	Status string
}

const (
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
	RunExpired   = "expired"
)

// FileSearchResult is one retrieved chunk from a file search tool call,
// including the chunk text when the listing requested content expansion.
type FileSearchResult struct {
	FileId  string
	Score   float64
	Content string
}

type RunStep struct {
	Id                string
	FileSearchResults []FileSearchResult
}

// Client is the surface of the external assistant/vector-store API used by
// the platform. Implementations must return ErrNotFound (possibly wrapped)
// when the target resource does not exist.
type Client interface {
	CreateAssistant(ctx context.Context, config AssistantConfig) (string, error)
	AssistantExists(ctx context.Context, assistantId string) (bool, error)
	DeleteAssistant(ctx context.Context, assistantId string) error

	CreateVectorStore(ctx context.Context, name string) (string, error)
	VectorStoreExists(ctx context.Context, vectorStoreId string) (bool, error)
	DeleteVectorStore(ctx context.Context, vectorStoreId string) error
	ListVectorStoreFiles(ctx context.Context, vectorStoreId string) ([]string, error)
	AddFileToVectorStore(ctx context.Context, vectorStoreId, fileId string) error
	RemoveFileFromVectorStore(ctx context.Context, vectorStoreId, fileId string) error

	UploadFile(ctx context.Context, filename string, data []byte) (string, error)
	FileExists(ctx context.Context, fileId string) (bool, error)
	DeleteFile(ctx context.Context, fileId string) error

	CreateThread(ctx context.Context) (string, error)
	DeleteThread(ctx context.Context, threadId string) error
	AddMessage(ctx context.Context, threadId, content string) (string, error)
	ListMessages(ctx context.Context, threadId string) ([]Message, error)

	// RunAndWait starts a run on the thread and polls until it reaches a
	// terminal state or ctx is cancelled.
	RunAndWait(ctx context.Context, threadId, assistantId, instructions string) (Run, error)

	// ListRunSteps returns the run's file search tool calls with result
	// content included.
	ListRunSteps(ctx context.Context, threadId, runId string) ([]RunStep, error)
}
