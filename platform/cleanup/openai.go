package cleanup

import (
	"context"
	"errors"
	"log/slog"

	"fieldkit/platform/assistantapi"
)

// OpenAICleanup deletes external assistant, vector store, and file resources
// given explicit id lists. Every deletion is attempted individually; a
// failing id is recorded and the loop moves on. An already-deleted resource
// is not an error, which keeps re-running a partial deletion safe.
type OpenAICleanup struct {
	client assistantapi.Client
}

func NewOpenAICleanup(client assistantapi.Client) *OpenAICleanup {
	return &OpenAICleanup{client: client}
}

type OpenAIResult struct {
	AssistantsDeleted   int            `json:"assistants_deleted"`
	VectorStoresDeleted int            `json:"vector_stores_deleted"`
	FilesDeleted        int            `json:"files_deleted"`
	Errors              []CleanupError `json:"errors"`
}

func (c *OpenAICleanup) deleteEach(ctx context.Context, kind string, ids []string, deleteFn func(context.Context, string) error) (int, []CleanupError) {
	deleted := 0
	errs := make([]CleanupError, 0)
	for _, id := range ids {
		err := deleteFn(ctx, id)
		if errors.Is(err, assistantapi.ErrNotFound) {
			slog.Info("resource already deleted", "kind", kind, "id", id)
			continue
		}
		if err != nil {
			errs = append(errs, softError("failed to delete %s %s: %v", kind, id, err))
			continue
		}
		deleted++
	}
	return deleted, errs
}

// CleanupResources deletes assistants, then vector stores, then files. The
// three loops are independent; errors in one do not stop the others.
func (c *OpenAICleanup) CleanupResources(ctx context.Context, assistantIds, vectorStoreIds, fileIds []string) OpenAIResult {
	result := OpenAIResult{Errors: make([]CleanupError, 0)}

	deleted, errs := c.deleteEach(ctx, "assistant", assistantIds, c.client.DeleteAssistant)
	result.AssistantsDeleted = deleted
	result.Errors = append(result.Errors, errs...)

	deleted, errs = c.deleteEach(ctx, "vector store", vectorStoreIds, c.client.DeleteVectorStore)
	result.VectorStoresDeleted = deleted
	result.Errors = append(result.Errors, errs...)

	deleted, errs = c.deleteEach(ctx, "file", fileIds, c.client.DeleteFile)
	result.FilesDeleted = deleted
	result.Errors = append(result.Errors, errs...)

	return result
}

type VerificationResult struct {
	AssistantsRemaining   int `json:"assistants_remaining"`
	VectorStoresRemaining int `json:"vector_stores_remaining"`
	FilesRemaining        int `json:"files_remaining"`
}

// VerifyCleanup re-queries each id and counts how many still exist. It is a
// diagnostic; lookup failures are logged and counted as gone.
func (c *OpenAICleanup) VerifyCleanup(ctx context.Context, assistantIds, vectorStoreIds, fileIds []string) VerificationResult {
	countRemaining := func(kind string, ids []string, existsFn func(context.Context, string) (bool, error)) int {
		remaining := 0
		for _, id := range ids {
			exists, err := existsFn(ctx, id)
			if err != nil {
				slog.Error("error verifying resource deletion", "kind", kind, "id", id, "error", err)
				continue
			}
			if exists {
				remaining++
			}
		}
		return remaining
	}

	return VerificationResult{
		AssistantsRemaining:   countRemaining("assistant", assistantIds, c.client.AssistantExists),
		VectorStoresRemaining: countRemaining("vector store", vectorStoreIds, c.client.VectorStoreExists),
		FilesRemaining:        countRemaining("file", fileIds, c.client.FileExists),
	}
}
