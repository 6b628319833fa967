package tests

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"fieldkit/platform/assistantapi"
)

// apiStub is an in-memory stand-in for the external assistant api. It is
// safe for concurrent use since deletion fans out across goroutines.
type apiStub struct {
	mu      sync.Mutex
	counter int

	assistants   map[string]assistantapi.AssistantConfig
	vectorStores map[string]map[string]bool
	files        map[string][]byte
	threads      map[string][]assistantapi.Message
	runSteps     map[string][]assistantapi.RunStep
}

func newApiStub() *apiStub {
	return &apiStub{
		assistants:   make(map[string]assistantapi.AssistantConfig),
		vectorStores: make(map[string]map[string]bool),
		files:        make(map[string][]byte),
		threads:      make(map[string][]assistantapi.Message),
		runSteps:     make(map[string][]assistantapi.RunStep),
	}
}

func (s *apiStub) nextId(prefix string) string {
	s.counter++
	return fmt.Sprintf("%v-%d", prefix, s.counter)
}

func (s *apiStub) CreateAssistant(ctx context.Context, config assistantapi.AssistantConfig) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextId("asst")
	s.assistants[id] = config
	return id, nil
}

func (s *apiStub) AssistantExists(ctx context.Context, assistantId string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.assistants[assistantId]
	return ok, nil
}

func (s *apiStub) DeleteAssistant(ctx context.Context, assistantId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assistants[assistantId]; !ok {
		return fmt.Errorf("assistant %v: %w", assistantId, assistantapi.ErrNotFound)
	}
	delete(s.assistants, assistantId)
	return nil
}

func (s *apiStub) CreateVectorStore(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextId("vs")
	s.vectorStores[id] = make(map[string]bool)
	return id, nil
}

func (s *apiStub) VectorStoreExists(ctx context.Context, vectorStoreId string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.vectorStores[vectorStoreId]
	return ok, nil
}

func (s *apiStub) DeleteVectorStore(ctx context.Context, vectorStoreId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vectorStores[vectorStoreId]; !ok {
		return fmt.Errorf("vector store %v: %w", vectorStoreId, assistantapi.ErrNotFound)
	}
	delete(s.vectorStores, vectorStoreId)
	return nil
}

func (s *apiStub) ListVectorStoreFiles(ctx context.Context, vectorStoreId string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	store, ok := s.vectorStores[vectorStoreId]
	if !ok {
		return nil, fmt.Errorf("vector store %v: %w", vectorStoreId, assistantapi.ErrNotFound)
	}
	fileIds := make([]string, 0, len(store))
	for fileId := range store {
		fileIds = append(fileIds, fileId)
	}
	sort.Strings(fileIds)
	return fileIds, nil
}

func (s *apiStub) AddFileToVectorStore(ctx context.Context, vectorStoreId, fileId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	store, ok := s.vectorStores[vectorStoreId]
	if !ok {
		return fmt.Errorf("vector store %v: %w", vectorStoreId, assistantapi.ErrNotFound)
	}
	if _, ok := s.files[fileId]; !ok {
		return fmt.Errorf("file %v: %w", fileId, assistantapi.ErrNotFound)
	}
	store[fileId] = true
	return nil
}

func (s *apiStub) RemoveFileFromVectorStore(ctx context.Context, vectorStoreId, fileId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	store, ok := s.vectorStores[vectorStoreId]
	if !ok {
		return fmt.Errorf("vector store %v: %w", vectorStoreId, assistantapi.ErrNotFound)
	}
	if !store[fileId] {
		return fmt.Errorf("file %v in vector store %v: %w", fileId, vectorStoreId, assistantapi.ErrNotFound)
	}
	delete(store, fileId)
	return nil
}

func (s *apiStub) UploadFile(ctx context.Context, filename string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextId("file")
	s.files[id] = data
	return id, nil
}

func (s *apiStub) FileExists(ctx context.Context, fileId string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[fileId]
	return ok, nil
}

func (s *apiStub) DeleteFile(ctx context.Context, fileId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[fileId]; !ok {
		return fmt.Errorf("file %v: %w", fileId, assistantapi.ErrNotFound)
	}
	delete(s.files, fileId)
	return nil
}

func (s *apiStub) CreateThread(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextId("thread")
	s.threads[id] = []assistantapi.Message{}
	return id, nil
}

func (s *apiStub) DeleteThread(ctx context.Context, threadId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[threadId]; !ok {
		return fmt.Errorf("thread %v: %w", threadId, assistantapi.ErrNotFound)
	}
	delete(s.threads, threadId)
	return nil
}

func (s *apiStub) AddMessage(ctx context.Context, threadId, content string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[threadId]; !ok {
		return "", fmt.Errorf("thread %v: %w", threadId, assistantapi.ErrNotFound)
	}
	id := s.nextId("msg")
	s.threads[threadId] = append(s.threads[threadId], assistantapi.Message{
		Id: id, Role: "user", Content: content,
	})
	return id, nil
}

func (s *apiStub) ListMessages(ctx context.Context, threadId string) ([]assistantapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	messages, ok := s.threads[threadId]
	if !ok {
		return nil, fmt.Errorf("thread %v: %w", threadId, assistantapi.ErrNotFound)
	}
	out := make([]assistantapi.Message, len(messages))
	copy(out, messages)
	return out, nil
}

func (s *apiStub) RunAndWait(ctx context.Context, threadId, assistantId, instructions string) (assistantapi.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[threadId]; !ok {
		return assistantapi.Run{}, fmt.Errorf("thread %v: %w", threadId, assistantapi.ErrNotFound)
	}
	if _, ok := s.assistants[assistantId]; !ok {
		return assistantapi.Run{}, fmt.Errorf("assistant %v: %w", assistantId, assistantapi.ErrNotFound)
	}
	runId := s.nextId("run")
	s.threads[threadId] = append(s.threads[threadId], assistantapi.Message{
		Id: s.nextId("msg"), Role: "assistant", Content: "Here is what I found in the portfolio documents.",
	})
	return assistantapi.Run{Id: runId, Status: assistantapi.RunCompleted}, nil
}

func (s *apiStub) ListRunSteps(ctx context.Context, threadId, runId string) ([]assistantapi.RunStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runSteps[threadId], nil
}

func (s *apiStub) setRunSteps(threadId string, steps []assistantapi.RunStep) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runSteps[threadId] = steps
}

func (s *apiStub) numAssistants() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.assistants)
}

func (s *apiStub) numVectorStores() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.vectorStores)
}

func (s *apiStub) numFiles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

func (s *apiStub) vectorStoreFiles(vectorStoreId string) []string {
	fileIds, err := s.ListVectorStoreFiles(context.Background(), vectorStoreId)
	if err != nil {
		return nil
	}
	return fileIds
}
