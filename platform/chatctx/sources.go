package chatctx

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"sort"
	"strconv"

	"fieldkit/platform/assistantapi"
	"fieldkit/platform/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SourceInfo struct {
	DocumentName   string    `json:"document_name"`
	DocId          uuid.UUID `json:"doc_id"`
	PageNumber     int       `json:"page_number"`
	RelevanceScore float64   `json:"relevance_score"`
}

// Page boundary markers embedded in ingested document text. Both the parse
// pipeline's <<N>> form and the plain --- Page N --- form appear in stored
// chunks.
var (
	anglePageMarker  = regexp.MustCompile(`<<(\d+)>>`)
	dashedPageMarker = regexp.MustCompile(`(?i)---\s*Page\s+(\d+)\s*---`)
)

// SourceExtractor recovers which document pages an assistant run cited by
// scanning the file search tool call traces.
type SourceExtractor struct {
	db     *gorm.DB
	client assistantapi.Client
}

func NewSourceExtractor(db *gorm.DB, client assistantapi.Client) *SourceExtractor {
	return &SourceExtractor{db: db, client: client}
}

func extractPageNumbers(text string) []int {
	pages := make(map[int]struct{})
	for _, match := range anglePageMarker.FindAllStringSubmatch(text, -1) {
		if page, err := strconv.Atoi(match[1]); err == nil {
			pages[page] = struct{}{}
		}
	}
	for _, match := range dashedPageMarker.FindAllStringSubmatch(text, -1) {
		if page, err := strconv.Atoi(match[1]); err == nil {
			pages[page] = struct{}{}
		}
	}

	sorted := make([]int, 0, len(pages))
	for page := range pages {
		sorted = append(sorted, page)
	}
	sort.Ints(sorted)
	return sorted
}

// ExtractSourcesFromRun returns the top cited (document, page) pairs for a
// completed run, ranked by relevance. Citation display is best effort: any
// failure yields an empty slice, never an error, so the chat response path
// cannot be broken by it.
func (s *SourceExtractor) ExtractSourcesFromRun(ctx context.Context, threadId, runId string) []SourceInfo {
	steps, err := s.client.ListRunSteps(ctx, threadId, runId)
	if err != nil {
		slog.Error("error listing run steps for source extraction", "thread_id", threadId, "run_id", runId, "error", err)
		return []SourceInfo{}
	}

	type docInfo struct {
		id   uuid.UUID
		name string
	}
	docCache := make(map[string]*docInfo)

	lookupDocument := func(fileId string) *docInfo {
		if cached, ok := docCache[fileId]; ok {
			return cached
		}

		var doc schema.Document
		result := s.db.First(&doc, "openai_file_id = ?", fileId)
		if result.Error != nil {
			if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
				slog.Error("error looking up document for citation", "file_id", fileId, "error", result.Error)
			}
			docCache[fileId] = nil
			return nil
		}

		info := &docInfo{id: doc.Id, name: doc.OriginalName}
		docCache[fileId] = info
		return info
	}

	sources := make([]SourceInfo, 0)
	for _, step := range steps {
		for _, result := range step.FileSearchResults {
			if result.FileId == "" {
				continue
			}

			pages := extractPageNumbers(result.Content)
			if len(pages) == 0 {
				continue
			}

			doc := lookupDocument(result.FileId)
			if doc == nil {
				continue
			}

			for _, page := range pages {
				sources = append(sources, SourceInfo{
					DocumentName:   doc.name,
					DocId:          doc.id,
					PageNumber:     page,
					RelevanceScore: result.Score,
				})
			}
		}
	}

	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].RelevanceScore > sources[j].RelevanceScore
	})

	type pageKey struct {
		docId uuid.UUID
		page  int
	}
	seen := make(map[pageKey]struct{})
	deduped := make([]SourceInfo, 0, len(sources))
	for _, source := range sources {
		key := pageKey{docId: source.DocId, page: source.PageNumber}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, source)
	}

	if len(deduped) > 5 {
		deduped = deduped[:5]
	}
	return deduped
}
