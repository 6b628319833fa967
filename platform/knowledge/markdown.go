package knowledge

import (
	"fmt"
	"strings"
	"time"
)

// MarkdownFilename is deterministic from the team and portfolio names so a
// regenerated file replaces its predecessor in the vector store.
func MarkdownFilename(teamName, portfolioName string) string {
	return fmt.Sprintf("team-%s-portfolio-%s-knowledge.md", teamName, portfolioName)
}

type MarkdownParams struct {
	TeamName      string
	AccountName   string
	PortfolioName string

	// KnowledgeText is the generated knowledge block, empty when the scope
	// has no qualifying records.
	KnowledgeText string
	// NotesBody is the rendered note list without instructional boilerplate.
	NotesBody string

	GeneratedAt time.Time
}

// BuildMarkdown assembles the knowledge file content. Sections are included
// only when they have content; the title, subtitle, and trailing timestamp
// line are always present.
func BuildMarkdown(params MarkdownParams) string {
	var md strings.Builder

	fmt.Fprintf(&md, "# %s - %s Knowledge Base\n\n", params.TeamName, params.PortfolioName)
	fmt.Fprintf(&md, "*Generated for %s - %s portfolio*\n\n", params.AccountName, params.PortfolioName)
	md.WriteString("---\n\n")

	if strings.TrimSpace(params.KnowledgeText) != "" {
		md.WriteString("## Team Knowledge\n\n")
		md.WriteString(params.KnowledgeText)
		md.WriteString("\n\n---\n\n")
	}

	if params.NotesBody != "" {
		md.WriteString("## Additional Notes\n\n")
		md.WriteString(params.NotesBody)
		md.WriteString("\n\n---\n\n")
	}

	fmt.Fprintf(&md, "*Last updated: %s*\n", params.GeneratedAt.UTC().Format(time.RFC3339))

	return md.String()
}
