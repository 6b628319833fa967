package knowledge

import (
	"fmt"
	"strings"

	"fieldkit/platform/schema"
)

// ContextNote is a note joined with the names of its scope, ready for
// rendering into chat context or the knowledge markdown file.
type ContextNote struct {
	TeamName      string
	AccountName   string
	PortfolioName string

	Title   string
	Content string

	Images []schema.NoteImage
	// Legacy single image url, used only when Images is empty.
	ImageUrl string

	IsShared          bool
	IsPortfolioShared bool
}

const notesPreamble = "\n\nADDITIONAL NOTES FOR REFERENCE:\n"

const notesInstruction = "\n\nIMPORTANT: WHEN REFERENCING NOTES WITH IMAGES, ONLY INCLUDE THE EXACT IMAGE URL " +
	"IN YOUR RESPONSE SO THE USER CAN VIEW THE IMAGE. DO NOT EXPLAIN LINKS OR ANYTHING - JUST INCLUDE THE URL " +
	"IN THIS FORMAT AT THE END OF THE NOTE (WITHOUT A FOLLOWING PERIOD): [IMAGE URL: /api/images/filename.jpg]"

func rewriteNoteImageUrl(imageUrl string) string {
	if strings.HasPrefix(imageUrl, "/api/images/") {
		return imageUrl
	}
	return RewriteImageUrl(imageUrl)
}

func noteContextLabel(note ContextNote) string {
	if note.TeamName == "" || note.PortfolioName == "" {
		return "UNKNOWN"
	}
	if note.AccountName != "" {
		return fmt.Sprintf("%s → %s → %s", note.TeamName, note.AccountName, note.PortfolioName)
	}
	if note.IsPortfolioShared {
		return fmt.Sprintf("%s → ALL ACCOUNTS → %s", note.TeamName, note.PortfolioName)
	}
	return fmt.Sprintf("%s → %s", note.TeamName, note.PortfolioName)
}

func noteImageInfo(note ContextNote) string {
	images := note.Images
	if len(images) == 0 && note.ImageUrl != "" {
		images = []schema.NoteImage{{Url: note.ImageUrl}}
	}

	refs := make([]string, 0, len(images))
	for _, image := range images {
		if image.Url == "" {
			continue
		}
		desc := ""
		if image.Description != "" {
			desc = fmt.Sprintf(" (%s)", image.Description)
		}
		refs = append(refs, fmt.Sprintf("[IMAGE URL: %s%s]", rewriteNoteImageUrl(image.Url), desc))
	}

	if len(refs) == 0 {
		return ""
	}
	return " " + strings.Join(refs, " ")
}

// FormatNotes renders the numbered note blocks without the surrounding
// instructional boilerplate. Used directly by the knowledge markdown builder
// where the boilerplate would be redundant.
func FormatNotes(notes []ContextNote) string {
	if len(notes) == 0 {
		return ""
	}

	rendered := make([]string, 0, len(notes))
	for i, note := range notes {
		sharedLabel := ""
		if note.IsShared {
			sharedLabel = " (TEAM)"
		}
		portfolioSharedLabel := ""
		if note.IsPortfolioShared {
			portfolioSharedLabel = " (PORTFOLIO)"
		}

		rendered = append(rendered, fmt.Sprintf("NOTE %d - %s%s%s:\nTITLE: %s\nCONTENT: %s%s\n---",
			i+1, noteContextLabel(note), sharedLabel, portfolioSharedLabel,
			note.Title, note.Content, noteImageInfo(note)))
	}

	return strings.Join(rendered, "\n\n")
}

// FormatNotesForContext renders notes for inline injection into a chat
// thread, wrapped in the instruction telling the model that notes take
// priority and image urls must be echoed verbatim. Empty input renders
// nothing.
func FormatNotesForContext(notes []ContextNote) string {
	body := FormatNotes(notes)
	if body == "" {
		return ""
	}
	return notesPreamble + body + notesInstruction
}
