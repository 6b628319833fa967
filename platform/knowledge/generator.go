package knowledge

import (
	"fmt"
	"net/url"
	"strings"
)

type InventoryItem struct {
	Item     string `json:"item"`
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes"`
}

type Instrument struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageUrl    string `json:"image_url"`
}

type InfoItem struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Data is the bundle of typed knowledge records for one
// (team, account, portfolio) scope.
type Data struct {
	Inventory   []InventoryItem `json:"inventory"`
	Instruments []Instrument    `json:"instruments"`
	Technical   []InfoItem      `json:"technical"`
	AccessMisc  []InfoItem      `json:"access_misc"`
}

type AccountPortfolioParams struct {
	TeamName      string
	AccountName   string
	PortfolioName string
	Knowledge     Data
}

// RewriteImageUrl converts a stored image url into the form embedded in
// generated knowledge text. Team instrument image urls are already served
// through the image api and pass through unchanged; anything else is reduced
// to its final path segment behind the same indirection.
func RewriteImageUrl(imageUrl string) string {
	if strings.HasPrefix(imageUrl, "/api/images/team-") && strings.Contains(imageUrl, "/instruments/") {
		return imageUrl
	}
	parts := strings.Split(imageUrl, "/")
	filename := parts[len(parts)-1]
	return "/api/images/" + url.PathEscape(filename)
}

func qualifyingInventory(items []InventoryItem) []InventoryItem {
	kept := make([]InventoryItem, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.Item) != "" {
			kept = append(kept, item)
		}
	}
	return kept
}

func qualifyingInstruments(items []Instrument) []Instrument {
	kept := make([]Instrument, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.Name) != "" {
			kept = append(kept, item)
		}
	}
	return kept
}

func qualifyingInfo(items []InfoItem) []InfoItem {
	kept := make([]InfoItem, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.Title) != "" {
			kept = append(kept, item)
		}
	}
	return kept
}

func writeInfoSection(text *strings.Builder, header string, items []InfoItem) {
	if len(items) == 0 {
		return
	}
	text.WriteString(header + ":\n")
	for _, item := range items {
		text.WriteString("- " + item.Title)
		if strings.TrimSpace(item.Content) != "" {
			text.WriteString(": " + item.Content)
		}
		text.WriteString("\n")
	}
	text.WriteString("\n")
}

// AccountPortfolioText renders the knowledge bundle for an account+portfolio
// scope into one deterministic text block. Sections with no qualifying items
// are omitted entirely; a fully empty bundle yields only the header and
// footer lines.
func AccountPortfolioText(params AccountPortfolioParams) string {
	var text strings.Builder

	fmt.Fprintf(&text, "=== %s - %s - %s KNOWLEDGE ===\n\n",
		strings.ToUpper(params.TeamName), strings.ToUpper(params.AccountName), strings.ToUpper(params.PortfolioName))

	if inventory := qualifyingInventory(params.Knowledge.Inventory); len(inventory) > 0 {
		text.WriteString("INVENTORY:\n")
		for _, item := range inventory {
			fmt.Fprintf(&text, "- %s: Quantity %d", item.Item, item.Quantity)
			if strings.TrimSpace(item.Notes) != "" {
				fmt.Fprintf(&text, " (%s)", item.Notes)
			}
			text.WriteString("\n")
		}
		text.WriteString("\n")
	}

	if instruments := qualifyingInstruments(params.Knowledge.Instruments); len(instruments) > 0 {
		text.WriteString("INSTRUMENTS & TRAYS:\n")
		for _, item := range instruments {
			text.WriteString("- " + item.Name)
			if strings.TrimSpace(item.Description) != "" {
				text.WriteString(": " + item.Description)
			}
			// Transient local object urls never resolve outside the uploading
			// browser session, so they are not embedded.
			if strings.TrimSpace(item.ImageUrl) != "" && !strings.HasPrefix(item.ImageUrl, "blob:") {
				fmt.Fprintf(&text, "\n  [IMAGE: %s - %s]", item.Name, RewriteImageUrl(item.ImageUrl))
			}
			text.WriteString("\n")
		}
		text.WriteString("\n")
	}

	writeInfoSection(&text, "TECHNICAL INFORMATION", qualifyingInfo(params.Knowledge.Technical))
	writeInfoSection(&text, "ACCESS & MISCELLANEOUS", qualifyingInfo(params.Knowledge.AccessMisc))

	fmt.Fprintf(&text, "\nThis knowledge is specific to %s for %s procedures.\n", params.AccountName, params.PortfolioName)
	fmt.Fprintf(&text, "For general team information, refer to the %s general knowledge base.\n", params.TeamName)

	return text.String()
}

type GeneralParams struct {
	TeamName    string
	DoctorInfo  []InfoItem
	SurgeonInfo []InfoItem
}

// GeneralText renders the team-general knowledge block (doctor and surgeon
// info) with the same qualify-and-skip rule as AccountPortfolioText.
func GeneralText(params GeneralParams) string {
	var text strings.Builder

	fmt.Fprintf(&text, "=== %s - GENERAL TEAM KNOWLEDGE ===\n\n", strings.ToUpper(params.TeamName))

	writeInfoSection(&text, "DOCTOR INFORMATION", qualifyingInfo(params.DoctorInfo))
	writeInfoSection(&text, "SURGEON INFORMATION", qualifyingInfo(params.SurgeonInfo))

	fmt.Fprintf(&text, "\nThis is general knowledge for the %s team.\n", params.TeamName)
	text.WriteString("For account-specific information, refer to individual account knowledge bases.\n")

	return text.String()
}
