package knowledge_test

import (
	"strings"
	"testing"

	"fieldkit/platform/knowledge"
)

func TestAccountPortfolioTextDeterminism(t *testing.T) {
	params := knowledge.AccountPortfolioParams{
		TeamName:      "Acme",
		AccountName:   "Mercy West",
		PortfolioName: "Spine",
		Knowledge: knowledge.Data{
			Inventory: []knowledge.InventoryItem{
				{Item: "Rod Set", Quantity: 4, Notes: "sterile"},
				{Item: "Screw Caddy", Quantity: 2},
			},
			Instruments: []knowledge.Instrument{
				{Name: "Mallet", Description: "Standard"},
			},
			Technical: []knowledge.InfoItem{
				{Title: "Setup", Content: "Table rotated 90 degrees"},
			},
		},
	}

	first := knowledge.AccountPortfolioText(params)
	second := knowledge.AccountPortfolioText(params)
	if first != second {
		t.Fatal("expected identical output for identical input")
	}

	if !strings.HasPrefix(first, "=== ACME - MERCY WEST - SPINE KNOWLEDGE ===\n\n") {
		t.Fatalf("unexpected header: %q", first[:60])
	}
	if !strings.Contains(first, "- Rod Set: Quantity 4 (sterile)\n") {
		t.Fatal("missing inventory entry with notes")
	}
	if !strings.Contains(first, "- Screw Caddy: Quantity 2\n") {
		t.Fatal("missing inventory entry without notes")
	}
	if !strings.Contains(first, "TECHNICAL INFORMATION:\n- Setup: Table rotated 90 degrees\n") {
		t.Fatal("missing technical section")
	}
	if strings.Contains(first, "ACCESS & MISCELLANEOUS") {
		t.Fatal("empty access section should be omitted")
	}
	if !strings.Contains(first, "This knowledge is specific to Mercy West for Spine procedures.\n") {
		t.Fatal("missing footer")
	}
}

func TestAccountPortfolioTextOmitsUnqualifiedSections(t *testing.T) {
	params := knowledge.AccountPortfolioParams{
		TeamName:      "Acme",
		AccountName:   "Mercy West",
		PortfolioName: "Spine",
		Knowledge: knowledge.Data{
			Inventory:   []knowledge.InventoryItem{{Item: "  "}},
			Instruments: []knowledge.Instrument{{Name: ""}},
		},
	}

	text := knowledge.AccountPortfolioText(params)
	if strings.Contains(text, "INVENTORY:") {
		t.Fatal("inventory section should be omitted when all items are blank")
	}
	if strings.Contains(text, "INSTRUMENTS & TRAYS:") {
		t.Fatal("instruments section should be omitted when all items are blank")
	}
}

func TestAccountPortfolioTextEmptyInput(t *testing.T) {
	text := knowledge.AccountPortfolioText(knowledge.AccountPortfolioParams{
		TeamName: "Acme", AccountName: "Mercy West", PortfolioName: "Spine",
	})

	expected := "=== ACME - MERCY WEST - SPINE KNOWLEDGE ===\n\n" +
		"\nThis knowledge is specific to Mercy West for Spine procedures.\n" +
		"For general team information, refer to the Acme general knowledge base.\n"
	if text != expected {
		t.Fatalf("unexpected empty-input output: %q", text)
	}
}

func TestInstrumentImageHandling(t *testing.T) {
	params := knowledge.AccountPortfolioParams{
		TeamName: "Acme", AccountName: "A", PortfolioName: "P",
		Knowledge: knowledge.Data{
			Instruments: []knowledge.Instrument{
				{Name: "Drill", ImageUrl: "/api/images/team-acme/instruments/drill.png"},
				{Name: "Clamp", ImageUrl: "https://cdn.example.com/uploads/clamp.png"},
				{Name: "Probe", ImageUrl: "blob:https://app.example.com/1234"},
			},
		},
	}

	text := knowledge.AccountPortfolioText(params)

	if !strings.Contains(text, "[IMAGE: Drill - /api/images/team-acme/instruments/drill.png]") {
		t.Fatal("team image url should pass through unchanged")
	}
	if !strings.Contains(text, "[IMAGE: Clamp - /api/images/clamp.png]") {
		t.Fatal("external url should be rewritten to the image api")
	}
	if strings.Contains(text, "Probe - ") {
		t.Fatal("blob urls should be skipped")
	}
}

func TestGeneralText(t *testing.T) {
	text := knowledge.GeneralText(knowledge.GeneralParams{
		TeamName:    "Acme",
		DoctorInfo:  []knowledge.InfoItem{{Title: "Dr. Grey", Content: "Prefers early starts"}},
		SurgeonInfo: []knowledge.InfoItem{{Title: "  "}},
	})

	if !strings.HasPrefix(text, "=== ACME - GENERAL TEAM KNOWLEDGE ===\n\n") {
		t.Fatal("unexpected header")
	}
	if !strings.Contains(text, "DOCTOR INFORMATION:\n- Dr. Grey: Prefers early starts\n") {
		t.Fatal("missing doctor info")
	}
	if strings.Contains(text, "SURGEON INFORMATION") {
		t.Fatal("surgeon section should be omitted when all items are blank")
	}
	if !strings.Contains(text, "This is general knowledge for the Acme team.\n") {
		t.Fatal("missing footer")
	}
}
