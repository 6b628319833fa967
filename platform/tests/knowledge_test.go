package tests

import (
	"testing"

	"fieldkit/platform/schema"
)

func TestSaveAndGetKnowledge(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("abc")
	if err != nil {
		t.Fatal(err)
	}

	teamId, err := user.createTeam("spine west")
	if err != nil {
		t.Fatal(err)
	}
	portfolioId, err := user.createPortfolio(teamId, "lumbar")
	if err != nil {
		t.Fatal(err)
	}
	accountId, err := user.createAccount(teamId, "mercy general")
	if err != nil {
		t.Fatal(err)
	}

	records := []knowledgeEntry{
		{Category: schema.CategoryInventory, Title: "Rod Set", Quantity: 4},
		{Category: schema.CategoryInstruments, Title: "Driver", Content: "torque limiting"},
	}
	if err := user.saveKnowledge(teamId, &accountId, &portfolioId, records); err != nil {
		t.Fatal(err)
	}

	// Team level surgeon info lives in a different scope and must not mix
	// with the account+portfolio records.
	general := []knowledgeEntry{
		{Category: schema.CategorySurgeonInfo, Title: "Dr. Grey", Content: "prefers early starts"},
	}
	if err := user.saveKnowledge(teamId, nil, nil, general); err != nil {
		t.Fatal(err)
	}

	got, err := user.getKnowledge(teamId, &accountId, &portfolioId)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].Title != "Driver" || got[1].Title != "Rod Set" || got[1].Quantity != 4 {
		t.Fatalf("knowledge records wrong: %v", got)
	}

	got, err = user.getKnowledge(teamId, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Title != "Dr. Grey" {
		t.Fatalf("general knowledge wrong: %v", got)
	}

	// Saving a scope replaces its records entirely.
	replacement := []knowledgeEntry{
		{Category: schema.CategoryInventory, Title: "Screw Set", Quantity: 12},
	}
	if err := user.saveKnowledge(teamId, &accountId, &portfolioId, replacement); err != nil {
		t.Fatal(err)
	}

	got, err = user.getKnowledge(teamId, &accountId, &portfolioId)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Title != "Screw Set" {
		t.Fatalf("replacement did not clear old records: %v", got)
	}

	invalid := []knowledgeEntry{{Category: "nonsense", Title: "x"}}
	if err := user.saveKnowledge(teamId, &accountId, &portfolioId, invalid); err == nil {
		t.Fatal("invalid category should be rejected")
	}
}
