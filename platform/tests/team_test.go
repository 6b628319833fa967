package tests

import (
	"testing"

	"fieldkit/platform/schema"
)

func TestTeamCreationAndInvitations(t *testing.T) {
	env := setupTestEnv(t)

	alice, err := env.newUser("alice")
	if err != nil {
		t.Fatal(err)
	}

	teamId, err := alice.createTeam("spine west")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := alice.createTeam("spine west"); err == nil {
		t.Fatal("duplicate team name should be rejected")
	}

	members, err := alice.listMembers(teamId)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 1 || members[0]["role"] != schema.RoleManager {
		t.Fatalf("creator should be the team's manager: %v", members)
	}

	token, err := alice.createInvitation(teamId, "bob@mail.com", "")
	if err != nil {
		t.Fatal(err)
	}

	bob, err := env.newUser("bob")
	if err != nil {
		t.Fatal(err)
	}

	carol, err := env.newUser("carol")
	if err != nil {
		t.Fatal(err)
	}
	if err := carol.acceptInvitation(token); err == nil {
		t.Fatal("invitation issued for a different email should be rejected")
	}

	if err := bob.acceptInvitation(token); err != nil {
		t.Fatal(err)
	}
	if err := bob.acceptInvitation(token); err == nil {
		t.Fatal("invitation cannot be accepted twice")
	}

	members, err = alice.listMembers(teamId)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}

	if _, err := bob.createInvitation(teamId, "dan@mail.com", ""); err == nil {
		t.Fatal("regular members cannot invite")
	}

	teams, err := bob.listTeams()
	if err != nil {
		t.Fatal(err)
	}
	if len(teams) != 1 || teams[0]["name"] != "spine west" {
		t.Fatalf("team listing wrong: %v", teams)
	}
}

func TestTeamDeletionEndpoint(t *testing.T) {
	env := setupTestEnv(t)

	alice, err := env.newUser("alice")
	if err != nil {
		t.Fatal(err)
	}

	teamId, err := alice.createTeam("spine west")
	if err != nil {
		t.Fatal(err)
	}

	portfolioId, err := alice.createPortfolio(teamId, "lumbar")
	if err != nil {
		t.Fatal(err)
	}

	accountId, err := alice.createAccount(teamId, "mercy general")
	if err != nil {
		t.Fatal(err)
	}
	if err := alice.assignPortfolios(teamId, accountId, []string{portfolioId}); err != nil {
		t.Fatal(err)
	}

	doc, err := alice.uploadDocument(teamId, portfolioId, "", "guide.pdf", []byte("pdf content"))
	if err != nil {
		t.Fatal(err)
	}
	if doc.Status != "ready" {
		t.Fatalf("expected document to be ready, got %v", doc.Status)
	}

	if _, err := alice.createNote(teamId, portfolioId, "setup", "arrive early"); err != nil {
		t.Fatal(err)
	}

	// A member who did not create the team cannot delete it.
	token, err := alice.createInvitation(teamId, "bob@mail.com", schema.RoleManager)
	if err != nil {
		t.Fatal(err)
	}
	bob, err := env.newUser("bob")
	if err != nil {
		t.Fatal(err)
	}
	if err := bob.acceptInvitation(token); err != nil {
		t.Fatal(err)
	}
	if _, err := bob.deleteTeam(teamId, "spine west", true); err == nil {
		t.Fatal("only the creator can delete the team")
	}

	if _, err := alice.deleteTeam(teamId, "wrong name", true); err == nil {
		t.Fatal("confirmation name must match")
	}

	report, err := alice.deleteTeam(teamId, "spine west", true)
	if err != nil {
		t.Fatal(err)
	}

	if !report.Success || report.PartialCleanup {
		t.Fatalf("deletion should succeed cleanly: %+v", report)
	}
	if report.DeletedResources.VectorStores != 1 || report.DeletedResources.Files != 1 || report.DeletedResources.StorageFiles != 1 {
		t.Fatalf("deleted resource counts wrong: %+v", report.DeletedResources)
	}

	if env.apiStub.numVectorStores() != 0 || env.apiStub.numFiles() != 0 || env.apiStub.numAssistants() != 0 {
		t.Fatal("external resources should be cleaned up")
	}

	teams, err := alice.listTeams()
	if err != nil {
		t.Fatal(err)
	}
	if len(teams) != 0 {
		t.Fatal("team should be gone")
	}

	if _, err := alice.deleteTeam(teamId, "spine west", true); err == nil {
		t.Fatal("deleting a deleted team should report not found")
	}
}
