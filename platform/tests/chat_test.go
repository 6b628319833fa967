package tests

import (
	"strings"
	"testing"
	"unicode/utf8"

	"fieldkit/platform/assistantapi"
	"fieldkit/platform/schema"
)

func setupChatScope(t *testing.T, env *testEnv) (client, string, string, string) {
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
	}
	if err := user.saveKnowledge(teamId, &accountId, &portfolioId, records); err != nil {
		t.Fatal(err)
	}

	return user, teamId, accountId, portfolioId
}

func TestChatFlow(t *testing.T) {
	env := setupTestEnv(t)
	user, teamId, accountId, portfolioId := setupChatScope(t, env)

	thread, err := user.startChat(teamId, accountId, portfolioId, "rod set questions")
	if err != nil {
		t.Fatal(err)
	}
	if thread.ThreadId == "" || thread.AssistantId == "" {
		t.Fatalf("thread info incomplete: %+v", thread)
	}

	if env.apiStub.numAssistants() != 1 {
		t.Fatal("starting a chat should create the scope's assistant")
	}

	// The knowledge file is generated and indexed before the first message.
	var portfolio schema.Portfolio
	if err := env.db.First(&portfolio, "id = ?", portfolioId).Error; err != nil {
		t.Fatal(err)
	}
	if portfolio.VectorStoreId == nil || len(env.apiStub.vectorStoreFiles(*portfolio.VectorStoreId)) == 0 {
		t.Fatal("knowledge file should be in the portfolio vector store")
	}

	res, err := user.sendMessage(teamId, thread.ThreadId, "how many rod sets do we have?")
	if err != nil {
		t.Fatal(err)
	}

	var sawReply bool
	for _, msg := range res.Messages {
		if msg.Role == "assistant" && msg.Content != "" {
			sawReply = true
		}
	}
	if !sawReply {
		t.Fatalf("expected an assistant reply: %v", res.Messages)
	}

	// A second message reuses the cached assistant.
	if _, err := user.sendMessage(teamId, thread.ThreadId, "and screw sets?"); err != nil {
		t.Fatal(err)
	}
	if env.apiStub.numAssistants() != 1 {
		t.Fatal("assistant should be cached between messages")
	}

	threads, err := user.listChats(teamId)
	if err != nil {
		t.Fatal(err)
	}
	if len(threads) != 1 || threads[0].ThreadId != thread.ThreadId {
		t.Fatalf("thread listing wrong: %v", threads)
	}

	other, err := env.newUser("xyz")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.sendMessage(teamId, thread.ThreadId, "hello"); err == nil {
		t.Fatal("other users cannot use someone else's thread")
	}
}

func TestChatCitations(t *testing.T) {
	env := setupTestEnv(t)
	user, teamId, accountId, portfolioId := setupChatScope(t, env)

	doc, err := user.uploadDocument(teamId, portfolioId, "", "rod-guide.pdf", []byte("pdf content"))
	if err != nil {
		t.Fatal(err)
	}
	var row schema.Document
	if err := env.db.First(&row, "id = ?", doc.DocumentId).Error; err != nil {
		t.Fatal(err)
	}

	thread, err := user.startChat(teamId, accountId, portfolioId, "citations")
	if err != nil {
		t.Fatal(err)
	}

	env.apiStub.setRunSteps(thread.ThreadId, []assistantapi.RunStep{{
		Id: "step-1",
		FileSearchResults: []assistantapi.FileSearchResult{
			{FileId: row.OpenAIFileId, Score: 0.9, Content: "--- Page 3 ---\nrod torque specs"},
		},
	}})

	res, err := user.sendMessage(teamId, thread.ThreadId, "what is the rod torque?")
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Citations) != 1 {
		t.Fatalf("expected 1 citation, got %v", res.Citations)
	}
	citation := res.Citations[0]
	if citation["document_name"] != "rod-guide.pdf" || citation["page_number"] != float64(3) {
		t.Fatalf("citation wrong: %v", citation)
	}
}

func TestRateMessage(t *testing.T) {
	env := setupTestEnv(t)
	user, teamId, accountId, portfolioId := setupChatScope(t, env)

	thread, err := user.startChat(teamId, accountId, portfolioId, "ratings")
	if err != nil {
		t.Fatal(err)
	}
	res, err := user.sendMessage(teamId, thread.ThreadId, "hello")
	if err != nil {
		t.Fatal(err)
	}

	messageId := res.Messages[len(res.Messages)-1].Id

	if err := user.rateMessage(teamId, thread.ThreadId, messageId, 5); err != nil {
		t.Fatal(err)
	}

	// Re-rating the same message updates in place instead of duplicating.
	if err := user.rateMessage(teamId, thread.ThreadId, messageId, 2); err != nil {
		t.Fatal(err)
	}

	var ratings []schema.MessageRating
	if err := env.db.Find(&ratings, "thread_id = ?", thread.ThreadId).Error; err != nil {
		t.Fatal(err)
	}
	if len(ratings) != 1 || ratings[0].Rating == nil || *ratings[0].Rating != 2 {
		t.Fatalf("rating upsert wrong: %v", ratings)
	}
}

func TestThreadTitleTruncatedOnRuneBoundary(t *testing.T) {
	env := setupTestEnv(t)
	user, teamId, accountId, portfolioId := setupChatScope(t, env)

	title := strings.Repeat("ü", 60)
	thread, err := user.startChat(teamId, accountId, portfolioId, title)
	if err != nil {
		t.Fatal(err)
	}

	want := strings.Repeat("ü", 50) + "..."
	if thread.Title != want {
		t.Fatalf("unexpected truncated title: %q", thread.Title)
	}
	if !utf8.ValidString(thread.Title) {
		t.Fatal("truncated title is not valid utf-8")
	}
}
