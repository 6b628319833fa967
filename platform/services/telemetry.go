package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	chatMessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldkit_chat_messages_sent_total",
		Help: "Number of chat messages sent to the assistant api.",
	})

	chatResponseSeconds = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "fieldkit_chat_response_seconds",
		Help: "Latency of assistant runs, from message send to terminal status.",
	})

	knowledgeRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldkit_knowledge_refreshes_total",
		Help: "Number of knowledge file regenerations triggered by staleness checks.",
	})

	teamDeletions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldkit_team_deletions_total",
		Help: "Number of team deletions by outcome.",
	}, []string{"outcome"})

	documentUploads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldkit_document_uploads_total",
		Help: "Number of document uploads accepted.",
	})
)
