package queue

// Well-known topics. Each worker class owns one consumer group per topic it
// consumes, so topics can fan out to multiple classes independently.
const (
	// TopicInbound carries raw events awaiting a moderation decision.
	TopicInbound = "events:inbound"
	// TopicEmbeddings carries enrichment jobs for the embedding worker.
	TopicEmbeddings = "enrich:embeddings"
	// TopicIngest carries decided events for downstream ingestion.
	TopicIngest = "enrich:ingest"
	// TopicCleanup carries retention sweeps for the cleanup worker.
	TopicCleanup = "maintenance:cleanup"
)

// EventJob is the payload on TopicInbound.
type EventJob struct {
	EventID   string `json:"eventId"`
	ScopeID   uint64 `json:"scopeId"`
	ActorID   uint64 `json:"actorId"`
	ActorName string `json:"actorName"`
	Kind      string `json:"kind"`
	Text      string `json:"text"`
}

// EnrichmentJob is the payload on TopicEmbeddings and TopicIngest.
type EnrichmentJob struct {
	EventID string `json:"eventId"`
	ScopeID uint64 `json:"scopeId"`
	ActorID uint64 `json:"actorId"`
	Text    string `json:"text"`
}

// CleanupJob is the payload on TopicCleanup.
type CleanupJob struct {
	// RetentionDays bounds how far back events and audits are kept.
	RetentionDays int `json:"retentionDays"`
}
