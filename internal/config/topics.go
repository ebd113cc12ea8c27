package config

const (
	// TopicIngestDocument is the NSQ topic carrying accepted upload events
	// when DISPATCH_MODE=nsq.
	TopicIngestDocument = "ingest.document"

	// ChannelIngestor is the consumer channel for TopicIngestDocument.
	ChannelIngestor = "ingestor"
)
