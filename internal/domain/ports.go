package domain

// TranscriptSink receives the output of a transcription producer.
type TranscriptSink interface {
	Transcript(event TranscriptEvent)
	Error(err AgentError)
}

// TermSink receives the output of a term-lookup agent.
type TermSink interface {
	Term(term TermEnrichment)
	Error(err AgentError)
}

// MetricsSink receives the output of a scoring agent.
type MetricsSink interface {
	Metrics(snapshot MetricsSnapshot)
	Error(err AgentError)
}
