package engine

// State is the engine's scheduling state. It is single-writer: only the
// engine mutates it; workers read it to decide whether to keep claiming.
type State string

const (
	StateIdle        State = "IDLE"
	StateAnalyzing   State = "ANALYZING"
	StateTranslating State = "TRANSLATING"
	StatePaused      State = "PAUSED"
	StateQuotaPaused State = "QUOTA_PAUSED"
	StateCompleted   State = "COMPLETED"
	StateError       State = "ERROR"
)
