// Package detection carries the payload contract between the detection
// layer and the queueing core. Detectors themselves (transcription models,
// classifiers, feature extraction) live outside this repository; from the
// queue's point of view they are pure producers of these result payloads.
package detection

// KeywordHit records whether a single keyword was found and how often.
type KeywordHit struct {
	Detected    bool `json:"detected"`
	Occurrences int  `json:"occurrences"`
}

// Result is the wire shape of one detection or transcription run.
type Result struct {
	JobID   string `json:"job_id"`
	Success bool   `json:"success"`

	// Transcription output.
	Text     string `json:"text,omitempty"`
	Language string `json:"language,omitempty"`

	// Keyword detection output. Transcription is the text the keywords were
	// matched against.
	DetectedKeywords map[string]KeywordHit `json:"detected_keywords,omitempty"`
	Transcription    string                `json:"transcription,omitempty"`

	DurationSeconds       float64 `json:"duration_seconds,omitempty"`
	ProcessingTimeSeconds float64 `json:"processing_time_seconds,omitempty"`

	// Error is set when Success is false.
	Error string `json:"error,omitempty"`

	// Timestamp is normally injected by the queue manager on publish.
	Timestamp string `json:"timestamp,omitempty"`
}
