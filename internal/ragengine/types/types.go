// Package types holds the data model shared across ragarena's technique,
// dispatch, evaluator, and store packages.
package types

import "time"

// Chunk is a unit of retrievable text belonging to a document.
type Chunk struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	Text       string            `json:"text"`
	Position   int               `json:"position"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// EmbeddedChunk pairs a Chunk with its dense vector representation.
type EmbeddedChunk struct {
	Chunk
	Vector []float32 `json:"vector"`
}

// RetrievedChunk is a Chunk surfaced by a technique along with the score and
// retrieval method that produced it.
type RetrievedChunk struct {
	Chunk
	Score  float64 `json:"score"`
	Method string  `json:"method"` // "vector", "lexical", "fused", "reranked"
	Rank   int     `json:"rank"`
	// SubScores carries the per-signal scores that fed into Score, e.g.
	// "vector_score", "lexical_score", keyed by signal name.
	SubScores map[string]float64 `json:"sub_scores,omitempty"`
}

// TraceEvent is one step in a technique's execution, in strictly increasing
// Sequence order starting at 0.
type TraceEvent struct {
	Sequence  int            `json:"sequence"`
	Step      string         `json:"step"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ErrorKind classifies why a technique or evaluator failed to produce a
// usable result. The zero value means no error occurred.
type ErrorKind string

const (
	ErrorKindNone             ErrorKind = ""
	ErrorKindUnknownTechnique ErrorKind = "unknown_technique"
	ErrorKindRetrievalFailed  ErrorKind = "retrieval_failed"
	ErrorKindLLMFailed        ErrorKind = "llm_failed"
	ErrorKindTimeout          ErrorKind = "timeout"
	ErrorKindCanceled         ErrorKind = "canceled"
	ErrorKindEvaluatorFailed  ErrorKind = "evaluator_failed"
	ErrorKindPersistenceFailed ErrorKind = "persistence_failed"
	ErrorKindInternalError    ErrorKind = "internal_error"
)

// TechniqueResult is the full output of running one technique against one
// query: its answer, provenance, trace, and outcome.
type TechniqueResult struct {
	TechniqueName   string           `json:"technique_name"`
	Answer          string           `json:"answer"`
	RetrievedChunks []RetrievedChunk `json:"retrieved_chunks"`
	Trace           []TraceEvent     `json:"trace"`
	ErrorKind       ErrorKind        `json:"error_kind,omitempty"`
	ErrorMessage    string           `json:"error_message,omitempty"`
	RetrievalTimeMS int64            `json:"retrieval_time_ms"`
	GenerationTimeMS int64           `json:"generation_time_ms"`
	LatencyMS       int64            `json:"total_time_ms"`
}

// QARecord is one persisted technique run within a session.
type QARecord struct {
	ID              string           `json:"id"`
	SessionID       string           `json:"session_id"`
	Query           string           `json:"query"`
	TechniqueName   string           `json:"technique_name"`
	Answer          string           `json:"answer"`
	RetrievedChunks []RetrievedChunk `json:"retrieved_chunks"`
	Trace           []TraceEvent     `json:"trace"`
	ErrorKind       ErrorKind        `json:"error_kind,omitempty"`
	ErrorMessage    string           `json:"error_message,omitempty"`
	RetrievalTimeMS int64            `json:"retrieval_time_ms"`
	GenerationTimeMS int64           `json:"generation_time_ms"`
	LatencyMS       int64            `json:"total_time_ms"`
	CreatedAt       time.Time        `json:"created_at"`
}

// EvaluationScore is the judgement recorded for a single QARecord by one
// evaluator, either the dimensional or the reference-metric one; a record
// evaluated by both gets one EvaluationScore from each.
type EvaluationScore struct {
	ID           string             `json:"id"`
	QARecordID   string             `json:"qa_record_id"`
	Relevance    *float64           `json:"relevance,omitempty"`
	Faithfulness *float64           `json:"faithfulness,omitempty"`
	Coherence    *float64           `json:"coherence,omitempty"`
	Fluency      *float64           `json:"fluency,omitempty"`
	Conciseness  *float64           `json:"conciseness,omitempty"`
	Overall      *float64           `json:"overall,omitempty"`
	Metadata     map[string]any     `json:"metadata,omitempty"`
	ErrorKind    ErrorKind          `json:"error_kind,omitempty"`
	ErrorMessage string             `json:"error_message,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

// Session groups all QARecords produced by one fan-out run.
type Session struct {
	ID              string    `json:"id"`
	Query           string    `json:"query"`
	TechniqueNames  []string  `json:"technique_names"`
	DocumentIDs     []string  `json:"document_ids,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// CloneRetrievedChunks returns a deep copy so concurrent fan-out workers
// never alias shared slices.
func CloneRetrievedChunks(src []RetrievedChunk) []RetrievedChunk {
	if src == nil {
		return nil
	}
	out := make([]RetrievedChunk, len(src))
	copy(out, src)
	for i := range out {
		if src[i].Metadata != nil {
			m := make(map[string]string, len(src[i].Metadata))
			for k, v := range src[i].Metadata {
				m[k] = v
			}
			out[i].Metadata = m
		}
		if src[i].SubScores != nil {
			s := make(map[string]float64, len(src[i].SubScores))
			for k, v := range src[i].SubScores {
				s[k] = v
			}
			out[i].SubScores = s
		}
	}
	return out
}

// CloneMetadata returns a shallow copy of a map[string]any, safe to hand to
// a goroutine that must not observe later mutation of the original.
func CloneMetadata(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
