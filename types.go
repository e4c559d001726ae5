package llmresilience

import "time"

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage represents token usage information.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// RequestDescriptor describes one inference call to issue. It is built before
// dispatch and never mutated afterwards.
type RequestDescriptor struct {
	ID        string
	Group     string
	Seq       int
	Model     string
	Prompt    string
	MaxTokens int
	APIKey    string
}

// Messages returns the single user message carried by the descriptor.
func (d RequestDescriptor) Messages() []Message {
	return []Message{{Role: "user", Content: d.Prompt}}
}

// Status classifies how a dispatched call resolved.
type Status string

const (
	StatusSuccess     Status = "success"
	StatusFailed      Status = "failed"
	StatusRateLimited Status = "rate_limited"
)

func (s Status) String() string { return string(s) }

// Outcome is the record produced exactly once per dispatched RequestDescriptor.
type Outcome struct {
	RequestID string
	Group     string
	Seq       int
	Status    Status

	StartedAt time.Time
	Duration  time.Duration

	// Label is the attributed model id or region. Empty until known.
	Label string

	// BackendRequestID is the id the backend assigned to the call, used to
	// join attribution records after the fact.
	BackendRequestID string

	Usage Usage
	Err   error
}

// Attributed reports whether the outcome carries a label.
func (o Outcome) Attributed() bool { return o.Label != "" }

// ErrorDetail returns the error message, or "" for successful calls.
func (o Outcome) ErrorDetail() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// WithLabel returns a copy of the outcome carrying the given label.
func (o Outcome) WithLabel(label string) Outcome {
	o.Label = label
	return o
}

// IntPtr returns a pointer to the given int.
func IntPtr(v int) *int { return &v }
