package llmresilience

import "context"

// Backend is the interface that inference backend adapters must implement.
type Backend interface {
	// Name returns the backend identifier (e.g. "litellm", "bedrock").
	Name() string

	// Invoke performs a single synchronous completion. Implementations must
	// return an error wrapping ErrRateLimited when the backend signals
	// capacity exhaustion.
	Invoke(ctx context.Context, req BackendRequest) (BackendResponse, error)
}

// BackendRequest is the request sent to a backend adapter.
type BackendRequest struct {
	APIKey    string
	Model     string
	Messages  []Message
	MaxTokens *int
}

// BackendResponse is the response from a backend adapter.
type BackendResponse struct {
	ID        string
	RequestID string
	Content   string
	Model     string
	Usage     Usage
}

// CallResult is what a CallFunc reports for a successful call.
type CallResult struct {
	Label            string
	BackendRequestID string
	Usage            Usage
}

// CallFunc issues the call for one descriptor.
type CallFunc func(ctx context.Context, req RequestDescriptor) (CallResult, error)

// LabelFunc derives the attribution label from a backend response.
type LabelFunc func(resp BackendResponse) string

// LabelByModel labels a call with the model that served it.
func LabelByModel(resp BackendResponse) string { return resp.Model }

// CallBackend adapts a Backend into a CallFunc. A nil label func leaves the
// outcome unattributed so it can be labelled later by a resolver.
func CallBackend(b Backend, label LabelFunc) CallFunc {
	return func(ctx context.Context, req RequestDescriptor) (CallResult, error) {
		breq := BackendRequest{
			APIKey:   req.APIKey,
			Model:    req.Model,
			Messages: req.Messages(),
		}
		if req.MaxTokens > 0 {
			breq.MaxTokens = IntPtr(req.MaxTokens)
		}

		resp, err := b.Invoke(ctx, breq)
		if err != nil {
			return CallResult{}, err
		}

		res := CallResult{BackendRequestID: resp.RequestID, Usage: resp.Usage}
		if label != nil {
			res.Label = label(resp)
		}
		return res, nil
	}
}

// BackendSet routes each descriptor to the backend registered for its group.
// It is how account sharding binds one credential context per target.
type BackendSet map[string]Backend

// Call returns a CallFunc dispatching on RequestDescriptor.Group.
func (s BackendSet) Call(label LabelFunc) CallFunc {
	calls := make(map[string]CallFunc, len(s))
	for group, b := range s {
		calls[group] = CallBackend(b, label)
	}
	return func(ctx context.Context, req RequestDescriptor) (CallResult, error) {
		call, ok := calls[req.Group]
		if !ok {
			return CallResult{}, ErrInvalidGroup
		}
		return call(ctx, req)
	}
}
