// Package cloudwatch resolves which region served each cross-region
// inference call by querying Bedrock invocation logs with Logs Insights.
package cloudwatch

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	llmr "github.com/aws-samples/llmresilience"
)

// LogsAPI is the part of the CloudWatch Logs client the resolver uses.
type LogsAPI interface {
	StartQuery(ctx context.Context, in *cloudwatchlogs.StartQueryInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.StartQueryOutput, error)
	GetQueryResults(ctx context.Context, in *cloudwatchlogs.GetQueryResultsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetQueryResultsOutput, error)
}

const (
	DefaultPollInterval = 2 * time.Second
	DefaultQueryTimeout = 60 * time.Second

	// DefaultSkew widens the query window on both sides to absorb clock
	// differences between the caller and the log timestamps.
	DefaultSkew = time.Minute
)

// Resolver implements llmr.Resolver on top of Logs Insights.
type Resolver struct {
	client   LogsAPI
	logGroup string
	poll     time.Duration
	timeout  time.Duration
	skew     time.Duration
	now      func() time.Time
}

var _ llmr.Resolver = (*Resolver)(nil)

// Option configures the resolver.
type Option func(*Resolver)

// WithPollInterval sets how often query results are polled.
func WithPollInterval(d time.Duration) Option {
	return func(r *Resolver) { r.poll = d }
}

// WithQueryTimeout bounds how long one query may run.
func WithQueryTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

// WithSkew sets how far the time window is widened.
func WithSkew(d time.Duration) Option {
	return func(r *Resolver) { r.skew = d }
}

// New creates a resolver querying logGroup.
func New(client LogsAPI, logGroup string, opts ...Option) *Resolver {
	r := &Resolver{
		client:   client,
		logGroup: logGroup,
		poll:     DefaultPollInterval,
		timeout:  DefaultQueryTimeout,
		skew:     DefaultSkew,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var modelIDPattern = regexp.MustCompile(`^[\w.:\-]+$`)

// Query builds the Logs Insights query for one model and start time.
// Invocation logs carry the inference profile ARN, so the filter matches on
// its suffix.
func Query(modelID string, start time.Time) string {
	return fmt.Sprintf(`fields @timestamp, requestId, inferenceRegion
| filter modelId like /inference-profile\/%s/ and toMillis(@timestamp) >= %d
| sort @timestamp asc
| limit 10000`, regexp.QuoteMeta(modelID), start.UnixMilli())
}

// Resolve runs the query and waits for it to complete.
func (r *Resolver) Resolve(ctx context.Context, q llmr.AttributionQuery) ([]llmr.Attribution, error) {
	if !modelIDPattern.MatchString(q.ModelID) {
		return nil, fmt.Errorf("llmresilience: invalid model id %q", q.ModelID)
	}

	start := q.Start.Add(-r.skew)
	end := q.End
	if end.IsZero() {
		end = r.now()
	}
	end = end.Add(r.skew)

	started, err := r.client.StartQuery(ctx, &cloudwatchlogs.StartQueryInput{
		LogGroupName: aws.String(r.logGroup),
		StartTime:    aws.Int64(start.Unix()),
		EndTime:      aws.Int64(end.Unix()),
		QueryString:  aws.String(Query(q.ModelID, start)),
	})
	if err != nil {
		return nil, fmt.Errorf("llmresilience: start insights query: %w", err)
	}
	queryID := aws.ToString(started.QueryId)

	qctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	for {
		out, err := r.client.GetQueryResults(qctx, &cloudwatchlogs.GetQueryResultsInput{QueryId: aws.String(queryID)})
		if err != nil {
			return nil, fmt.Errorf("llmresilience: get insights results: %w", err)
		}
		switch out.Status {
		case types.QueryStatusComplete:
			return parseResults(out.Results), nil
		case types.QueryStatusFailed, types.QueryStatusCancelled, types.QueryStatusTimeout:
			return nil, fmt.Errorf("llmresilience: insights query %s: %s", queryID, out.Status)
		}

		select {
		case <-qctx.Done():
			return nil, fmt.Errorf("llmresilience: insights query %s did not complete: %w", queryID, qctx.Err())
		case <-ticker.C:
		}
	}
}

func parseResults(rows [][]types.ResultField) []llmr.Attribution {
	attrs := make([]llmr.Attribution, 0, len(rows))
	for _, row := range rows {
		var a llmr.Attribution
		for _, f := range row {
			v := aws.ToString(f.Value)
			switch aws.ToString(f.Field) {
			case "requestId":
				a.RequestID = v
			case "inferenceRegion":
				a.Label = v
			case "@timestamp":
				if ts, err := time.Parse("2006-01-02 15:04:05.000", v); err == nil {
					a.Timestamp = ts
				}
			}
		}
		if a.Label == "" {
			continue
		}
		attrs = append(attrs, a)
	}
	return attrs
}
