package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTotals(t *testing.T) {
	tot := parseTotals("fallback", map[string]string{
		"runs":                 "3",
		"overall:success":      "12",
		"overall:rate_limited": "3",
		"group:A:success":      "4",
		"group:A:rate_limited": "1",
		"group:a:b:failed":     "2",
		"label:us.anthropic.claude-sonnet-4-20250514-v1:0": "7",
		"flag:fallback_used": "2",
		"garbage":            "x",
	})

	assert.Equal(t, 3, tot.Runs)
	assert.Equal(t, 12, tot.Overall.Success)
	assert.Equal(t, 3, tot.Overall.RateLimited)
	assert.Equal(t, 5, tot.Groups["A"].Total())
	assert.Equal(t, 2, tot.Groups["a:b"].Failed)
	assert.Equal(t, 7, tot.Labels["us.anthropic.claude-sonnet-4-20250514-v1:0"])
	assert.Equal(t, 2, tot.Flags["fallback_used"])
}
