//go:build !race

package llmresilience_test

const raceEnabled = false
