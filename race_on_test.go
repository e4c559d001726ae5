//go:build race

package llmresilience_test

// vova616/xxhash reads input through unsafe pointer arithmetic that the race
// detector's checkptr instrumentation rejects, so tests hashing with it are
// skipped under -race.
const raceEnabled = true
