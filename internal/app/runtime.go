package app

import (
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
)

// testModeEnv names the variable that keeps binaries from dialing Postgres and Redis.
const testModeEnv = "POS_TEST_MODE"

var (
	testMode     atomic.Bool
	testModeOnce sync.Once
)

func loadTestMode() {
	on, _ := strconv.ParseBool(os.Getenv(testModeEnv))
	testMode.Store(on)
}

// InTestMode reports whether the process runs under tests.
func InTestMode() bool {
	testModeOnce.Do(loadTestMode)
	return testMode.Load()
}

// RefreshTestMode re-reads the flag after environment changes.
func RefreshTestMode() {
	testModeOnce.Do(func() {})
	loadTestMode()
}

// SkipStartup reports whether component should return before touching any backing
// service, logging the decision.
func SkipStartup(component string) bool {
	if !InTestMode() {
		return false
	}
	slog.Default().Info("test mode detected, skipping startup", slog.String("component", component))
	return true
}
