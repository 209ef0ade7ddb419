package app

import (
	"os"
	"strconv"
	"sync/atomic"
)

// TestModeEnv, when truthy, makes the binaries skip connecting to Postgres,
// Redis, and Kafka.
const TestModeEnv = "SITETRACK_TEST_MODE"

var testMode atomic.Pointer[bool]

func readTestMode() *bool {
	on, _ := strconv.ParseBool(os.Getenv(TestModeEnv))
	return &on
}

// InTestMode reports whether the application should skip runtime side effects.
// The environment is read on first use.
func InTestMode() bool {
	if v := testMode.Load(); v != nil {
		return *v
	}
	v := readTestMode()
	testMode.CompareAndSwap(nil, v)
	return *testMode.Load()
}

// RefreshTestMode re-reads the flag after the environment changed.
func RefreshTestMode() {
	testMode.Store(readTestMode())
}
