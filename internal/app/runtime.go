package app

import (
	"os"
	"strconv"
)

const testModeEnv = "CONTENTIEUX_TEST_MODE"

// InTestMode reports whether binaries and routers should skip runtime side
// effects such as request logging or dialling Postgres. The flag is read on
// every call so tests can toggle it with t.Setenv; any strconv.ParseBool
// true value enables it.
func InTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(testModeEnv))
	return err == nil && on
}
