// Package testing switches the process into test mode when imported, so
// binaries and routers skip runtime side effects such as request logging.
// Test files import it for its side effect only.
package testing

import (
	"os"
	"sync"
)

var once sync.Once

// Enable sets CONTENTIEUX_TEST_MODE and points optional collaborators at
// unreachable addresses.
func Enable() {
	once.Do(func() {
		_ = os.Setenv("CONTENTIEUX_TEST_MODE", "1")
		if os.Getenv("GOTENBERG_URL") == "" {
			_ = os.Setenv("GOTENBERG_URL", "http://127.0.0.1:0")
		}
	})
}

func init() {
	Enable()
}
