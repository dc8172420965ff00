// Package guard forces test mode for any binary that imports it, so cmd packages
// never open real connections while their tests run.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("STOCKFLOW_TEST_MODE") == "" {
			_ = os.Setenv("STOCKFLOW_TEST_MODE", "1")
		}
	})
}
