// Package testing switches the binaries into test mode. Tests import it for its
// side effect before touching the API or worker wiring.
package testing

import "os"

func init() {
	if _, ok := os.LookupEnv("POS_TEST_MODE"); !ok {
		_ = os.Setenv("POS_TEST_MODE", "1")
	}
}
