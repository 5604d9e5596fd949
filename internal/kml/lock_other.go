//go:build !unix

package kml

// lockOutput is a no-op where flock is unavailable.
func lockOutput(string) (func(), error) {
	return func() {}, nil
}
