// Command crashview records crashes and serves the crash catalog.
package main

import "example.com/crashview/internal/recorder"

func main() {
	defer recorder.Recover()
	Execute()
}
