// Command watch-service runs saved-search watches over a listing catalog.
//
// Users save criteria ("watches") over catalog listings; each run reports
// only the listings the watch has never shown before. Runs are triggered by
// the owner, by the daily scheduler, or on demand via POST /runs.
// New matches are published to Redis as EVENT_WATCH_MATCHED.
package main

import (
	"context"
	"fmt"
	"os"
)

const version = "1.0.0"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "[watch-service] %v\n", err)
		os.Exit(1)
	}
}
