// Package main implements the entry point for the assistant API server,
// which turns natural-language requests into structured records through
// intent classification and a durable background job queue.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
)

func main() {
	drainOnce := flag.Bool("drain-once", false,
		"process due pending jobs once and exit instead of serving")
	flag.Parse()

	app, err := newApplication(context.Background())
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.cleanup()

	if *drainOnce {
		processed, err := app.processor.ProcessPendingOnce(context.Background(), 100)
		if err != nil {
			app.logger.Error("one-shot drain failed", "error", err, "processed", processed)
			os.Exit(1)
		}
		fmt.Printf("processed %d jobs\n", processed)
		return
	}

	if err := app.run(); err != nil {
		app.logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}
