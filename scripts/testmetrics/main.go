// Exports test results to statsd so flaky tests can be tracked over time
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"runtime"

	"github.com/DataDog/datadog-go/statsd"
	"gotest.tools/gotestsum/testjson"
)

const defaultInput = "/tmp/testrun.json"

func main() {
	var client *statsd.Client
	if addr := os.Getenv("GOVDIR_STATSD_ADDR"); addr != "" {
		var err error
		client, err = statsd.New(addr)
		if err != nil {
			log.Fatalf("failed to init statsd: %v", err)
		}
		defer client.Close()
	} else {
		fmt.Println("Skipping exporting test stats to statsd")
	}

	path := defaultInput
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	inputFile, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open test input file: %v", err)
	}
	defer inputFile.Close()

	h, err := export(inputFile, client)
	if err != nil {
		log.Fatalf("%v", err)
	}
	fmt.Printf("passed=%d failed=%d skipped=%d\n", h.passed, h.failed, h.skipped)
	if client != nil {
		if err := client.Flush(); err != nil {
			log.Fatalf("failed to flush metrics: %v", err)
		}
		fmt.Printf("Uploaded data about %d tests to statsd\n", len(h.runs))
	}
}

// export scans the output of `go test -json` and reports every test result. client may be nil.
func export(r io.Reader, client *statsd.Client) (*eventHandler, error) {
	h := &eventHandler{client: client, runs: make(map[string]int)}
	_, err := testjson.ScanTestOutput(testjson.ScanConfig{
		Stdout:  r,
		Handler: h,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan testjson: %w", err)
	}
	for testId, count := range h.runs {
		_ = client.Distribution("govdir.test.retry_count", float64(count), []string{"test:" + testId, "os:" + runtime.GOOS}, 1.0)
	}
	return h, nil
}

type eventHandler struct {
	client                  *statsd.Client
	runs                    map[string]int
	passed, failed, skipped int
}

func (h *eventHandler) Event(event testjson.TestEvent, _ *testjson.Execution) error {
	if event.Test == "" {
		return nil
	}
	testId := event.Package + "." + event.Test
	tags := []string{"test:" + testId, "os:" + runtime.GOOS}
	switch event.Action {
	case testjson.ActionFail:
		fmt.Println("Recorded failure for " + testId)
		h.failed++
		h.runs[testId]++
		_ = h.client.Incr("govdir.test.status", append(tags, "result:failed"), 1.0)
	case testjson.ActionPass:
		h.passed++
		h.runs[testId]++
		_ = h.client.Distribution("govdir.test.runtime", event.Elapsed, tags, 1.0)
		_ = h.client.Incr("govdir.test.status", append(tags, "result:passed"), 1.0)
	case testjson.ActionSkip:
		h.skipped++
	}
	return nil
}

func (h *eventHandler) Err(text string) error {
	return fmt.Errorf("unexpected error when parsing test output: %v", text)
}
