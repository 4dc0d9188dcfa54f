package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	pprofhttp "net/http/pprof"
	"os"
	"runtime"
	"strconv"

	"github.com/govdir/govdir/shared"
	muxtrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/gorilla/mux"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
	"gopkg.in/DataDog/dd-trace-go.v1/profiler"
)

const serviceName = "govdir-api"

func configureObservability(router *muxtrace.Router, releaseVersion string) func() {
	// Profiler
	err := profiler.Start(
		profiler.WithService(serviceName),
		profiler.WithVersion(releaseVersion),
		profiler.WithAPIKey(os.Getenv("DD_API_KEY")),
		profiler.WithUDS("/var/run/datadog/apm.socket"),
		profiler.WithProfileTypes(
			profiler.CPUProfile,
			profiler.HeapProfile,
		),
	)
	if err != nil {
		fmt.Printf("Failed to start DataDog profiler: %v\n", err)
	}
	// Tracer
	tracer.Start(
		tracer.WithRuntimeMetrics(),
		tracer.WithService(serviceName),
		tracer.WithServiceVersion(releaseVersion),
		tracer.WithUDS("/var/run/datadog/apm.socket"),
	)

	// Pprof
	router.HandleFunc("/debug/pprof/", pprofhttp.Index)
	router.HandleFunc("/debug/pprof/cmdline", pprofhttp.Cmdline)
	router.HandleFunc("/debug/pprof/profile", pprofhttp.Profile)
	router.HandleFunc("/debug/pprof/symbol", pprofhttp.Symbol)
	router.HandleFunc("/debug/pprof/trace", pprofhttp.Trace)

	// Func to stop all of the above
	return func() {
		profiler.Stop()
		tracer.Stop()
	}
}

func getRemoteAddr(r *http.Request) string {
	addr, ok := r.Header["X-Real-Ip"]
	if !ok || len(addr) == 0 {
		return r.RemoteAddr
	}
	return addr[0]
}

// getOptionalIntQueryParam returns 0 when the param is absent. ok is false if it is
// present but not an integer.
func getOptionalIntQueryParam(r *http.Request, queryParam string) (val int, ok bool) {
	s := r.URL.Query().Get(queryParam)
	if s == "" {
		return 0, true
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return val, true
}

// getPage reads the page and limit query params. It writes a 400 and returns false if
// either is malformed.
func getPage(w http.ResponseWriter, r *http.Request) (shared.Page, bool) {
	number, ok := getOptionalIntQueryParam(r, "page")
	if !ok {
		writeError(w, http.StatusBadRequest, "page must be an integer")
		return shared.Page{}, false
	}
	limit, ok := getOptionalIntQueryParam(r, "limit")
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return shared.Page{}, false
	}
	return shared.Page{Number: number, Limit: limit}.Normalize(), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(fmt.Errorf("failed to JSON marshall the response: %w", err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, shared.ErrorResponse{Error: msg})
}

func checkGormError(err error) {
	if err == nil {
		return
	}

	_, filename, line, _ := runtime.Caller(1)
	panic(fmt.Sprintf("DB error at %s:%d: %v", filename, line, err))
}
