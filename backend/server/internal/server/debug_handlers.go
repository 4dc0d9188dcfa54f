package server

import (
	"fmt"
	"net/http"

	"github.com/govdir/govdir/shared"
	"github.com/rodaine/table"
)

func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		panic(fmt.Errorf("failed to ping DB: %w", err))
	}
	if s.isProductionEnvironment {
		agencyCount, err := s.db.CountAgencies(r.Context())
		checkGormError(err)
		if agencyCount == 0 {
			panic("Suspiciously empty directory!")
		}
	}
	w.Write([]byte("OK"))
}

func (s *Server) dailyResetHandler(w http.ResponseWriter, r *http.Request) {
	ranAt, n, err := s.runCronOnce(r.Context())
	if err != nil {
		panic(err)
	}
	writeJSON(w, http.StatusOK, shared.DailyResetResponse{
		UsersReset: n,
		ResetDate:  ranAt,
	})
}

func (s *Server) usageStatsHandler(w http.ResponseWriter, r *http.Request) {
	usage, err := s.db.UsageReport(r.Context())
	if err != nil {
		panic(fmt.Errorf("db.UsageReport: %w", err))
	}

	tbl := table.New("User", "Remaining", "Last Reset", "Total Unlocks")
	tbl.WithWriter(w)
	for _, u := range usage {
		tbl.AddRow(u.UserId, u.Remaining, u.LastResetAt.UTC().Format("2006-01-02 15:04"), u.TotalUnlocks)
	}
	tbl.Print()
}

func (s *Server) getNumConnectionsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.Stats()
	if err != nil {
		panic(err)
	}

	_, _ = fmt.Fprintf(w, "%#v", stats.OpenConnections)
}
