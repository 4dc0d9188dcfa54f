package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/govdir/govdir/shared"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func (s *Server) creditsHandler(w http.ResponseWriter, r *http.Request) {
	userId := getUserId(r)
	quota, err := s.db.QuotaRemaining(r.Context(), s.policy, userId, s.now())
	checkGormError(err)
	s.incr("govdir.credits", nil)

	writeJSON(w, http.StatusOK, shared.CreditsResponse{
		Remaining:   quota.Remaining,
		DailyLimit:  s.policy.DailyLimit,
		NextResetAt: s.policy.Boundary.NextAfter(quota.LastResetAt),
	})
}

func (s *Server) unlockHandler(w http.ResponseWriter, r *http.Request) {
	userId := getUserId(r)
	contactId := mux.Vars(r)["id"]

	result, err := s.db.UnlockContact(r.Context(), s.policy, userId, contactId, s.now())
	switch {
	case err == nil:
		outcome := "unlocked"
		if result.AlreadyUnlocked {
			outcome = "already_unlocked"
		}
		s.incr("govdir.unlock", []string{"outcome:" + outcome})
		writeJSON(w, http.StatusOK, shared.UnlockResponse{
			Success:         true,
			Remaining:       result.Remaining,
			AlreadyUnlocked: result.AlreadyUnlocked,
			UnlockedAt:      &result.UnlockedAt,
		})
	case errors.Is(err, shared.ErrQuotaExceeded):
		s.incr("govdir.unlock", []string{"outcome:quota_exceeded"})
		writeJSON(w, http.StatusTooManyRequests, shared.UnlockResponse{
			Success:   false,
			Remaining: 0,
			Error:     "Daily unlock limit reached",
		})
	case errors.Is(err, shared.ErrContactNotFound):
		s.incr("govdir.unlock", []string{"outcome:not_found"})
		writeJSON(w, http.StatusNotFound, shared.UnlockResponse{
			Success: false,
			Error:   "Contact not found",
		})
	case errors.Is(err, shared.ErrQuotaUnlockInconsistency):
		s.logger.WithError(err).WithFields(logrus.Fields{
			"user_id":    userId,
			"contact_id": contactId,
		}).Error("credit and unlock record diverged")
		s.incr("govdir.unlock.inconsistency", nil)
		writeJSON(w, http.StatusInternalServerError, shared.UnlockResponse{
			Success: false,
			Error:   "internal server error",
		})
	default:
		checkGormError(err)
	}
}

func (s *Server) contactsHandler(w http.ResponseWriter, r *http.Request) {
	userId := getUserId(r)
	page, ok := getPage(w, r)
	if !ok {
		return
	}
	filter := shared.ContactFilter{
		AgencyId: r.URL.Query().Get("agency_id"),
		Search:   r.URL.Query().Get("search"),
		Page:     page,
	}

	contacts, total, err := s.db.ContactsForUser(r.Context(), userId, filter)
	checkGormError(err)
	if contacts == nil {
		contacts = []shared.ContactView{}
	}
	writeJSON(w, http.StatusOK, shared.ContactsResponse{
		Contacts:   contacts,
		Pagination: shared.NewPagination(page, total),
	})
}

func (s *Server) agenciesHandler(w http.ResponseWriter, r *http.Request) {
	page, ok := getPage(w, r)
	if !ok {
		return
	}
	filter := shared.AgencyFilter{
		Search: r.URL.Query().Get("search"),
		State:  r.URL.Query().Get("state"),
		Type:   shared.AgencyType(r.URL.Query().Get("type")),
		Page:   page,
	}

	agencies, total, err := s.db.ListAgencies(r.Context(), filter)
	checkGormError(err)
	if agencies == nil {
		agencies = []*shared.Agency{}
	}
	writeJSON(w, http.StatusOK, shared.AgenciesResponse{
		Agencies:   agencies,
		Pagination: shared.NewPagination(page, total),
	})
}

func (s *Server) agencyHandler(w http.ResponseWriter, r *http.Request) {
	agency, err := s.db.AgencyByID(r.Context(), mux.Vars(r)["id"])
	checkGormError(err)
	if agency == nil {
		writeError(w, http.StatusNotFound, "Agency not found")
		return
	}
	writeJSON(w, http.StatusOK, agency)
}

func (s *Server) dashboardStatsHandler(w http.ResponseWriter, r *http.Request) {
	userId := getUserId(r)
	now := s.now()

	var stats shared.DashboardStats
	var quota *shared.UserQuota
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		stats.Contacts, err = s.db.CountContacts(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		stats.Agencies, err = s.db.CountAgencies(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		quota, err = s.db.QuotaRemaining(ctx, s.policy, userId, now)
		return err
	})
	checkGormError(g.Wait())

	// Unlocks since the last reset are the credits spent in the current period.
	used, err := s.db.CountUnlocksSince(r.Context(), userId, quota.LastResetAt)
	checkGormError(err)
	stats.Usage = shared.UsageStats{
		Count:     used,
		Total:     s.policy.DailyLimit,
		Remaining: quota.Remaining,
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) getProfileHandler(w http.ResponseWriter, r *http.Request) {
	profile, err := s.db.ProfileForUser(r.Context(), getUserId(r))
	checkGormError(err)
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) updateProfileHandler(w http.ResponseWriter, r *http.Request) {
	var update shared.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid profile: "+err.Error())
		return
	}
	profile, err := s.db.UpsertProfile(r.Context(), getUserId(r), update)
	checkGormError(err)
	writeJSON(w, http.StatusOK, profile)
}
