package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/boxpanel/internal/reboot"
)

// rebootScheduleBody is the wire form of the reboot schedule.
type rebootScheduleBody struct {
	Enabled bool  `json:"enabled"`
	Hour    int   `json:"hour"`
	Minute  int   `json:"minute"`
	Days    uint8 `json:"days"`
}

// handleGetRebootSchedule returns the stored reboot schedule.
func (s *Server) handleGetRebootSchedule(w http.ResponseWriter, r *http.Request) {
	if s.rebootRepo == nil {
		writeNotFound(w, "reboot scheduling is disabled")
		return
	}

	sched, err := s.rebootRepo.Get(r.Context())
	if errors.Is(err, reboot.ErrNoSchedule) {
		writeJSON(w, http.StatusOK, rebootScheduleBody{})
		return
	}
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, rebootScheduleBody{
		Enabled: sched.Enabled,
		Hour:    sched.Hour,
		Minute:  sched.Minute,
		Days:    uint8(sched.Days),
	})
}

// handlePutRebootSchedule replaces the reboot schedule and wakes the
// scheduler so the change applies immediately.
func (s *Server) handlePutRebootSchedule(w http.ResponseWriter, r *http.Request) {
	if s.rebootRepo == nil {
		writeNotFound(w, "reboot scheduling is disabled")
		return
	}

	var body rebootScheduleBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	sched := reboot.Schedule{
		Enabled: body.Enabled,
		Hour:    body.Hour,
		Minute:  body.Minute,
		Days:    reboot.DayMask(body.Days),
	}

	if err := s.rebootRepo.Save(r.Context(), sched); err != nil {
		if errors.Is(err, reboot.ErrInvalidSchedule) {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "schedule fields out of range")
			return
		}
		writeInternalError(w, err.Error())
		return
	}

	if s.rebootSched != nil {
		s.rebootSched.Notify()
	}

	writeJSON(w, http.StatusOK, body)
}
