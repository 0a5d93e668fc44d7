package api

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"messhall/internal/attendance"
	"messhall/internal/auth"
	"messhall/internal/meal"
)

var errNoCode = errors.New("no qr code in submission")

type scanRequest struct {
	Payload string `json:"payload"`
}

func scanStatus(o attendance.Outcome) int {
	switch o {
	case attendance.OutcomeRecorded:
		return http.StatusCreated
	case attendance.OutcomeDuplicate:
		return http.StatusConflict
	case attendance.OutcomeNotFound:
		return http.StatusNotFound
	case attendance.OutcomeDataMismatch, attendance.OutcomeNotMealTime:
		return http.StatusUnprocessableEntity
	case attendance.OutcomeDecodeFailure:
		return http.StatusBadRequest
	case attendance.OutcomeCancelled:
		return http.StatusGone
	}
	return http.StatusInternalServerError
}

func (s *Server) respondScan(c *gin.Context, res attendance.Result, err error, started time.Time) {
	s.Metrics.ObserveScan(string(res.Outcome), string(res.CurrentMeal), time.Since(started).Seconds())
	body := gin.H{"result": res}
	if errors.Is(err, attendance.ErrHeadCountStale) {
		s.Metrics.StaleCounts.Inc()
		body["warning"] = "scan recorded; head count will be repaired by reconcile"
	} else if err != nil && res.Outcome == attendance.OutcomeStorageFailure {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(scanStatus(res.Outcome), body)
}

func (s *Server) postScan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	started := time.Now()
	res, err := s.Scanner.Scan(c.Request.Context(), []byte(req.Payload), s.Now())
	s.respondScan(c, res, err, started)
}

func (s *Server) startSession(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	sess := s.Sessions.Start(claims.Subject)
	s.Metrics.OpenedSessions.Inc()
	c.JSON(http.StatusCreated, gin.H{"session": sess})
}

func (s *Server) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.Sessions.List()})
}

func (s *Server) stopSession(c *gin.Context) {
	if !s.Sessions.Stop(c.Param("id")) {
		writeError(c, http.StatusNotFound, attendance.ErrSessionClosed)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) sessionScan(c *gin.Context) {
	sess, ok := s.Sessions.Get(c.Param("id"))
	if !ok {
		writeError(c, http.StatusNotFound, attendance.ErrSessionClosed)
		return
	}
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	started := time.Now()
	res, err := sess.Submit(c.Request.Context(), func(context.Context) ([]byte, error) {
		if req.Payload == "" {
			return nil, errNoCode
		}
		return []byte(req.Payload), nil
	})
	s.respondScan(c, res, err, started)
}

// scanFilter reads student_id, meal, from, to and limit query parameters.
func (s *Server) scanFilter(c *gin.Context) (attendance.ScanFilter, error) {
	f := attendance.ScanFilter{StudentID: c.Query("student_id")}
	if v := c.Query("meal"); v != "" {
		m, err := meal.ParseType(v)
		if err != nil {
			return f, err
		}
		f.Meal = m
	}
	for _, p := range []struct {
		name string
		dst  *string
	}{{"from", &f.FromDay}, {"to", &f.ToDay}} {
		v := c.Query(p.name)
		if v == "" {
			continue
		}
		if _, err := s.Classifier.ParseDay(v); err != nil {
			return f, fmt.Errorf("%s: %w", p.name, err)
		}
		*p.dst = v
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("limit: invalid value %q", v)
		}
		f.Limit = n
	}
	return f, nil
}

func (s *Server) listScans(c *gin.Context) {
	f, err := s.scanFilter(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	scans, err := s.Ledger.Scans(c.Request.Context(), f)
	if err != nil {
		writeError(c, storageStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scans": scans})
}

func (s *Server) exportScans(c *gin.Context) {
	f, err := s.scanFilter(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	scans, err := s.Ledger.Scans(c.Request.Context(), f)
	if err != nil {
		writeError(c, storageStatus(err), err)
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="scans-%s.csv"`, s.Classifier.Day(s.Now())))
	c.Status(http.StatusOK)
	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"id", "day", "meal_type", "student_id", "roll_no", "student_name", "mess_name", "timestamp"})
	loc := s.Classifier.Location()
	for _, rec := range scans {
		_ = w.Write([]string{
			rec.ID, rec.Day, string(rec.Meal), rec.StudentID, rec.RollNo,
			rec.StudentName, rec.MessName, rec.Timestamp.In(loc).Format(time.RFC3339),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = c.Error(err)
	}
}

func (s *Server) purgeScans(c *gin.Context) {
	f, err := s.scanFilter(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	if !f.Selective() {
		writeError(c, http.StatusBadRequest, attendance.ErrEmptyFilter)
		return
	}
	n, report, err := s.Aggregator.Purge(c.Request.Context(), f)
	s.Metrics.ObserveReconcile(len(report.Drifted), err)
	if err != nil {
		writeError(c, storageStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n, "reconcile": report})
}

func (s *Server) headCounts(c *gin.Context) {
	counts, err := s.Aggregator.HeadCounts(c.Request.Context())
	if err != nil {
		writeError(c, storageStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"head_counts": counts})
}

func (s *Server) reconcile(c *gin.Context) {
	report, err := s.Aggregator.Reconcile(c.Request.Context())
	s.Metrics.ObserveReconcile(len(report.Drifted), err)
	if err != nil {
		writeError(c, storageStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reconcile": report})
}

func (s *Server) currentMeal(c *gin.Context) {
	now := s.Now()
	windows := s.Classifier.Windows()
	out := make([]gin.H, 0, len(windows))
	for _, w := range windows {
		out = append(out, gin.H{"meal": w.Meal, "start_minute": w.Start, "end_minute": w.End, "label": w.Label()})
	}
	c.JSON(http.StatusOK, gin.H{
		"current_meal": s.Classifier.Classify(now),
		"day":          s.Classifier.Day(now),
		"timezone":     s.Classifier.Location().String(),
		"windows":      out,
	})
}
