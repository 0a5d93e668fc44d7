package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"messhall/internal/schedule"
)

func (s *Server) scheduleBoard(c *gin.Context) {
	board, err := s.Schedule.Board(c.Request.Context())
	if err != nil {
		writeError(c, storageStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, board)
}

func (s *Server) setTiming(c *gin.Context) {
	var t schedule.Timing
	if err := c.ShouldBindJSON(&t); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	t, err := s.Schedule.SetTiming(c.Request.Context(), c.Param("day"), t)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timing": t})
}

func (s *Server) postNotice(c *gin.Context) {
	var in schedule.NoticeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	n, err := s.Schedule.Post(c.Request.Context(), in)
	if err != nil {
		writeNoticeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"notice": n})
}

func (s *Server) editNotice(c *gin.Context) {
	var in schedule.NoticeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	n, err := s.Schedule.Edit(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		writeNoticeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notice": n})
}

func (s *Server) deleteNotice(c *gin.Context) {
	if err := s.Schedule.Remove(c.Request.Context(), c.Param("id")); err != nil {
		writeNoticeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func writeNoticeError(c *gin.Context, err error) {
	var invalid *schedule.InvalidError
	switch {
	case errors.As(err, &invalid):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": invalid.Field})
	case errors.Is(err, schedule.ErrNoticeNotFound):
		writeError(c, http.StatusNotFound, err)
	default:
		writeError(c, storageStatus(err), err)
	}
}
