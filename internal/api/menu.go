package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"messhall/internal/auth"
	"messhall/internal/feedback"
	"messhall/internal/menu"
)

func (s *Server) weekMenu(c *gin.Context) {
	week, err := s.Menu.Week(c.Request.Context())
	if err != nil {
		writeError(c, storageStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"menu": week})
}

func (s *Server) slot(c *gin.Context) (menu.Slot, bool) {
	slot, err := menu.ParseSlot(c.Param("day"), c.Param("meal"))
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return menu.Slot{}, false
	}
	return slot, true
}

func (s *Server) replaceMenu(c *gin.Context) {
	slot, ok := s.slot(c)
	if !ok {
		return
	}
	var req struct {
		Items []menu.Item `json:"items"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	items, err := s.Menu.Replace(c.Request.Context(), slot, req.Items)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) addMenuItem(c *gin.Context) {
	slot, ok := s.slot(c)
	if !ok {
		return
	}
	var item menu.Item
	if err := c.ShouldBindJSON(&item); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	item, err := s.Menu.Add(c.Request.Context(), slot, item)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"item": item})
}

func (s *Server) removeMenuItem(c *gin.Context) {
	slot, ok := s.slot(c)
	if !ok {
		return
	}
	err := s.Menu.Remove(c.Request.Context(), slot, c.Param("id"))
	switch {
	case errors.Is(err, menu.ErrItemNotFound):
		writeError(c, http.StatusNotFound, err)
	case err != nil:
		writeError(c, storageStatus(err), err)
	default:
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) submitFeedback(c *gin.Context) {
	var req struct {
		Category string `json:"category" binding:"required"`
		Message  string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	claims, _ := auth.ClaimsFrom(c)
	e, err := s.Feedback.Submit(c.Request.Context(), claims.Subject, claims.Name, req.Category, req.Message)
	switch {
	case errors.Is(err, feedback.ErrUnknownCategory), errors.Is(err, feedback.ErrEmptyMessage):
		writeError(c, http.StatusBadRequest, err)
	case err != nil:
		writeError(c, storageStatus(err), err)
	default:
		c.JSON(http.StatusCreated, gin.H{"feedback": e})
	}
}

func (s *Server) listFeedback(c *gin.Context) {
	status := feedback.Status(c.Query("status"))
	if status != "" && status != feedback.StatusPending && status != feedback.StatusResolved {
		writeError(c, http.StatusBadRequest, errors.New("unknown status"))
		return
	}
	list, err := s.Feedback.List(c.Request.Context(), status)
	if err != nil {
		writeError(c, storageStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"feedback": list})
}

func (s *Server) toggleFeedback(c *gin.Context) {
	e, err := s.Feedback.Toggle(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, feedback.ErrNotFound):
		writeError(c, http.StatusNotFound, err)
	case err != nil:
		writeError(c, storageStatus(err), err)
	default:
		c.JSON(http.StatusOK, gin.H{"feedback": e})
	}
}
