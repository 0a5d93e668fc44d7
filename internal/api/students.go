package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"messhall/internal/auth"
	"messhall/internal/qrcode"
	"messhall/internal/registration"
	"messhall/internal/roster"
)

func (s *Server) signup(c *gin.Context) {
	var req registration.Signup
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	st, err := s.Registration.Register(c.Request.Context(), req)
	if err != nil {
		var verr *registration.ValidationError
		switch {
		case errors.As(err, &verr):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": verr.Message, "field": verr.Field})
		case errors.Is(err, registration.ErrEmailTaken):
			writeError(c, http.StatusConflict, err)
		default:
			writeError(c, storageStatus(err), err)
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{"student": st, "message": "registration submitted, awaiting approval"})
}

func (s *Server) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
		Role     string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}

	var (
		subject, name string
		body          = gin.H{}
	)
	switch req.Role {
	case auth.RoleAdmin:
		if err := s.Registration.AuthenticateAdmin(req.Email, req.Password); err != nil {
			writeError(c, http.StatusUnauthorized, err)
			return
		}
		subject, name = req.Email, "Admin"
	case auth.RoleStudent, "":
		req.Role = auth.RoleStudent
		st, err := s.Registration.Authenticate(c.Request.Context(), req.Email, req.Password)
		switch {
		case errors.Is(err, registration.ErrPending), errors.Is(err, registration.ErrRejected):
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error(), "status": st.Status})
			return
		case errors.Is(err, registration.ErrInvalidCredentials):
			writeError(c, http.StatusUnauthorized, err)
			return
		case err != nil:
			writeError(c, storageStatus(err), err)
			return
		}
		subject, name = st.ID, st.Name
		body["student"] = st
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown role", "field": "role"})
		return
	}

	tokens, err := s.Issuer.Issue(subject, req.Role, name)
	if err != nil {
		writeError(c, http.StatusInternalServerError, errors.New("token issue failed"))
		return
	}
	body["access_token"] = tokens.AccessToken
	body["refresh_token"] = tokens.RefreshToken
	body["expires_at"] = tokens.AccessExp.Unix()
	body["role"] = req.Role
	c.JSON(http.StatusOK, body)
}

func (s *Server) currentStudent(c *gin.Context) (roster.Student, bool) {
	claims, _ := auth.ClaimsFrom(c)
	st, err := s.Registration.Student(c.Request.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, roster.ErrNotFound) {
			writeError(c, http.StatusNotFound, err)
		} else {
			writeError(c, storageStatus(err), err)
		}
		return roster.Student{}, false
	}
	return st, true
}

func (s *Server) me(c *gin.Context) {
	st, ok := s.currentStudent(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"student": st})
}

func (s *Server) myQRCode(c *gin.Context) {
	st, ok := s.currentStudent(c)
	if !ok {
		return
	}
	cred, err := qrcode.For(st, s.Now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error(), "status": st.Status})
		return
	}
	if c.Query("format") == "json" {
		c.JSON(http.StatusOK, cred)
		return
	}
	png, err := cred.PNG(qrcode.DefaultSize)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

func (s *Server) listStudents(c *gin.Context) {
	list, err := s.Registration.Students(c.Request.Context(), roster.Status(c.Query("status")))
	if err != nil {
		var verr *registration.ValidationError
		if errors.As(err, &verr) {
			writeError(c, http.StatusBadRequest, err)
			return
		}
		writeError(c, storageStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": list})
}

func (s *Server) approveStudent(c *gin.Context) {
	s.decide(c, s.Registration.Approve)
}

func (s *Server) rejectStudent(c *gin.Context) {
	s.decide(c, s.Registration.Reject)
}

func (s *Server) decide(c *gin.Context, fn func(ctx context.Context, id string) (roster.Student, error)) {
	st, err := fn(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, roster.ErrNotFound):
		writeError(c, http.StatusNotFound, err)
	case errors.Is(err, registration.ErrInvalidTransition):
		writeError(c, http.StatusConflict, err)
	case err != nil:
		writeError(c, storageStatus(err), err)
	default:
		c.JSON(http.StatusOK, gin.H{"student": st})
	}
}
