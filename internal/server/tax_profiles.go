package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	taxprofiledomain "github.com/notahub/notahub/internal/taxprofile/domain"
)

func (s *Server) UpsertTaxProfile(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	var req taxprofiledomain.UpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.UserID = userID

	profile, err := s.taxProfileSvc.Upsert(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": profile})
}

func (s *Server) GetTaxProfile(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	profile, err := s.taxProfileSvc.GetByUser(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": profile})
}

func (s *Server) DeleteTaxProfile(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	if err := s.taxProfileSvc.Delete(c.Request.Context(), userID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ListMunicipalities(c *gin.Context) {
	state := strings.TrimSpace(c.Query("state"))
	if state == "" {
		AbortWithError(c, newValidationError("state", "invalid_state", "invalid state"))
		return
	}

	municipalities, err := s.refrepo.ListMunicipalitiesByState(c.Request.Context(), state)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": municipalities})
}

func parseUserID(c *gin.Context) (snowflake.ID, bool) {
	raw := strings.TrimSpace(c.Param("userId"))
	id, err := snowflake.ParseString(raw)
	if err != nil {
		AbortWithError(c, newValidationError("userId", "invalid_user_id", "invalid user id"))
		return 0, false
	}
	return id, true
}
