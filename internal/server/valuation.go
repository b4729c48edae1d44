package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/valuation/service"
)

type triggerValuationRequest struct {
	UserAccountID    string   `json:"user_account_id"`
	LinkedAccountIDs []string `json:"linked_account_ids"`
}

// TriggerValuation runs the whole pipeline synchronously for one user
// account, optionally restricted to a subset of linked accounts.
func (s *Server) TriggerValuation(c *gin.Context) {
	var req triggerValuationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	userAccountID, err := snowflake.ParseString(req.UserAccountID)
	if err != nil {
		AbortWithError(c, newValidationError("user_account_id", "invalid_id", "user_account_id must be a valid id"))
		return
	}

	subset := make([]snowflake.ID, 0, len(req.LinkedAccountIDs))
	for _, raw := range req.LinkedAccountIDs {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("linked_account_ids", "invalid_id", "linked_account_ids must be valid ids"))
			return
		}
		subset = append(subset, id)
	}

	summary, err := s.valuationSvc.RunValuation(c.Request.Context(), userAccountID, service.Options{
		LinkedAccountSubset: subset,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}
