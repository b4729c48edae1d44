package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

// GetHistory returns the user's available history entries, newest
// last, optionally bounded to [from, to).
func (s *Server) GetHistory(c *gin.Context) {
	userAccountID, err := snowflake.ParseString(c.Query("user_account_id"))
	if err != nil {
		AbortWithError(c, newValidationError("user_account_id", "invalid_id", "user_account_id must be a valid id"))
		return
	}

	from, err := optionalTime(c.Query("from"))
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_time", "from must be RFC 3339"))
		return
	}
	to, err := optionalTime(c.Query("to"))
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_time", "to must be RFC 3339"))
		return
	}

	entries, err := s.history.ListAvailableEntries(c.Request.Context(), userAccountID, from, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries})
}

func optionalTime(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
