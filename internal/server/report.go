package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/valuation/period"
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/valuation/report"
)

// GetValuationReport runs one aggregation query over the history.
func (s *Server) GetValuationReport(c *gin.Context) {
	userAccountID, err := snowflake.ParseString(c.Query("user_account_id"))
	if err != nil {
		AbortWithError(c, newValidationError("user_account_id", "invalid_id", "user_account_id must be a valid id"))
		return
	}

	frequency, err := period.Parse(c.DefaultQuery("frequency", string(period.Daily)))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	grouping, err := report.ParseGrouping(c.DefaultQuery("grouping", string(report.GroupAccount)))
	if err != nil {
		AbortWithError(c, err)
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

	rows, err := s.reports.Query(c.Request.Context(), report.Request{
		UserAccountID: userAccountID,
		From:          from,
		To:            to,
		Grouping:      grouping,
		Frequency:     frequency,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rows})
}
