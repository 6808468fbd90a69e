package middleware

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/pg-defence-api/internal/models"
	"github.com/noah-isme/pg-defence-api/internal/service"
)

// Audit records an activity entry after requests that finish below 400. Recording
// failures are logged and never change the response.
func Audit(recorder service.ActivityRecorder, logger *zap.Logger, action, resource string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if recorder == nil || c.Writer.Status() >= 400 {
			return
		}

		var actorID *string
		if principal, ok := PrincipalFrom(c); ok {
			id := principal.IdentityID
			actorID = &id
		}
		var resourceID *string
		for _, key := range []string{"id", "studentId"} {
			if id := c.Param(key); id != "" {
				resourceID = &id
				break
			}
		}

		details, _ := json.Marshal(map[string]interface{}{
			"path":    c.FullPath(),
			"method":  c.Request.Method,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
		})

		err := recorder.Record(c.Request.Context(), &models.ActivityLog{
			ActorID:    actorID,
			Action:     action,
			Resource:   resource,
			ResourceID: resourceID,
			Details:    types.JSONText(details),
			IPAddress:  c.ClientIP(),
			UserAgent:  c.GetHeader("User-Agent"),
		})
		if err != nil {
			logger.Warn("failed to record activity", zap.String("action", action), zap.String("resource", resource), zap.Error(err))
		}
	}
}
