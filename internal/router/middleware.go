package router

import (
	"net/http"

	"lasso-go/internal/handlers"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const participantSessionKey = "participantID"

// ParticipantMiddleware gives every browser session an anonymous participant
// ID and puts it in the context. Trials and results are keyed by it.
func ParticipantMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		participantID, ok := session.Get(participantSessionKey).(string)
		if !ok || uuid.Validate(participantID) != nil {
			participantID = uuid.NewString()
			session.Set(participantSessionKey, participantID)
			if err := session.Save(); err != nil {
				log.Error("Failed to save participant session", zap.Error(err))
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			log.Debug("New participant", zap.String("participant_id", participantID))
		}

		c.Set(handlers.ParticipantIDKey, participantID)
		c.Next()
	}
}
