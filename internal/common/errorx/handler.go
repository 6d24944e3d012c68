package errorx

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Respond writes err as a JSON error response. APIErrors keep their status;
// anything else becomes a 500 with an opaque message. The trace id lets a
// client report an incident without the response leaking internals.
func Respond(c *gin.Context, logger *zap.Logger, err error) {
	if err == nil {
		return
	}

	traceID := uuid.New().String()

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		apiErr = ErrInternal
	}

	if apiErr.HTTPStatus >= 500 {
		logger.Error("request failed",
			zap.String("trace_id", traceID),
			zap.String("code", apiErr.Code),
			zap.Error(err))
	} else {
		logger.Debug("request rejected",
			zap.String("trace_id", traceID),
			zap.String("code", apiErr.Code),
			zap.Error(err))
	}

	c.JSON(apiErr.HTTPStatus, gin.H{
		"error":    apiErr,
		"trace_id": traceID,
	})
}
