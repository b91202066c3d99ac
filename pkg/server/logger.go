package server

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ginLogger logs every request through logrus. Successful requests are
// logged at debug level so polling dashboards stay quiet.
func ginLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// other handler can change c.Path so:
		path := c.Request.URL.Path
		start := time.Now()
		c.Next()
		stop := time.Since(start)
		latency := int(math.Ceil(float64(stop.Nanoseconds()) / 1000000.0))
		statusCode := c.Writer.Status()
		dataLength := c.Writer.Size()
		if dataLength < 0 {
			dataLength = 0
		}

		entry := logger.WithFields(logrus.Fields{
			"statusCode": statusCode,
			"latency":    latency,
			"method":     c.Request.Method,
			"path":       path,
			"dataLength": dataLength,
		})

		if len(c.Errors) > 0 {
			entry.Error(c.Errors.ByType(gin.ErrorTypePrivate).String())
			return
		}
		msg := fmt.Sprintf("%s %s %d (%dms)", c.Request.Method, path, statusCode, latency)
		switch {
		case statusCode >= http.StatusInternalServerError:
			entry.Error(msg)
		case statusCode >= http.StatusBadRequest:
			entry.Warn(msg)
		default:
			entry.Debug(msg)
		}
	}
}
