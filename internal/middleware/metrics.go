package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"sidehustlers/internal/metrics"
)

// Metrics records every request under its route template, so path
// parameters do not create new series.
func Metrics(rec metrics.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		rec.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
