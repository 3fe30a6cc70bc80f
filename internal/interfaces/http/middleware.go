package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

const (
	// EmployeeIDHeader carries the caller's employee ID, set by the authenticating proxy
	EmployeeIDHeader = "X-Employee-ID"
	// RequestIDHeader is echoed back on every response
	RequestIDHeader = "X-Request-ID"

	principalKey = "principal"
	requestIDKey = "request_id"
)

// EmployeeLookup resolves the employee behind an authenticated request
type EmployeeLookup func(ctx context.Context, id int64) (*entity.Employee, error)

// requestIDMiddleware assigns a request ID unless the caller supplied one
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// loggingMiddleware creates a logging middleware
func loggingMiddleware(logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
			"request_id", c.GetString(requestIDKey),
		)
	}
}

// identityMiddleware loads the calling employee and stores a service.Principal on the context
func identityMiddleware(lookup EmployeeLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(EmployeeIDHeader)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{Success: false, Error: "missing " + EmployeeIDHeader + " header"})
			return
		}

		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{Success: false, Error: "invalid " + EmployeeIDHeader + " header"})
			return
		}

		employee, err := lookup(c.Request.Context(), id)
		if err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, Response{Success: false, Error: "unknown employee"})
				return
			}
			writeError(c, err)
			c.Abort()
			return
		}

		c.Set(principalKey, service.Principal{
			EmployeeID: employee.ID,
			CompanyID:  employee.CompanyID,
			Role:       employee.Role,
		})
		c.Next()
	}
}

// requireRole rejects principals holding none of roles
func requireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := principal(c)
		if !p.HasRole(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, Response{Success: false, Error: "insufficient role"})
			return
		}
		c.Next()
	}
}

// principal returns the caller set by identityMiddleware
func principal(c *gin.Context) service.Principal {
	p, _ := c.Get(principalKey)
	sp, _ := p.(service.Principal)
	return sp
}
