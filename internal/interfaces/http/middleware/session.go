package middleware

import (
	"net/http"

	"github.com/erp/receiving/internal/infrastructure/logger"
	"github.com/erp/receiving/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Request headers identifying the caller
const (
	HeaderRequestID = "X-Request-ID"
	HeaderTenantID  = "X-Tenant-ID"
	HeaderDeviceID  = "X-Device-ID"
)

// Gin context keys
const (
	requestIDKey = "request_id"
	TenantIDKey  = "tenant_id"
	DeviceIDKey  = "device_id"
)

const (
	// MaxRequestIDLength bounds client-supplied request IDs
	MaxRequestIDLength = 128
	// MaxDeviceIDLength bounds device identifiers
	MaxDeviceIDLength = 64
)

// SessionContext requires X-Tenant-ID (a UUID) and X-Device-ID on every
// request of the group and stores both in the gin and request contexts
func SessionContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantHeader := c.GetHeader(HeaderTenantID)
		if tenantHeader == "" {
			abortSession(c, "X-Tenant-ID header is required")
			return
		}
		tenantID, err := uuid.Parse(tenantHeader)
		if err != nil || tenantID == uuid.Nil {
			abortSession(c, "X-Tenant-ID must be a UUID")
			return
		}

		deviceID := c.GetHeader(HeaderDeviceID)
		if deviceID == "" {
			abortSession(c, "X-Device-ID header is required")
			return
		}
		if len(deviceID) > MaxDeviceIDLength {
			abortSession(c, "X-Device-ID is too long")
			return
		}

		c.Set(TenantIDKey, tenantID)
		c.Set(DeviceIDKey, deviceID)
		annotateSpan(c, tenantID.String(), deviceID)

		ctx := logger.WithTenantID(c.Request.Context(), tenantID.String())
		ctx = logger.WithDeviceID(ctx, deviceID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func abortSession(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest,
		dto.NewErrorResponseWithRequestID(dto.ErrCodeSessionRequired, message, GetRequestID(c)))
}

// GetTenantID returns the tenant set by SessionContext
func GetTenantID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(TenantIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// GetDeviceID returns the device set by SessionContext
func GetDeviceID(c *gin.Context) string {
	return c.GetString(DeviceIDKey)
}

// GetRequestID returns the request ID set by RequestID
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
