package middleware

import (
	"regexp"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// Locals keys shared by the run handlers and the audit log.
const (
	localRequestID  = "request_id"
	LocalRunID      = "run_id"
	LocalTargetDate = "target_date"
)

// schedulers forward their own execution id; anything else is replaced
var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,64}$`)

// RequestID tags each trigger with an id that is echoed back and used as the
// run lock holder. A caller supplied id is kept when it is a short token.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID := c.Get(requestIDHeader)
		if !requestIDPattern.MatchString(reqID) {
			reqID = uuid.NewString()
		}
		c.Set(requestIDHeader, reqID)
		c.Locals(localRequestID, reqID)
		return c.Next()
	}
}

// GetRequestID returns the id assigned by RequestID, or "".
func GetRequestID(c *fiber.Ctx) string {
	id, _ := c.Locals(localRequestID).(string)
	return id
}
