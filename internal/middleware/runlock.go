package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/akatsuki-labs/akatsuki/internal/bet"
)

const runLockPrefix = "runlock:v1:"

// RunLock serializes purchase runs per target date across instances by
// holding a Redis key for the duration of the request. A second trigger for
// the same date gets 409 while the first is running. Without Redis it is a
// no-op.
func RunLock(cache *redis.Client, ttl time.Duration, loc *time.Location, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}

		var body struct {
			TargetDate string `json:"target_date"`
		}
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&body); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
			}
		}
		date, err := bet.NormalizeDate(body.TargetDate, time.Now().In(loc))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		key := runLockPrefix + date
		holder := GetRequestID(c)
		if holder == "" {
			holder = "1"
		}
		acquired, err := cache.SetNX(ctx, key, holder, ttl).Result()
		if err != nil {
			logger.Error("run lock reservation failed", slog.String("target_date", date), slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "run lock unavailable")
		}
		if !acquired {
			return fiber.NewError(fiber.StatusConflict, "run already in progress for "+date)
		}
		c.Locals(LocalTargetDate, date)

		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := cache.Del(releaseCtx, key).Err(); err != nil {
				logger.Warn("run lock release failed", slog.String("target_date", date), slog.Any("error", err))
			}
		}()

		return c.Next()
	}
}
