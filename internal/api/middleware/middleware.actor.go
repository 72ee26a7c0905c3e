// Package middleware chứa middleware HTTP: đọc actor từ header và chặn request thiếu quyền.
package middleware

import (
	"strings"

	basehdl "rupiya_directory/internal/api/base/handler"
	"rupiya_directory/internal/api/shop/models"
	"rupiya_directory/internal/common"

	"github.com/gofiber/fiber/v3"
)

const (
	// HeaderActorID id người thực hiện, do gateway xác thực gắn vào
	HeaderActorID = "X-Actor-ID"
	// HeaderActorRole vai trò: admin | agent | system
	HeaderActorRole = "X-Actor-Role"

	localsActor = "actor"
)

// ActorMiddleware đọc actor từ header và lưu vào Locals.
// Header thiếu hoặc sai vai trò thì không set, các route cần actor sẽ bị chặn bởi RequireActor.
func ActorMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		id := strings.TrimSpace(c.Get(HeaderActorID))
		role, ok := models.ParseRole(c.Get(HeaderActorRole))
		if id != "" && ok {
			c.Locals(localsActor, models.Actor{ID: id, Role: role})
		}
		return c.Next()
	}
}

// RequireActor chặn request không có actor hợp lệ (401).
// privileged = true chỉ cho admin/system (403 với agent).
func RequireActor(privileged bool) fiber.Handler {
	return func(c fiber.Ctx) error {
		actor, ok := GetActor(c)
		if !ok {
			return basehdl.HandleErrorResponse(c, common.ErrActorMissing)
		}
		if privileged && !actor.IsPrivileged() {
			return basehdl.HandleErrorResponse(c, common.ErrUnauthorized)
		}
		return c.Next()
	}
}

// GetActor lấy actor đã được ActorMiddleware lưu
func GetActor(c fiber.Ctx) (models.Actor, bool) {
	actor, ok := c.Locals(localsActor).(models.Actor)
	if !ok || !actor.Valid() {
		return models.Actor{}, false
	}
	return actor, true
}
