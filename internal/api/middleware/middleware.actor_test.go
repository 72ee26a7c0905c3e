package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newActorApp(privileged bool) *fiber.App {
	app := fiber.New()
	app.Use(ActorMiddleware())
	app.Get("/x", RequireActor(privileged), func(c fiber.Ctx) error {
		actor, _ := GetActor(c)
		return c.SendString(actor.ID + "/" + string(actor.Role))
	})
	return app
}

func doActor(t *testing.T, app *fiber.App, id, role string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if id != "" {
		req.Header.Set(HeaderActorID, id)
	}
	if role != "" {
		req.Header.Set(HeaderActorRole, role)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestRequireActor(t *testing.T) {
	app := newActorApp(false)

	assert.Equal(t, http.StatusUnauthorized, doActor(t, app, "", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, doActor(t, app, "a1", "owner").StatusCode)
	assert.Equal(t, http.StatusOK, doActor(t, app, "a1", "Agent").StatusCode)
}

func TestRequireActor_Privileged(t *testing.T) {
	app := newActorApp(true)

	assert.Equal(t, http.StatusForbidden, doActor(t, app, "a1", "agent").StatusCode)
	assert.Equal(t, http.StatusOK, doActor(t, app, "root", "admin").StatusCode)
	assert.Equal(t, http.StatusOK, doActor(t, app, "cron", "system").StatusCode)
}
