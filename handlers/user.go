package handlers

import (
	"clan-roster-system/middleware"
	"clan-roster-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupUserRoutes(app *fiber.App, userService *services.UserService) {
	app.Get("/users/search", userService.SearchUsersEndpoint)
	app.Get("/users/:id", userService.GetUserEndpoint)

	secured := app.Group("/", middleware.UserContextMiddleware())
	secured.Post("/users/ensure", userService.EnsureUserEndpoint)
	secured.Delete("/users/:id", userService.AnonymizeUserEndpoint)
}
