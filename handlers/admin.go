package handlers

import (
	"clan-roster-system/middleware"
	"clan-roster-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupAdminRoutes(app *fiber.App, adminService *services.AdminService) {
	admin := app.Group("/admin", middleware.UserContextMiddleware(), middleware.RequireModerator())

	admin.Post("/users/:user_id/ban", adminService.BanUserEndpoint)
	admin.Post("/users/:user_id/unban", adminService.UnbanUserEndpoint)
	admin.Patch("/users/:user_id/role", adminService.AssignRoleEndpoint)
	admin.Post("/matches/:match_id/override", adminService.OverrideMatchEndpoint)
	admin.Delete("/tournaments/:id", adminService.RemoveTournamentEndpoint)
	admin.Get("/stats", adminService.GetAdminStatsEndpoint)
	admin.Get("/logs", adminService.GetAdminLogsEndpoint)
}
