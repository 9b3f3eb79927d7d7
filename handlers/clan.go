package handlers

import (
	"clan-roster-system/middleware"
	"clan-roster-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupClanRoutes(app *fiber.App, clanService *services.ClanService) {
	// Public reads
	app.Get("/clans", clanService.ListClansEndpoint)
	app.Get("/clans/:id", clanService.GetClanEndpoint)

	// Authenticated roster mutations
	secured := app.Group("/", middleware.UserContextMiddleware())
	secured.Post("/clans", clanService.CreateClanEndpoint)
	secured.Put("/clans/:id", clanService.UpdateClanEndpoint)
	secured.Post("/clans/:id/join", clanService.JoinClanEndpoint)
	secured.Delete("/clans/:id/members/:user_id", clanService.RemoveMemberEndpoint)
	secured.Post("/clans/:id/captains/:user_id", clanService.AssignCaptainEndpoint)
	secured.Delete("/clans/:id/captains/:user_id", clanService.RevokeCaptainEndpoint)
	secured.Post("/clans/:id/emblem", clanService.UploadEmblemEndpoint)
}
