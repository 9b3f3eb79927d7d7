package handlers

import (
	"clan-roster-system/middleware"
	"clan-roster-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupTournamentRoutes(app *fiber.App, tournamentService *services.TournamentService) {
	// Public reads
	app.Get("/tournaments", tournamentService.ListTournamentsEndpoint)
	app.Get("/tournaments/:id", tournamentService.GetTournamentEndpoint)
	app.Get("/tournaments/:id/matches", tournamentService.ListMatchesEndpoint)

	// Authenticated enrollment and lifecycle
	secured := app.Group("/", middleware.UserContextMiddleware())
	secured.Post("/tournaments", tournamentService.CreateTournamentEndpoint)
	secured.Put("/tournaments/:id", tournamentService.UpdateTournamentEndpoint)
	secured.Delete("/tournaments/:id", tournamentService.DeleteTournamentEndpoint)
	secured.Patch("/tournaments/:id/status", tournamentService.AdvanceStatusEndpoint)
	secured.Post("/tournaments/:id/participants", tournamentService.AddParticipantEndpoint)
	secured.Delete("/tournaments/:id/participants/:participant_id", tournamentService.RemoveParticipantEndpoint)
	secured.Post("/tournaments/:id/banner", tournamentService.UploadBannerEndpoint)
}
