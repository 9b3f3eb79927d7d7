package services

import "github.com/gofiber/fiber/v2"

// Every endpoint answers with the same envelope: {success, data?, error?, code?}.

func respondData(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

func respondError(c *fiber.Ctx, err error) error {
	se := AsServiceError(err)
	return c.Status(se.Status).JSON(fiber.Map{
		"success": false,
		"error":   se.Message,
		"code":    se.Code,
		"kind":    se.Kind,
	})
}
