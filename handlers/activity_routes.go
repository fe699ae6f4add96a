// handlers/activity_routes.go
package handlers

import (
	"github.com/orucunreiso/sarai/middleware"
	"github.com/orucunreiso/sarai/services"

	"github.com/gofiber/fiber/v2"
)

func SetupActivityRoutes(app *fiber.App, activityService *services.ActivityService) {
	securedGroup := app.Group("/", middleware.UserContextMiddleware())

	securedGroup.Post("/user/activity/questions", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var entry services.QuestionEntry
		if err := c.BodyParser(&entry); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}

		result, err := activityService.ProcessQuestionEntry(userID, entry)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to process question entry",
				"cause": err.Error(),
			})
		}
		return c.JSON(result)
	})

	securedGroup.Post("/user/activity/exam", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var entry services.ExamEntry
		if err := c.BodyParser(&entry); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}

		result, err := activityService.ProcessExamEntry(userID, entry)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "failed to process exam entry",
				"cause": err.Error(),
			})
		}
		return c.JSON(result)
	})

	securedGroup.Post("/user/activity/login", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		result, err := activityService.ProcessLogin(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to process login",
				"cause": err.Error(),
			})
		}
		return c.JSON(result)
	})

	securedGroup.Post("/user/setup/complete", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		unlocked, err := activityService.CompleteSetup(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to complete setup",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"unlocked": unlocked,
		})
	})
}
