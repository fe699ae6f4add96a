// handlers/reward_routes.go
package handlers

import (
	"errors"
	"strconv"

	"github.com/orucunreiso/sarai/middleware"
	"github.com/orucunreiso/sarai/services"

	"github.com/gofiber/fiber/v2"
)

func SetupRewardRoutes(app *fiber.App, boxService *services.RewardBoxService, authClient *services.AuthServiceClient) {
	securedGroup := app.Group("/", middleware.UserContextMiddleware())

	securedGroup.Get("/user/boxes", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		limit, _ := strconv.Atoi(c.Query("limit", "50"))

		boxes, err := boxService.UserBoxes(userID, limit)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to list boxes",
				"cause": err.Error(),
			})
		}
		return c.JSON(boxes)
	})

	securedGroup.Get("/user/boxes/unopened", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		boxes, err := boxService.UnopenedBoxes(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to list unopened boxes",
				"cause": err.Error(),
			})
		}
		return c.JSON(boxes)
	})

	securedGroup.Post("/user/boxes/:id/open", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		boxID := c.Params("id")

		result, err := boxService.OpenBox(userID, boxID)
		if err != nil {
			if errors.Is(err, services.ErrBoxAlreadyOpened) {
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{
					"error": "box already opened",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to open box",
				"cause": err.Error(),
			})
		}
		return c.JSON(result)
	})

	securedGroup.Get("/user/effects", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		effects, err := boxService.ActiveEffects(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to list effects",
				"cause": err.Error(),
			})
		}
		return c.JSON(effects)
	})

	securedGroup.Get("/user/credits", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		credits, err := boxService.Credits(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to list credits",
				"cause": err.Error(),
			})
		}
		return c.JSON(credits)
	})

	// SSE stream — token auth via query param (EventSource can't set headers)
	app.Get("/user/boxes/stream", middleware.SSEAuthMiddleware(authClient), boxService.StreamUserBoxesSSE)
}
