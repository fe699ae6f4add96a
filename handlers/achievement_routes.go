// handlers/achievement_routes.go
package handlers

import (
	"fmt"
	"path/filepath"

	"github.com/orucunreiso/sarai/middleware"
	"github.com/orucunreiso/sarai/models"
	"github.com/orucunreiso/sarai/services"
	"github.com/orucunreiso/sarai/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func SetupAchievementRoutes(app *fiber.App, achievementService *services.AchievementService) {
	securedGroup := app.Group("/", middleware.UserContextMiddleware())

	// Full catalog with the user's unlock state and progress percent
	securedGroup.Get("/user/achievements", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		progress, err := achievementService.Progress(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to get achievements",
				"cause": err.Error(),
			})
		}
		return c.JSON(progress)
	})

	securedGroup.Get("/user/achievements/stats", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		stats, err := achievementService.Stats(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to get achievement stats",
				"cause": err.Error(),
			})
		}
		return c.JSON(stats)
	})

	// Force a re-check (normally runs after every activity entry)
	securedGroup.Post("/user/achievements/check", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		unlocked, err := achievementService.CheckAndUnlock(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "achievement check failed",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"unlocked": unlocked,
		})
	})

	// Public catalog (no unlock state)
	app.Get("/achievements", func(c *fiber.Ctx) error {
		catalog, err := achievementService.ListCatalog()
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to list achievements",
				"cause": err.Error(),
			})
		}
		return c.JSON(catalog)
	})

	// Admin: custom icon upload for a catalog entry
	adminGroup := app.Group("/s/admin", middleware.UserContextMiddleware(), middleware.RequireRole("admin"))

	adminGroup.Post("/achievements/:code/icon", func(c *fiber.Ctx) error {
		code := c.Params("code")

		var achievement models.Achievement
		if err := achievementService.DB.Where("code = ?", code).First(&achievement).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "achievement not found",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "DB error fetching achievement",
				"cause": err.Error(),
			})
		}

		fileHeader, err := c.FormFile("icon")
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "icon file is required",
				"cause": err.Error(),
			})
		}

		key := fmt.Sprintf("achievement-icons/%s%s", code, filepath.Ext(fileHeader.Filename))
		url, err := utils.UploadFileToR2(fileHeader, key)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "icon upload failed",
				"cause": err.Error(),
			})
		}

		if err := achievementService.DB.Model(&achievement).Update("icon_url", url).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to save icon URL",
				"cause": err.Error(),
			})
		}

		return c.JSON(fiber.Map{
			"message":  "icon uploaded",
			"code":     code,
			"icon_url": url,
		})
	})
}
