// handlers/goal_routes.go
package handlers

import (
	"github.com/orucunreiso/sarai/middleware"
	"github.com/orucunreiso/sarai/services"

	"github.com/gofiber/fiber/v2"
)

func SetupGoalRoutes(app *fiber.App, goalService *services.GoalService) {
	securedGroup := app.Group("/", middleware.UserContextMiddleware())

	securedGroup.Get("/user/goals/daily", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		date := c.Query("date") // empty = today

		goal, err := goalService.GetOrCreateDailyGoal(userID, date)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "failed to get daily goal",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"goal":         goal,
			"is_completed": goal.IsCompleted(),
		})
	})

	securedGroup.Get("/user/goals/daily/range", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		from := c.Query("from")
		to := c.Query("to")
		if from == "" || to == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "from and to query params are required (YYYY-MM-DD)",
			})
		}

		goals, err := goalService.GoalsForRange(userID, from, to)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to get goal range",
				"cause": err.Error(),
			})
		}
		return c.JSON(goals)
	})

	securedGroup.Patch("/user/goals/daily/targets", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		date := c.Query("date")

		var upd services.TargetUpdate
		if err := c.BodyParser(&upd); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}

		goal, err := goalService.UpdateTargets(userID, date, upd)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "failed to update targets",
				"cause": err.Error(),
			})
		}
		return c.JSON(goal)
	})

	// Custom goals
	securedGroup.Get("/user/goals", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		date := c.Query("date")

		goals, err := goalService.ListUserGoals(userID, date)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to list goals",
				"cause": err.Error(),
			})
		}
		return c.JSON(goals)
	})

	securedGroup.Post("/user/goals", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var in services.UserGoalInput
		if err := c.BodyParser(&in); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}

		goal, err := goalService.CreateUserGoal(userID, in)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "failed to create goal",
				"cause": err.Error(),
			})
		}
		return c.Status(fiber.StatusCreated).JSON(goal)
	})

	securedGroup.Patch("/user/goals/:id/progress", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		goalID := c.Params("id")

		type Req struct {
			Delta int `json:"delta"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}

		goal, err := goalService.UpdateUserGoalProgress(userID, goalID, req.Delta)
		if err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "failed to update goal progress",
				"cause": err.Error(),
			})
		}
		return c.JSON(goal)
	})

	securedGroup.Delete("/user/goals/:id", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		goalID := c.Params("id")

		if err := goalService.RemoveUserGoal(userID, goalID); err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "failed to remove goal",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"message": "goal removed",
		})
	})

	// Admin/coach approval flow
	adminGroup := app.Group("/s/admin", middleware.UserContextMiddleware(), middleware.RequireRole("coach"))

	adminGroup.Post("/goals/approve", func(c *fiber.Ctx) error {
		type Req struct {
			UserID string `json:"user_id"`
			Date   string `json:"date"`
			Note   string `json:"note"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}
		if req.UserID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "user_id is required",
			})
		}

		goal, err := goalService.Approve(req.UserID, req.Date, req.Note)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "approval failed",
				"cause": err.Error(),
			})
		}
		return c.JSON(goal)
	})

	adminGroup.Post("/goals/revoke", func(c *fiber.Ctx) error {
		type Req struct {
			UserID string `json:"user_id"`
			Date   string `json:"date"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}

		goal, err := goalService.RevokeApproval(req.UserID, req.Date)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "revoke failed",
				"cause": err.Error(),
			})
		}
		return c.JSON(goal)
	})

	adminGroup.Post("/goals/:id/approve", func(c *fiber.Ctx) error {
		goalID := c.Params("id")

		type Req struct {
			UserID string `json:"user_id"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}

		goal, err := goalService.ApproveUserGoal(req.UserID, goalID)
		if err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "goal approval failed",
				"cause": err.Error(),
			})
		}
		return c.JSON(goal)
	})
}
