package services

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/orucunreiso/sarai/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// StreamUserBoxesSSE streams newly minted reward boxes for the
// authenticated user as they appear (milestones, scheduler issuance,
// achievement boxes).
func (s *RewardBoxService) StreamUserBoxesSSE(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		var lastMaxEarnedAt time.Time

		// Initialize cursor at the newest existing box
		var latest models.RewardBox
		if err := s.DB.
			Where("external_user_id = ?", userID).
			Order("earned_at DESC").
			First(&latest).Error; err == nil {
			lastMaxEarnedAt = latest.EarnedAt
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("SSE init error for user %s: %v", userID, err)
		}

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		w.Flush()

		for {
			select {
			case <-ticker.C:
				var newBoxes []models.RewardBox

				err := s.DB.
					Where("external_user_id = ? AND earned_at > ?", userID, lastMaxEarnedAt).
					Order("earned_at ASC").
					Find(&newBoxes).Error

				if err != nil {
					log.Printf("SSE query error for user %s: %v", userID, err)
					continue
				}

				if len(newBoxes) == 0 {
					continue
				}

				lastMaxEarnedAt = newBoxes[len(newBoxes)-1].EarnedAt

				for _, b := range newBoxes {
					payload, _ := json.Marshal(b)

					fmt.Fprintf(w,
						"event: box\ndata: %s\n\n",
						payload,
					)
				}

				if err := w.Flush(); err != nil {
					// Client disconnected
					return
				}

			case <-c.Context().Done():
				// Client closed connection
				return
			}
		}
	})

	return nil
}
