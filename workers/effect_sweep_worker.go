// workers/effect_sweep_worker.go
package workers

import (
	"context"
	"log"
	"time"

	"github.com/orucunreiso/sarai/services"
)

// EffectSweepWorker retires expired double-XP and streak-freeze
// effects. Reads of active effects already filter on expires_at, so the
// sweep only keeps the table tidy and the is_active index honest.
type EffectSweepWorker struct {
	boxes    *services.RewardBoxService
	interval time.Duration
}

func NewEffectSweepWorker(boxes *services.RewardBoxService) *EffectSweepWorker {
	return &EffectSweepWorker{
		boxes:    boxes,
		interval: 5 * time.Minute,
	}
}

func (w *EffectSweepWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Effect Sweep Worker…")
	go w.run(ctx)
}

func (w *EffectSweepWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := w.boxes.ExpireEffects()
			if err != nil {
				log.Printf("❌ Effect sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("⏳ Effects expired: %d", n)
			}
		case <-ctx.Done():
			log.Println("⏹️ Effect Sweep Worker stopped")
			return
		}
	}
}
