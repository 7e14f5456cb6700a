package db

import (
	"log"
	"time"

	"gorm.io/gorm"
)

// StartCleanupWorker launches a background goroutine that removes stale,
// never-converted tracking records once at startup and then once per day.
func StartCleanupWorker(db *gorm.DB, days int) {
	go func() {
		if n, err := CleanupOldTracking(db, days); err != nil {
			log.Printf("tracking cleanup error (startup): %v", err)
		} else if n > 0 {
			log.Printf("tracking cleanup (startup): removed %d stale records", n)
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for range ticker.C {
			if n, err := CleanupOldTracking(db, days); err != nil {
				log.Printf("tracking cleanup error: %v", err)
			} else if n > 0 {
				log.Printf("tracking cleanup: removed %d stale records", n)
			}
		}
	}()
}
