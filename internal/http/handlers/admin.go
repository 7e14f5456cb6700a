package handlers

import (
	"log"
	"math/rand"
	"strconv"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"metrikabridge/internal/chain"
	"metrikabridge/internal/config"
	dbpkg "metrikabridge/internal/db"
	"metrikabridge/internal/metrika"
)

// Stats returns the aggregate tracking snapshot.
func Stats(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		stats, err := dbpkg.Statistics(db)
		if err != nil {
			log.Printf("admin: statistics query failed: %v", err)
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to compute statistics")
			return
		}
		jsonResponse(ctx, stats)
	}
}

// TopVisitors lists the most active tracked users.
func TopVisitors(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		limit := queryInt(ctx, "limit", 10)
		recs, err := dbpkg.TopVisitors(db, limit)
		if err != nil {
			log.Printf("admin: top visitors query failed: %v", err)
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to list visitors")
			return
		}

		type visitor struct {
			UserID     int64  `json:"user_id"`
			VisitCount int    `json:"visit_count"`
			LastVisit  string `json:"last_visit"`
		}
		out := make([]visitor, 0, len(recs))
		for _, r := range recs {
			out = append(out, visitor{
				UserID:     r.UserID,
				VisitCount: r.VisitCount,
				LastVisit:  r.LastVisitTime.UTC().Format("2006-01-02T15:04:05Z"),
			})
		}
		jsonResponse(ctx, map[string]any{"visitors": out})
	}
}

// Resend triggers a resend batch for missed conversions.
func Resend(orch *chain.Orchestrator) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		limit := queryInt(ctx, "limit", 50)
		result := orch.ResendMissingConversions(limit)
		jsonResponse(ctx, result)
	}
}

// Cleanup removes stale tracking records without conversions.
func Cleanup(db *gorm.DB, cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		days := queryInt(ctx, "days", cfg.CleanupDays)
		deleted, err := dbpkg.CleanupOldTracking(db, days)
		if err != nil {
			log.Printf("admin: cleanup failed: %v", err)
			errResponse(ctx, fasthttp.StatusInternalServerError, "cleanup failed")
			return
		}
		jsonResponse(ctx, map[string]any{"deleted": deleted, "days": days})
	}
}

// TestSend fires a probe pageview, ecommerce purchase and goal event with a
// random client id so an operator can verify the collector wiring end to end.
func TestSend(sender metrika.Sender) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if !sender.Configured() {
			errResponse(ctx, fasthttp.StatusServiceUnavailable, "collector not configured")
			return
		}

		clientID := randomClientID()
		transactionID := "test_" + uuid.NewString()

		pageview := sender.SendPageview(metrika.Pageview{
			ClientID: clientID,
			Title:    "Test Visit",
		})
		ecommerce := sender.SendEcommercePurchase(metrika.Purchase{
			ClientID:      clientID,
			TransactionID: transactionID,
			Revenue:       100,
			Products: []metrika.Product{{
				ID:       "test_subscription",
				Name:     "Test Subscription",
				Category: "Test",
				Price:    100,
				Quantity: 1,
			}},
		})
		value := 100.0
		goal := sender.SendEvent(metrika.Event{
			ClientID: clientID,
			Name:     "test_purchase",
			Value:    &value,
		})

		jsonResponse(ctx, map[string]any{
			"client_id":      clientID,
			"transaction_id": transactionID,
			"pageview":       pageview,
			"ecommerce":      ecommerce,
			"goal":           goal,
		})
	}
}

func randomClientID() string {
	digits := make([]byte, 19)
	for i := range digits {
		digits[i] = byte('0' + rand.Intn(10))
	}
	return string(digits)
}

func queryInt(ctx *fasthttp.RequestCtx, key string, def int) int {
	if v := string(ctx.QueryArgs().Peek(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
