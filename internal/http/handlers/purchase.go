package handlers

import (
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"metrikabridge/internal/chain"
	dbpkg "metrikabridge/internal/db"
	"metrikabridge/internal/postback"
)

type purchaseRequest struct {
	UserID             int64   `json:"user_id"`
	PaymentID          string  `json:"payment_id"`
	Amount             float64 `json:"amount"`
	SubscriptionMonths int     `json:"subscription_months"`
	PromoCode          string  `json:"promo_code,omitempty"`
}

// Purchase consumes the payment processor's succeeded-payment signal,
// records the payment and runs the conversion chain. The response always
// carries a structured outcome; a failed chain is 200 with
// conversion_sent=false so the processor does not retry the webhook itself
// (resend is the retry path).
func Purchase(db *gorm.DB, orch *chain.Orchestrator, pb *postback.Client) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var req purchaseRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.UserID == 0 {
			errResponse(ctx, fasthttp.StatusBadRequest, "missing user_id")
			return
		}
		if req.PaymentID == "" {
			req.PaymentID = uuid.NewString()
		}
		if req.SubscriptionMonths <= 0 {
			req.SubscriptionMonths = 1
		}

		if err := dbpkg.RecordPayment(db, &dbpkg.Payment{
			UserID:             req.UserID,
			PaymentID:          req.PaymentID,
			Amount:             req.Amount,
			SubscriptionMonths: req.SubscriptionMonths,
			PromoCode:          req.PromoCode,
			Status:             "succeeded",
		}); err != nil {
			log.Printf("purchase: failed to record payment %s: %v", req.PaymentID, err)
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to record payment")
			return
		}

		sent := orch.RunConversionChain(req.UserID, req.Amount, req.PaymentID, req.SubscriptionMonths, req.PromoCode)

		if sent && pb.Enabled() {
			if tracking, err := dbpkg.GetTracking(db, req.UserID); err == nil && tracking != nil && tracking.Subid != "" {
				go pb.SendPurchase(tracking.Subid, req.Amount)
			}
		}

		jsonResponse(ctx, map[string]any{
			"status":          "ok",
			"payment_id":      req.PaymentID,
			"conversion_sent": sent,
		})
	}
}
