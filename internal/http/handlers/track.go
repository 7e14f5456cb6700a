package handlers

import (
	"encoding/json"
	"log"
	"strconv"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"metrikabridge/internal/config"
	dbpkg "metrikabridge/internal/db"
	"metrikabridge/internal/metrika"
	"metrikabridge/internal/postback"
)

// TrackClick captures an inbound ad click and redirects the visitor onward.
//
// Query parameters: "yclid" (or "client_id") carries the analytics visitor
// token, "user_id" the bot identity, optional "subid" the attribution
// partner's click id and "redirect" an explicit onward URL. The tracking
// upsert always happens before the redirect is issued.
func TrackClick(db *gorm.DB, pb *postback.Client, cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		clientID := string(ctx.QueryArgs().Peek("yclid"))
		if clientID == "" {
			clientID = string(ctx.QueryArgs().Peek("client_id"))
		}
		if !metrika.ValidateClientID(clientID) {
			errResponse(ctx, fasthttp.StatusBadRequest, "missing or malformed client id")
			return
		}

		userID, err := strconv.ParseInt(string(ctx.QueryArgs().Peek("user_id")), 10, 64)
		if err != nil || userID == 0 {
			errResponse(ctx, fasthttp.StatusBadRequest, "missing user_id")
			return
		}

		rec, err := dbpkg.UpsertTracking(db, userID, clientID, cfg.MetrikaCounterID)
		if err != nil {
			log.Printf("track: upsert failed for user %d: %v", userID, err)
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to record visit")
			return
		}

		subid := string(ctx.QueryArgs().Peek("subid"))
		if subid != "" {
			if err := dbpkg.SetSubid(db, rec.TrackingID, subid); err != nil {
				log.Printf("track: subid update failed for user %d: %v", userID, err)
			}
			if rec.VisitCount == 1 && pb.Enabled() {
				go pb.SendInstall(subid)
			}
		}

		target := string(ctx.QueryArgs().Peek("redirect"))
		if target == "" {
			target = "https://t.me/" + cfg.BotUsername + "?start=yandex_" + clientID
		}
		ctx.Redirect(target, fasthttp.StatusFound)
	}
}

type trackRequest struct {
	UserID   int64  `json:"user_id"`
	ClientID string `json:"client_id"`
	Subid    string `json:"subid,omitempty"`
	Referrer string `json:"referrer,omitempty"`
}

// TrackAPI is the JSON variant of click capture, used by the landing page
// script instead of the redirect flow.
func TrackAPI(db *gorm.DB, pb *postback.Client, cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var req trackRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
			return
		}
		if !metrika.ValidateClientID(req.ClientID) {
			errResponse(ctx, fasthttp.StatusBadRequest, "missing or malformed client id")
			return
		}
		if req.UserID == 0 {
			errResponse(ctx, fasthttp.StatusBadRequest, "missing user_id")
			return
		}

		rec, err := dbpkg.UpsertTracking(db, req.UserID, req.ClientID, cfg.MetrikaCounterID)
		if err != nil {
			log.Printf("track: upsert failed for user %d: %v", req.UserID, err)
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to record visit")
			return
		}

		if req.Subid != "" {
			if err := dbpkg.SetSubid(db, rec.TrackingID, req.Subid); err != nil {
				log.Printf("track: subid update failed for user %d: %v", req.UserID, err)
			}
			if rec.VisitCount == 1 && pb.Enabled() {
				go pb.SendInstall(req.Subid)
			}
		}

		jsonResponse(ctx, map[string]any{
			"status":      "success",
			"client_id":   req.ClientID,
			"visit_count": rec.VisitCount,
		})
	}
}
