package main

import (
	"log"

	"github.com/fasthttp/router"
	"github.com/joho/godotenv"
	"github.com/valyala/fasthttp"

	"metrikabridge/internal/chain"
	"metrikabridge/internal/config"
	"metrikabridge/internal/db"
	"metrikabridge/internal/http/handlers"
	appmw "metrikabridge/internal/http/middleware"
	"metrikabridge/internal/metrika"
	"metrikabridge/internal/postback"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	sqlDB, err := db.Connect(cfg)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	metrika.InitMetrics()
	db.InitStatsGauges()

	db.StartCleanupWorker(sqlDB, cfg.CleanupDays)
	db.StartStatsWorker(sqlDB)

	collector := metrika.New(cfg)
	postbacks := postback.New(cfg)
	orch := chain.New(sqlDB, collector, cfg)

	r := router.New()

	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	})

	r.GET("/click", handlers.TrackClick(sqlDB, postbacks, cfg))
	r.POST("/api/track", handlers.TrackAPI(sqlDB, postbacks, cfg))

	r.POST("/v1/purchase", handlers.Purchase(sqlDB, orch, postbacks))

	admin := appmw.AdminAuth(cfg)
	r.GET("/admin/stats", admin(handlers.Stats(sqlDB)))
	r.GET("/admin/top-visitors", admin(handlers.TopVisitors(sqlDB)))
	r.POST("/admin/resend", admin(handlers.Resend(orch)))
	r.POST("/admin/cleanup", admin(handlers.Cleanup(sqlDB, cfg)))
	r.POST("/admin/test", admin(handlers.TestSend(collector)))

	r.GET("/metrics", handlers.PrometheusMetrics())

	handler := handlers.RequestLogger(r.Handler)

	log.Printf("metrikabridge listening on %s", cfg.ListenAddr)
	if err := fasthttp.ListenAndServe(cfg.ListenAddr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
