package db

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

var (
	trackedUsersGauge    prometheus.Gauge
	conversionsSentGauge prometheus.Gauge
	totalRevenueGauge    prometheus.Gauge
	totalVisitsGauge     prometheus.Gauge
	visitsLast24hGauge   prometheus.Gauge
)

// InitStatsGauges registers the gauges exported by the stats worker.
func InitStatsGauges() {
	trackedUsersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "metrikabridge",
		Name:      "tracked_users",
		Help:      "Number of tracking records.",
	})
	conversionsSentGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "metrikabridge",
		Name:      "conversions_sent",
		Help:      "Number of recorded conversions.",
	})
	totalRevenueGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "metrikabridge",
		Name:      "conversion_revenue_total",
		Help:      "Sum of recorded conversion amounts.",
	})
	totalVisitsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "metrikabridge",
		Name:      "visits_total",
		Help:      "Sum of visit counts over all tracked users.",
	})
	visitsLast24hGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "metrikabridge",
		Name:      "visits_last_24h",
		Help:      "Tracking records visited within the last 24 hours.",
	})
	prometheus.MustRegister(
		trackedUsersGauge,
		conversionsSentGauge,
		totalRevenueGauge,
		totalVisitsGauge,
		visitsLast24hGauge,
	)
}

func exportStatsOnce(db *gorm.DB) error {
	stats, err := Statistics(db)
	if err != nil {
		return err
	}
	trackedUsersGauge.Set(float64(stats.TotalTrackings))
	conversionsSentGauge.Set(float64(stats.ConversionsSent))
	totalRevenueGauge.Set(stats.TotalRevenue)
	totalVisitsGauge.Set(float64(stats.TotalVisits))
	visitsLast24hGauge.Set(float64(stats.VisitsLast24h))
	return nil
}

// StartStatsWorker exports the aggregate snapshot as prometheus gauges once
// at startup and then every five minutes. The Statistics query itself stays
// uncached; this only feeds the /metrics scrape.
func StartStatsWorker(db *gorm.DB) {
	go func() {
		if err := exportStatsOnce(db); err != nil {
			log.Printf("stats export error (startup): %v", err)
		}

		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			if err := exportStatsOnce(db); err != nil {
				log.Printf("stats export error: %v", err)
			}
		}
	}()
}
