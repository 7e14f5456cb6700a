package db

import (
	"log"
	"math"
	"time"

	"gorm.io/gorm"
)

// UpsertTracking creates or refreshes the tracking record for a user.
//
// An existing record gets its client/counter id replaced when the click
// carried a different client id, and in all cases has last_visit_time bumped
// and visit_count incremented. The increment happens in a single UPDATE
// statement so concurrent clicks for the same user cannot lose counts.
// A user without a record gets a fresh row with visit_count = 1.
func UpsertTracking(db *gorm.DB, userID int64, clientID, counterID string) (*Tracking, error) {
	now := time.Now().UTC()

	existing, err := GetTracking(db, userID)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		values := map[string]any{
			"last_visit_time": now,
			"visit_count":     gorm.Expr("visit_count + 1"),
		}
		if existing.ClientID != clientID {
			values["client_id"] = clientID
			values["counter_id"] = counterID
		}
		if err := db.Model(&Tracking{}).
			Where("tracking_id = ?", existing.TrackingID).
			Updates(values).Error; err != nil {
			return nil, err
		}
		return GetTracking(db, userID)
	}

	rec := &Tracking{
		UserID:         userID,
		ClientID:       clientID,
		CounterID:      counterID,
		FirstVisitTime: now,
		LastVisitTime:  now,
		VisitCount:     1,
	}
	if err := db.Create(rec).Error; err != nil {
		return nil, err
	}
	log.Printf("tracking created for user %d (client_id=%s)", userID, clientID)
	return rec, nil
}

// GetTracking returns the current tracking record for a user, or nil when
// none exists. When historical duplicates exist the newest row wins.
func GetTracking(db *gorm.DB, userID int64) (*Tracking, error) {
	var rec Tracking
	err := db.Where("user_id = ?", userID).
		Order("created_at DESC").
		First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// TouchVisit marks a reconciled visit: bumps last_visit_time and increments
// the visit counter in one statement. Callers must invoke it at most once
// per reconciled visit; every call increments.
func TouchVisit(db *gorm.DB, trackingID uint) error {
	return db.Model(&Tracking{}).
		Where("tracking_id = ?", trackingID).
		Updates(map[string]any{
			"last_visit_time": time.Now().UTC(),
			"visit_count":     gorm.Expr("visit_count + 1"),
		}).Error
}

// SetSubid stores the attribution partner's click id on a tracking record.
// Only overwrites when a non-empty subid arrives.
func SetSubid(db *gorm.DB, trackingID uint, subid string) error {
	if subid == "" {
		return nil
	}
	return db.Model(&Tracking{}).
		Where("tracking_id = ?", trackingID).
		Update("subid", subid).Error
}

// RecordConversion persists a delivered conversion for (user, payment).
// The second return is false when a row for that pair already exists; the
// existing row is left untouched and no error is reported.
func RecordConversion(db *gorm.DB, userID int64, paymentID string, amount float64) (*Conversion, bool, error) {
	exists, err := HasConversion(db, userID, paymentID)
	if err != nil {
		return nil, false, err
	}
	if exists {
		log.Printf("conversion already exists for user %d payment %s", userID, paymentID)
		return nil, false, nil
	}

	conv := &Conversion{
		UserID:    userID,
		PaymentID: paymentID,
		Amount:    amount,
		SentAt:    time.Now().UTC(),
	}
	if err := db.Create(conv).Error; err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

// HasConversion reports whether a conversion was already recorded for the
// given (user, payment) pair.
func HasConversion(db *gorm.DB, userID int64, paymentID string) (bool, error) {
	var count int64
	err := db.Model(&Conversion{}).
		Where("user_id = ? AND payment_id = ?", userID, paymentID).
		Count(&count).Error
	return count > 0, err
}

// TrackingStats is the aggregate snapshot over the tracking and conversion
// tables. Every field is computed fresh per call; nothing is cached.
type TrackingStats struct {
	TotalTrackings             int64   `json:"total_trackings"`
	ConversionsSent            int64   `json:"conversions_sent"`
	UniqueUsersWithConversions int64   `json:"unique_users_with_conversions"`
	TotalRevenue               float64 `json:"total_revenue"`
	TotalVisits                int64   `json:"total_visits"`
	AverageVisitsPerUser       float64 `json:"average_visits_per_user"`
	UsersWithMultipleVisits    int64   `json:"users_with_multiple_visits"`
	VisitsLast24h              int64   `json:"visits_last_24h"`
}

// Statistics computes the aggregate tracking snapshot.
func Statistics(db *gorm.DB) (*TrackingStats, error) {
	stats := &TrackingStats{}

	if err := db.Model(&Tracking{}).Count(&stats.TotalTrackings).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&Conversion{}).Count(&stats.ConversionsSent).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&Conversion{}).
		Distinct("user_id").
		Count(&stats.UniqueUsersWithConversions).Error; err != nil {
		return nil, err
	}

	var revenue *float64
	if err := db.Model(&Conversion{}).
		Select("SUM(amount)").Scan(&revenue).Error; err != nil {
		return nil, err
	}
	if revenue != nil {
		stats.TotalRevenue = *revenue
	}

	var visits *int64
	if err := db.Model(&Tracking{}).
		Select("SUM(visit_count)").Scan(&visits).Error; err != nil {
		return nil, err
	}
	if visits != nil {
		stats.TotalVisits = *visits
	}

	var avg *float64
	if err := db.Model(&Tracking{}).
		Select("AVG(visit_count)").Scan(&avg).Error; err != nil {
		return nil, err
	}
	if avg != nil {
		stats.AverageVisitsPerUser = math.Round(*avg*100) / 100
	}

	if err := db.Model(&Tracking{}).
		Where("visit_count > 1").
		Count(&stats.UsersWithMultipleVisits).Error; err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	if err := db.Model(&Tracking{}).
		Where("last_visit_time >= ?", cutoff).
		Count(&stats.VisitsLast24h).Error; err != nil {
		return nil, err
	}

	return stats, nil
}

// CleanupOldTracking deletes tracking records whose last visit is older than
// the cutoff and whose user never converted. Conversion rows are never
// touched. Returns the number of rows removed.
func CleanupOldTracking(db *gorm.DB, days int) (int64, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)

	res := db.Where(
		"last_visit_time < ? AND user_id NOT IN (?)",
		cutoff,
		db.Model(&Conversion{}).Select("user_id"),
	).Delete(&Tracking{})
	return res.RowsAffected, res.Error
}

// TopVisitors returns tracking records ordered by visit count, most active
// first.
func TopVisitors(db *gorm.DB, limit int) ([]Tracking, error) {
	var recs []Tracking
	err := db.Order("visit_count DESC").Limit(limit).Find(&recs).Error
	return recs, err
}

// RecordPayment stores the processor-reported payment if it is not already
// known. Repeated webhook deliveries for the same payment id are no-ops.
func RecordPayment(db *gorm.DB, p *Payment) error {
	return db.Where("payment_id = ?", p.PaymentID).FirstOrCreate(p).Error
}

// UnconvertedPayments lists succeeded payments that have no conversion row
// yet, oldest first. This is the resend batch worklist.
func UnconvertedPayments(db *gorm.DB, limit int) ([]Payment, error) {
	var payments []Payment
	err := db.Where(
		"status = ? AND NOT EXISTS (?)",
		"succeeded",
		db.Model(&Conversion{}).
			Select("1").
			Where("conversions.user_id = payments.user_id AND conversions.payment_id = payments.payment_id"),
	).Order("created_at ASC").Limit(limit).Find(&payments).Error
	return payments, err
}
