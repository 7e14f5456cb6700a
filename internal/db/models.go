package db

import (
	"time"
)

// Tracking maps a user to the analytics client identifier captured from an
// inbound ad click, together with visit bookkeeping. There is exactly one
// current row per user; when historical duplicates exist the latest by
// creation time is authoritative.
type Tracking struct {
	TrackingID uint `gorm:"primaryKey"`

	CreatedAt time.Time

	// UserID is the external user identity (bot user id).
	UserID int64 `gorm:"index;not null"`

	// ClientID is the numeric visitor token issued by the analytics system.
	ClientID string `gorm:"size:64;not null"`

	// CounterID is the analytics account the client id belongs to.
	CounterID string `gorm:"size:32"`

	// Subid is the attribution partner's click id, captured alongside the
	// analytics client id when present. Used for partner postbacks only.
	Subid string `gorm:"size:128"`

	FirstVisitTime time.Time `gorm:"not null"`
	LastVisitTime  time.Time `gorm:"index;not null"`

	// VisitCount is >= 1 and monotonically non-decreasing.
	VisitCount int `gorm:"not null;default:1;index"`
}

// Conversion records one successfully delivered purchase per payment.
// Rows are written only after the collector confirmed the full chain,
// never mutated, and never removed by cleanup.
type Conversion struct {
	ConversionID uint `gorm:"primaryKey"`

	UserID    int64   `gorm:"uniqueIndex:uq_user_payment_conversion,priority:1;not null"`
	PaymentID string  `gorm:"uniqueIndex:uq_user_payment_conversion,priority:2;size:128;not null"`
	Amount    float64 `gorm:"not null"`

	SentAt time.Time `gorm:"not null"`
}

// Payment mirrors the payment processor's succeeded-payment signal. It is the
// worklist for the resend batch: a succeeded payment without a matching
// Conversion row is a missed conversion.
type Payment struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time

	UserID    int64  `gorm:"index;not null"`
	PaymentID string `gorm:"uniqueIndex;size:128;not null"`

	Amount             float64 `gorm:"not null"`
	SubscriptionMonths int     `gorm:"not null;default:1"`
	PromoCode          string  `gorm:"size:64"`

	// Status is the processor-reported state; only "succeeded" payments are
	// eligible for conversion sends.
	Status string `gorm:"size:32;index;not null;default:succeeded"`
}
