// Package chain sequences the conversion send: dedup check, visit
// reconciliation, collector sends, and the final conversion record. The
// dispatcher is injected so the whole chain runs against a fake in tests.
package chain

import (
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"metrikabridge/internal/config"
	"metrikabridge/internal/db"
	"metrikabridge/internal/metrika"
	"metrikabridge/internal/session"
)

// Orchestrator runs conversion chains against the store and a dispatcher.
type Orchestrator struct {
	db     *gorm.DB
	sender metrika.Sender

	purchasePage string
	sessionOpts  session.Options

	// interEventDelay separates a session-reopening pageview from the
	// dependent purchase hit so the collector stitches them into one visit.
	interEventDelay time.Duration

	// resendDelay throttles the resend batch between users.
	resendDelay time.Duration
}

// New wires an orchestrator from config.
func New(gdb *gorm.DB, sender metrika.Sender, cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		db:              gdb,
		sender:          sender,
		purchasePage:    "https://t.me/" + cfg.BotUsername + "/purchase",
		interEventDelay: cfg.InterEventDelay,
		resendDelay:     500 * time.Millisecond,
	}
}

// RunConversionChain delivers one purchase to the collector and records the
// conversion exactly once per payment.
//
// Order matters: the cheap, repeatable steps (dedup check, visit reopen) run
// before the ecommerce send, and nothing is persisted until the send
// succeeded. A failed ecommerce send leaves no conversion row, so the resend
// batch can retry the payment later. Remote side effects of earlier steps
// (a reopening pageview) are not rolled back on later failure.
func (o *Orchestrator) RunConversionChain(userID int64, amount float64, paymentID string, months int, promoCode string) bool {
	if !o.sender.Configured() {
		log.Printf("chain: dispatcher not configured, skipping conversion for user %d", userID)
		return false
	}

	tracking, err := db.GetTracking(o.db, userID)
	if err != nil {
		log.Printf("chain: tracking lookup failed for user %d: %v", userID, err)
		return false
	}
	if tracking == nil {
		log.Printf("chain: no tracking for user %d, cannot attribute conversion", userID)
		return false
	}

	done, err := db.HasConversion(o.db, userID, paymentID)
	if err != nil {
		log.Printf("chain: conversion check failed for user %d: %v", userID, err)
		return false
	}
	if done {
		log.Printf("chain: conversion already sent for user %d payment %s", userID, paymentID)
		return true
	}

	now := time.Now().UTC()
	if !session.IsVisitOpen(tracking.FirstVisitTime, tracking.LastVisitTime, now, o.sessionOpts) {
		ok := o.sender.SendPageview(metrika.Pageview{
			ClientID: tracking.ClientID,
			PageURL:  o.purchasePage,
			Title:    "Purchase Completed",
		})
		if !ok {
			log.Printf("chain: failed to reopen visit for user %d, aborting", userID)
			return false
		}
		if err := db.TouchVisit(o.db, tracking.TrackingID); err != nil {
			log.Printf("chain: touch visit failed for user %d: %v", userID, err)
		}
		if o.interEventDelay > 0 {
			time.Sleep(o.interEventDelay)
		}
	}

	if !o.sender.SendEcommercePurchase(metrika.Purchase{
		ClientID:      tracking.ClientID,
		TransactionID: paymentID,
		Revenue:       amount,
		Products:      []metrika.Product{purchaseProduct(amount, months)},
		PageURL:       o.purchasePage,
		Coupon:        promoCode,
	}) {
		log.Printf("chain: ecommerce send failed for user %d payment %s", userID, paymentID)
		return false
	}

	// Secondary goal signal; its failure does not abort the chain.
	value := amount
	if !o.sender.SendEvent(metrika.Event{
		ClientID: tracking.ClientID,
		Name:     "purchase_completed",
		Value:    &value,
		PageURL:  o.purchasePage,
	}) {
		log.Printf("chain: goal event failed for user %d payment %s (ignored)", userID, paymentID)
	}

	if _, _, err := db.RecordConversion(o.db, userID, paymentID, amount); err != nil {
		log.Printf("chain: failed to record conversion for user %d payment %s: %v", userID, paymentID, err)
		return false
	}

	log.Printf("chain: conversion sent for user %d payment %s", userID, paymentID)
	return true
}

func purchaseProduct(amount float64, months int) metrika.Product {
	if months <= 0 {
		months = 1
	}
	category := "Subscription"
	if amount == 0 {
		category = "Trial"
	}
	return metrika.Product{
		ID:       fmt.Sprintf("subscription_%dm", months),
		Name:     fmt.Sprintf("Subscription %d months", months),
		Category: category,
		Price:    amount,
		Quantity: 1,
		Variant:  "monthly",
	}
}

// ResendResult tallies one resend batch.
type ResendResult struct {
	Processed int `json:"processed"`
	Success   int `json:"success"`
	Failed    int `json:"failed"`
}

// ResendMissingConversions replays the chain for succeeded payments that
// never got a conversion row. Payments are processed sequentially with a
// throttling delay; failures are tallied, never raised.
func (o *Orchestrator) ResendMissingConversions(limit int) ResendResult {
	var result ResendResult

	payments, err := db.UnconvertedPayments(o.db, limit)
	if err != nil {
		log.Printf("chain: resend worklist query failed: %v", err)
		return result
	}

	for i, p := range payments {
		if i > 0 && o.resendDelay > 0 {
			time.Sleep(o.resendDelay)
		}
		result.Processed++
		if o.RunConversionChain(p.UserID, p.Amount, p.PaymentID, p.SubscriptionMonths, p.PromoCode) {
			result.Success++
		} else {
			result.Failed++
		}
	}

	log.Printf("chain: resend done, processed=%d success=%d failed=%d",
		result.Processed, result.Success, result.Failed)
	return result
}
