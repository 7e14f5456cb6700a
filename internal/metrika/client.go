// Package metrika sends measurement-protocol hits to the analytics
// collector. Every send resolves to a plain success boolean: transport
// failures, non-200 responses and validation failures are logged and
// reported as false, never raised to the caller.
package metrika

import (
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"

	"metrikabridge/internal/config"
)

var sendsTotal *prometheus.CounterVec

// InitMetrics registers the dispatcher's prometheus counters.
func InitMetrics() {
	sendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "metrikabridge",
			Name:      "collector_sends_total",
			Help:      "Total hits sent to the analytics collector, by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	prometheus.MustRegister(sendsTotal)
}

func countSend(kind string, ok bool) {
	if sendsTotal == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	sendsTotal.WithLabelValues(kind, outcome).Inc()
}

// Sender is the narrow dispatch interface the conversion chain depends on,
// so the chain can run against a fake with no network.
type Sender interface {
	Configured() bool
	SendPageview(p Pageview) bool
	SendEvent(e Event) bool
	SendEcommercePurchase(p Purchase) bool
}

// Pageview is a page visit hit. Zero EventTime means "now"; empty Title and
// Referrer fall back to the bot landing defaults.
type Pageview struct {
	ClientID  string
	PageURL   string
	Title     string
	Referrer  string
	EventTime time.Time
}

// Event is a custom event / goal hit.
type Event struct {
	ClientID  string
	Name      string
	Value     *float64
	Currency  string
	PageURL   string
	EventTime time.Time
}

// Product is one ecommerce line item.
type Product struct {
	ID       string
	Name     string
	Brand    string
	Category string
	Variant  string
	Price    float64
	Quantity int
}

// Purchase is an ecommerce purchase hit. An empty Products slice gets a
// default subscription line synthesized from Revenue.
type Purchase struct {
	ClientID      string
	TransactionID string
	Revenue       float64
	Currency      string
	Products      []Product
	PageURL       string
	Coupon        string
}

// Client dispatches hits to the collector over HTTP GET with a bounded
// per-call timeout.
type Client struct {
	counterID  string
	token      string
	collectURL string
	brand      string
	pageBase   string
	timeout    time.Duration
	httpClient *fasthttp.Client
}

// New builds a dispatcher from config. A client with an empty counter id or
// token is unconfigured: it stays usable but every send is a logged no-op.
func New(cfg *config.Config) *Client {
	c := &Client{
		counterID:  cfg.MetrikaCounterID,
		token:      cfg.MetrikaToken,
		collectURL: cfg.MetrikaCollectURL,
		brand:      "Your Service",
		pageBase:   "https://t.me/" + cfg.BotUsername,
		timeout:    10 * time.Second,
		httpClient: &fasthttp.Client{},
	}
	if !c.Configured() {
		log.Printf("metrika: not configured, set APP_METRIKA_COUNTER_ID and APP_METRIKA_TOKEN")
	} else {
		log.Printf("metrika: configured for counter %s", c.counterID)
	}
	return c
}

// Configured reports whether both the counter id and the measurement token
// are present.
func (c *Client) Configured() bool {
	return c.counterID != "" && c.token != ""
}

// PageURL builds a page address under the bot landing, e.g. PageURL("purchase").
func (c *Client) PageURL(path string) string {
	if path == "" {
		return c.pageBase
	}
	return c.pageBase + "/" + path
}

// ValidateClientID checks the collector's visitor-token format: non-empty
// after trimming, only digits and dots, digits remain once dots are removed,
// and total length between 10 and 30 characters.
func ValidateClientID(id string) bool {
	clean := strings.TrimSpace(id)
	if clean == "" {
		return false
	}
	if len(clean) < 10 || len(clean) > 30 {
		return false
	}
	digits := 0
	for _, r := range clean {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
		default:
			return false
		}
	}
	return digits > 0
}

// SendPageview sends a pageview hit. Returns false when unconfigured, the
// client id is malformed, or the collector did not accept the hit.
func (c *Client) SendPageview(p Pageview) bool {
	if !c.Configured() {
		log.Printf("metrika: not configured, skipping pageview")
		return false
	}
	if !ValidateClientID(p.ClientID) {
		log.Printf("metrika: invalid client_id format, skipping pageview")
		return false
	}

	if p.PageURL == "" {
		p.PageURL = c.pageBase
	}
	if p.Title == "" {
		p.Title = "Telegram Bot Visit"
	}
	if p.Referrer == "" {
		p.Referrer = "https://yandex.ru"
	}

	params := c.baseParams(p.ClientID, "pageview", p.EventTime)
	params.Set("dr", p.Referrer)
	params.Set("dl", p.PageURL)
	params.Set("dt", p.Title)

	ok := c.send(params, "pageview")
	countSend("pageview", ok)
	return ok
}

// SendEvent sends a custom event / goal hit.
func (c *Client) SendEvent(e Event) bool {
	if !c.Configured() {
		return false
	}
	if !ValidateClientID(e.ClientID) {
		log.Printf("metrika: invalid client_id format, skipping event %s", e.Name)
		return false
	}

	if e.PageURL == "" {
		e.PageURL = c.PageURL("purchase")
	}

	params := c.baseParams(e.ClientID, "event", e.EventTime)
	params.Set("ea", e.Name)
	params.Set("dl", e.PageURL)
	if e.Value != nil {
		params.Set("ev", strconv.Itoa(int(*e.Value)))
		currency := e.Currency
		if currency == "" {
			currency = "RUB"
		}
		params.Set("cu", currency)
	}

	ok := c.send(params, "event")
	countSend("event", ok)
	return ok
}

// SendEcommercePurchase sends a purchase with its line items.
func (c *Client) SendEcommercePurchase(p Purchase) bool {
	if !c.Configured() {
		return false
	}
	if !ValidateClientID(p.ClientID) {
		log.Printf("metrika: invalid client_id format, skipping purchase %s", p.TransactionID)
		return false
	}

	if p.PageURL == "" {
		p.PageURL = c.PageURL("purchase")
	}
	if p.Currency == "" {
		p.Currency = "RUB"
	}

	params := c.baseParams(p.ClientID, "event", time.Time{})
	params.Set("pa", "purchase")
	params.Set("ti", p.TransactionID)
	params.Set("tr", formatAmount(p.Revenue))
	params.Set("cu", p.Currency)
	params.Set("dl", p.PageURL)
	if p.Coupon != "" {
		params.Set("tcc", p.Coupon)
	}

	products := p.Products
	if len(products) == 0 {
		products = []Product{{
			ID:       "subscription",
			Name:     "Subscription",
			Category: "Subscription",
			Variant:  "monthly",
			Price:    p.Revenue,
			Quantity: 1,
		}}
	}
	for i, prod := range products {
		n := strconv.Itoa(i + 1)
		if prod.Brand == "" {
			prod.Brand = c.brand
		}
		if prod.Quantity == 0 {
			prod.Quantity = 1
		}
		if prod.Variant == "" {
			prod.Variant = "monthly"
		}
		params.Set("pr"+n+"id", prod.ID)
		params.Set("pr"+n+"nm", prod.Name)
		params.Set("pr"+n+"br", prod.Brand)
		params.Set("pr"+n+"ca", prod.Category)
		params.Set("pr"+n+"pr", formatAmount(prod.Price))
		params.Set("pr"+n+"qt", strconv.Itoa(prod.Quantity))
		params.Set("pr"+n+"va", prod.Variant)
	}

	ok := c.send(params, "ecommerce_purchase")
	countSend("ecommerce_purchase", ok)
	return ok
}

func (c *Client) baseParams(clientID, hitType string, eventTime time.Time) url.Values {
	if eventTime.IsZero() {
		eventTime = time.Now()
	}
	params := url.Values{}
	params.Set("tid", c.counterID)
	params.Set("cid", strings.TrimSpace(clientID))
	params.Set("t", hitType)
	params.Set("et", strconv.FormatInt(eventTime.Unix(), 10))
	params.Set("ms", c.token)
	return params
}

// send issues a single GET to the collector. Success means HTTP 200; any
// other status, timeout or transport error is logged and reported false.
func (c *Client) send(params url.Values, kind string) bool {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.collectURL + "?" + params.Encode())
	req.Header.SetMethod(fasthttp.MethodGet)

	if err := c.httpClient.DoTimeout(req, resp, c.timeout); err != nil {
		log.Printf("metrika: error sending %s: %v", kind, err)
		return false
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		log.Printf("metrika: failed to send %s: status=%d body=%s",
			kind, resp.StatusCode(), resp.Body())
		return false
	}

	cid := params.Get("cid")
	if len(cid) > 10 {
		cid = cid[:10] + "..."
	}
	log.Printf("metrika: sent %s for client_id %s", kind, cid)
	return true
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
