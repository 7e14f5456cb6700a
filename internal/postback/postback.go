// Package postback notifies a separate attribution partner about installs
// and purchases. Same dispatch shape as the collector client, different
// endpoint and parameter set.
package postback

import (
	"log"
	"net/url"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	"metrikabridge/internal/config"
)

// Client sends tracker postbacks over HTTP GET.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *fasthttp.Client
}

// New builds a postback client. An empty postback URL disables sending.
func New(cfg *config.Config) *Client {
	if cfg.PostbackURL == "" {
		log.Printf("postback: no APP_POSTBACK_URL configured, postbacks disabled")
	}
	return &Client{
		baseURL:    cfg.PostbackURL,
		timeout:    10 * time.Second,
		httpClient: &fasthttp.Client{},
	}
}

// Enabled reports whether a postback endpoint is configured.
func (c *Client) Enabled() bool { return c.baseURL != "" }

// SendInstall reports a lead (first tracked visit) for the given subid.
func (c *Client) SendInstall(subid string) bool {
	if subid == "" {
		log.Printf("postback: cannot send install, subid is empty")
		return false
	}
	params := url.Values{}
	params.Set("subid", subid)
	params.Set("status", "lead")
	return c.send(params, "install")
}

// SendPurchase reports a sale with its payout for the given subid.
func (c *Client) SendPurchase(subid string, payout float64) bool {
	if subid == "" {
		log.Printf("postback: cannot send purchase, subid is empty")
		return false
	}
	params := url.Values{}
	params.Set("subid", subid)
	params.Set("status", "sale")
	params.Set("payout", strconv.FormatFloat(payout, 'f', -1, 64))
	return c.send(params, "purchase")
}

func (c *Client) send(params url.Values, event string) bool {
	if !c.Enabled() {
		return false
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + "?" + params.Encode())
	req.Header.SetMethod(fasthttp.MethodGet)

	if err := c.httpClient.DoTimeout(req, resp, c.timeout); err != nil {
		log.Printf("postback: error sending %s: %v", event, err)
		return false
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		log.Printf("postback: failed to send %s: status=%d body=%s",
			event, resp.StatusCode(), resp.Body())
		return false
	}

	log.Printf("postback: sent %s for subid %s", event, params.Get("subid"))
	return true
}
