// Package webhook implements the network side of outbound webhooks: HMAC
// signing of request bodies, a single-attempt HTTP delivery client and the
// retry delay schedule.
//
// The package keeps no state about endpoints or attempts. Persistence, fan-out
// and retry bookkeeping live in modules/webhooks, which calls Client.Deliver
// once per attempt and records the returned Outcome.
//
// # Signing
//
// When a secret is configured each request carries
//
//	X-Webhook-Signature: hex(HMAC-SHA256(secret, body))
//	X-Webhook-Timestamp: <send time in epoch milliseconds>
//
// The signature covers only the exact body bytes, so a retried payload keeps
// the same signature while the timestamp header reflects each send. Receivers
// validate with Verify:
//
//	body, _ := io.ReadAll(r.Body)
//	if err := webhook.Verify(secret, body, r.Header.Get(webhook.HeaderSignature)); err != nil {
//	    http.Error(w, "invalid signature", http.StatusUnauthorized)
//	    return
//	}
//
// # Delivery
//
//	client := webhook.NewClient()
//	out := client.Deliver(ctx, webhook.Request{
//	    URL:     "https://shop.example.com/hooks",
//	    Payload: body,
//	    Secret:  secret,
//	    Timeout: 30 * time.Second,
//	})
//	if !out.Succeeded() {
//	    // out.Err wraps ErrTimeout, ErrTransport, ErrUnexpectedStatus or ErrInvalidRequest
//	}
package webhook
