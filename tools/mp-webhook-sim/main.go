package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// Sends a signed Mercado Pago payment webhook at a local payment-service.
// Useful for exercising the reconciliation path without a real provider.
func main() {
	var (
		baseURL   = flag.String("base-url", getenv("BASE_URL", "http://localhost:8086"), "payment-service base url")
		paymentID = flag.String("payment-id", getenv("MP_PAYMENT_ID", "123456789"), "provider payment id (data.id)")
		ref       = flag.String("ref", getenv("EXTERNAL_REFERENCE", ""), "external_reference query param")
		secret    = flag.String("secret", getenv("MP_WEBHOOK_SECRET", ""), "webhook secret (empty sends unsigned)")
		action    = flag.String("action", getenv("MP_ACTION", "payment.updated"), "webhook action")
	)
	flag.Parse()

	now := time.Now().UTC()
	payload, err := json.Marshal(map[string]any{
		"id":     fmt.Sprintf("wh_%d", now.UnixNano()),
		"type":   "payment",
		"action": *action,
		"data": map[string]any{
			"id": *paymentID,
		},
	})
	if err != nil {
		fatal(err.Error())
	}

	target := strings.TrimRight(*baseURL, "/") + "/api/v1/payments/webhooks/mercadopago"
	if strings.TrimSpace(*ref) != "" {
		target += "?ref=" + *ref
	}

	req, err := http.NewRequest(http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	if strings.TrimSpace(*secret) != "" {
		requestID := fmt.Sprintf("req_%d", now.UnixNano())
		ts := fmt.Sprintf("%d", now.Unix())
		manifest := "id:" + strings.ToLower(*paymentID) + ";request-id:" + requestID + ";ts:" + ts + ";"
		mac := hmac.New(sha256.New, []byte(*secret))
		mac.Write([]byte(manifest))
		req.Header.Set("x-request-id", requestID)
		req.Header.Set("x-signature", "ts="+ts+",v1="+hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()

	fmt.Printf("status=%d\n", resp.StatusCode)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
