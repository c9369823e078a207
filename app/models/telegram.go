package models

import "net/http"

type RoundTripperFunc func(req *http.Request) (*http.Response, error)

func (fn RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return fn(req)
}

// WebhookResponse is the acknowledgement returned to Telegram for every update.
type WebhookResponse struct {
	Status string `json:"status"`
}
