package models

import "time"

// AccessToken is an opaque bearer token with a fixed validity window.
// Tokens are fetched fresh for every relay call and never cached.
type AccessToken struct {
	Value     string
	IssuedAt  time.Time
	ExpiresIn time.Duration
}

// WebhookPayload is the JSON body POSTed to the backend webhook for every
// relayed inbound message. ImageURL and Mimetype are set only for media
// messages; Text carries the caption for media and the body otherwise.
type WebhookPayload struct {
	From        string `json:"from"`
	Text        string `json:"text"`
	ImageURL    string `json:"imageUrl,omitempty"`
	Mimetype    string `json:"mimetype,omitempty"`
	AccessToken string `json:"accessToken"`
	Timestamp   int64  `json:"timestamp"`
}
