package models

import (
	"encoding/json"
	"fmt"

	apperrors "whatshook/internal/errors"
)

// ReplyRequest is the normalized form of a backend reply. ImageURLs holds
// zero or more image references: a bare-string imageUrl decodes to a
// one-element slice, so single-URL and one-element-array payloads are
// indistinguishable downstream.
type ReplyRequest struct {
	From      string
	Reply     string
	Caption   string
	ImageURLs []string
}

// SendItem is one element of the ordered send batch derived from a reply.
// Exactly one item in a batch carries the caption: the sole text send, or
// the first media item.
type SendItem struct {
	Text     string
	ImageURL string
	Caption  string
}

// rawReply matches the logical fields shared by all accepted payload shapes
type rawReply struct {
	From     string          `json:"from"`
	Reply    string          `json:"reply"`
	Caption  string          `json:"caption"`
	ImageURL json.RawMessage `json:"imageUrl"`
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

// DecodeReplyRequest unwraps a reply payload through the accepted shapes:
// a JSON string containing an object, an envelope whose data field is a
// string-encoded object, an envelope whose data field is an object, or a
// bare object. Payloads mixing an envelope with top-level reply fields are
// ambiguous and rejected rather than coerced.
func DecodeReplyRequest(body []byte) (*ReplyRequest, error) {
	// Shape 1: the whole body is a JSON string wrapping an object
	var asString string
	if err := json.Unmarshal(body, &asString); err == nil {
		return decodeReplyObject([]byte(asString))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "reply payload is not valid JSON")
	}

	if len(env.Data) > 0 && string(env.Data) != "null" {
		if hasReplyFields(body) {
			return nil, apperrors.New(apperrors.ErrCodeValidation, "ambiguous reply payload: both data envelope and top-level fields present")
		}

		// Shape 2: envelope with a string-encoded data field
		var dataString string
		if err := json.Unmarshal(env.Data, &dataString); err == nil {
			return decodeReplyObject([]byte(dataString))
		}

		// Shape 3: envelope with an object data field
		return decodeReplyObject(env.Data)
	}

	// Shape 4: bare object
	return decodeReplyObject(body)
}

func decodeReplyObject(data []byte) (*ReplyRequest, error) {
	var raw rawReply
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "reply payload is not a JSON object")
	}

	urls, err := decodeImageURL(raw.ImageURL)
	if err != nil {
		return nil, err
	}

	return &ReplyRequest{
		From:      raw.From,
		Reply:     raw.Reply,
		Caption:   raw.Caption,
		ImageURLs: urls,
	}, nil
}

// decodeImageURL accepts an absent value, a single URL string, or an
// ordered array of URL strings
func decodeImageURL(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}, nil
	}

	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return many, nil
	}

	return nil, apperrors.New(apperrors.ErrCodeValidation, fmt.Sprintf("imageUrl must be a string or an array of strings, got %s", string(raw)))
}

func hasReplyFields(body []byte) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	for _, field := range []string{"from", "reply", "imageUrl", "caption"} {
		if _, ok := probe[field]; ok {
			return true
		}
	}
	return false
}

// Validate enforces the reply contract: a target recipient plus at least
// one of reply text or an image reference.
func (r *ReplyRequest) Validate() error {
	if r.From == "" {
		return apperrors.New(apperrors.ErrCodeValidation, "missing required field: from")
	}
	if r.Reply == "" && len(r.ImageURLs) == 0 {
		return apperrors.New(apperrors.ErrCodeValidation, "reply must contain text or an image reference")
	}
	return nil
}

// CaptionText resolves the caption attached to the first media send:
// caption when present, otherwise the reply text, otherwise empty.
func (r *ReplyRequest) CaptionText() string {
	if r.Caption != "" {
		return r.Caption
	}
	return r.Reply
}

// SendBatch derives the ordered send batch for this reply. Order follows
// the image reference order; only the first media item carries the caption.
func (r *ReplyRequest) SendBatch() []SendItem {
	if len(r.ImageURLs) == 0 {
		return []SendItem{{Text: r.Reply}}
	}

	batch := make([]SendItem, 0, len(r.ImageURLs))
	for i, url := range r.ImageURLs {
		item := SendItem{ImageURL: url}
		if i == 0 {
			item.Caption = r.CaptionText()
		}
		batch = append(batch, item)
	}
	return batch
}
