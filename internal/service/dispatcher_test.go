package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	apperrors "whatshook/internal/errors"
	"whatshook/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentCall struct {
	kind      string
	recipient string
	text      string
	caption   string
	fileName  string
}

type fakeSender struct {
	mu     sync.Mutex
	calls  []sentCall
	failAt int // 1-based send index that fails, 0 for never
}

func (f *fakeSender) SendText(ctx context.Context, recipient, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sentCall{kind: "text", recipient: recipient, text: text})
	if f.failAt == len(f.calls) {
		return assert.AnError
	}
	return nil
}

func (f *fakeSender) SendImage(ctx context.Context, recipient string, media *types.MediaObject, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := sentCall{kind: "image", recipient: recipient, caption: caption}
	if media != nil {
		call.fileName = media.FileName
	}
	f.calls = append(f.calls, call)
	if f.failAt == len(f.calls) {
		return assert.AnError
	}
	return nil
}

type fakeResolver struct {
	err error
}

func (f *fakeResolver) Resolve(ctx context.Context, mediaURL string) (*types.MediaObject, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &types.MediaObject{
		Data:     []byte("bytes:" + mediaURL),
		MimeType: "image/png",
		FileName: mediaURL,
	}, nil
}

func newTestDispatcher(sender *fakeSender, resolver *fakeResolver) *ReplyDispatcher {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewReplyDispatcher(sender, resolver, logger)
}

func TestHandleReplyText(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(sender, &fakeResolver{})

	err := d.HandleReply(t.Context(), []byte(`{"from":"15551234567","reply":"on my way"}`))
	require.NoError(t, err)

	require.Len(t, sender.calls, 1)
	assert.Equal(t, sentCall{kind: "text", recipient: "15551234567", text: "on my way"}, sender.calls[0])
}

func TestHandleReplyGalleryCaptionOnFirstOnly(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(sender, &fakeResolver{})

	raw := []byte(`{"from":"15551234567","caption":"vacation","imageUrl":["https://img/a.png","https://img/b.png","https://img/c.png"]}`)
	require.NoError(t, d.HandleReply(t.Context(), raw))

	require.Len(t, sender.calls, 3)
	assert.Equal(t, "vacation", sender.calls[0].caption)
	assert.Equal(t, "", sender.calls[1].caption)
	assert.Equal(t, "", sender.calls[2].caption)

	// sends follow the reference order even though resolution is concurrent
	assert.Equal(t, "https://img/a.png", sender.calls[0].fileName)
	assert.Equal(t, "https://img/b.png", sender.calls[1].fileName)
	assert.Equal(t, "https://img/c.png", sender.calls[2].fileName)
}

func TestHandleReplySingleImageCaptionFallsBackToReply(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(sender, &fakeResolver{})

	raw := []byte(`{"from":"15551234567","reply":"see attached","imageUrl":"https://img/a.png"}`)
	require.NoError(t, d.HandleReply(t.Context(), raw))

	require.Len(t, sender.calls, 1)
	assert.Equal(t, "image", sender.calls[0].kind)
	assert.Equal(t, "see attached", sender.calls[0].caption)
}

func TestHandleReplyStringAndArrayImageURLAreEquivalent(t *testing.T) {
	asString := []byte(`{"from":"15551234567","imageUrl":"https://img/a.png"}`)
	asArray := []byte(`{"from":"15551234567","imageUrl":["https://img/a.png"]}`)

	s1 := &fakeSender{}
	require.NoError(t, newTestDispatcher(s1, &fakeResolver{}).HandleReply(t.Context(), asString))

	s2 := &fakeSender{}
	require.NoError(t, newTestDispatcher(s2, &fakeResolver{}).HandleReply(t.Context(), asArray))

	assert.Equal(t, s1.calls, s2.calls)
}

func TestHandleReplyEnvelopeShapes(t *testing.T) {
	bare := []byte(`{"from":"15551234567","reply":"hi"}`)
	shapes := [][]byte{
		bare,
		[]byte(`{"data":{"from":"15551234567","reply":"hi"}}`),
		[]byte(fmt.Sprintf(`{"data":%q}`, bare)),
		[]byte(fmt.Sprintf(`%q`, bare)),
	}

	var expected []sentCall
	for i, raw := range shapes {
		sender := &fakeSender{}
		require.NoError(t, newTestDispatcher(sender, &fakeResolver{}).HandleReply(t.Context(), raw), "shape %d", i)
		if expected == nil {
			expected = sender.calls
		}
		assert.Equal(t, expected, sender.calls, "shape %d", i)
	}
}

func TestHandleReplyValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not JSON", raw: `{{`},
		{name: "missing from", raw: `{"reply":"hi"}`},
		{name: "no content", raw: `{"from":"15551234567"}`},
		{name: "imageUrl wrong type", raw: `{"from":"15551234567","imageUrl":42}`},
		{name: "ambiguous envelope", raw: `{"data":{"from":"1"},"from":"2","reply":"hi"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			d := newTestDispatcher(sender, &fakeResolver{})

			err := d.HandleReply(t.Context(), []byte(tt.raw))
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrCodeValidation, apperrors.GetCode(err))
			assert.Empty(t, sender.calls)
		})
	}
}

func TestHandleReplySendFailureAbortsRemainder(t *testing.T) {
	sender := &fakeSender{failAt: 2}
	d := newTestDispatcher(sender, &fakeResolver{})

	raw := []byte(`{"from":"15551234567","imageUrl":["https://img/a.png","https://img/b.png","https://img/c.png"]}`)
	err := d.HandleReply(t.Context(), raw)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeDispatch, apperrors.GetCode(err))

	// the first send stands, the second failed, the third never happens
	assert.Len(t, sender.calls, 2)
}

func TestHandleReplyResolveFailureBlocksAllSends(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(sender, &fakeResolver{err: assert.AnError})

	raw := []byte(`{"from":"15551234567","imageUrl":["https://img/a.png","https://img/b.png"]}`)
	err := d.HandleReply(t.Context(), raw)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeDispatch, apperrors.GetCode(err))
	assert.Empty(t, sender.calls)
}
