package service

import (
	"context"
	"fmt"

	"whatshook/internal/constants"
	apperrors "whatshook/internal/errors"
	"whatshook/internal/metrics"
	"whatshook/internal/models"
	"whatshook/internal/privacy"
	"whatshook/internal/tracing"
	"whatshook/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// MessageSender is the slice of the session manager the dispatcher uses
type MessageSender interface {
	SendText(ctx context.Context, recipient, text string) error
	SendImage(ctx context.Context, recipient string, media *types.MediaObject, caption string) error
}

// MediaResolver fetches a remote image for sending
type MediaResolver interface {
	Resolve(ctx context.Context, mediaURL string) (*types.MediaObject, error)
}

// ReplyDispatcher turns a raw reply payload into one or more sends back to
// the originating chat. Media is resolved concurrently up front; the sends
// themselves run strictly in request order, and a failed send aborts the
// remainder of the batch without retrying or rolling back completed sends.
type ReplyDispatcher struct {
	sender   MessageSender
	resolver MediaResolver
	logger   *logrus.Logger
}

// NewReplyDispatcher wires the dispatcher to its collaborators
func NewReplyDispatcher(sender MessageSender, resolver MediaResolver, logger *logrus.Logger) *ReplyDispatcher {
	return &ReplyDispatcher{
		sender:   sender,
		resolver: resolver,
		logger:   logger,
	}
}

// HandleReply decodes, validates and dispatches one reply payload.
// Decode and validation failures carry the validation error code; everything
// past that point is a dispatch failure.
func (d *ReplyDispatcher) HandleReply(ctx context.Context, raw []byte) error {
	req, err := models.DecodeReplyRequest(raw)
	if err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}

	batch := req.SendBatch()

	ctx, span := tracing.StartSpan(ctx, "dispatch_reply",
		attribute.String("reply.recipient", req.From),
		attribute.Int("reply.batch_size", len(batch)),
	)
	defer span.End()

	logger := d.logger.WithFields(logrus.Fields{
		LogFieldRecipient: privacy.MaskPhone(req.From),
		LogFieldBatchSize: len(batch),
	})

	resolved, err := d.resolveBatch(ctx, batch)
	if err != nil {
		tracing.RecordError(ctx, err)
		metrics.IncrementCounter("dispatch_failures_total", nil, "Reply batches that failed to dispatch")
		return err
	}

	for i, item := range batch {
		if item.ImageURL == "" {
			err = d.sender.SendText(ctx, req.From, item.Text)
		} else {
			err = d.sender.SendImage(ctx, req.From, resolved[i], item.Caption)
		}
		if err != nil {
			tracing.RecordError(ctx, err)
			metrics.IncrementCounter("dispatch_failures_total", nil, "Reply batches that failed to dispatch")
			logger.WithError(err).Errorf("Reply send %d of %d failed, aborting remainder", i+1, len(batch))
			return apperrors.Wrap(err, apperrors.ErrCodeDispatch, fmt.Sprintf("reply send %d of %d failed", i+1, len(batch)))
		}
	}

	metrics.IncrementCounter("dispatch_replies_total", nil, "Reply batches dispatched")
	logger.Info("Reply dispatched")
	return nil
}

// resolveBatch fetches every image in the batch concurrently, preserving
// batch order in the result slice. Any fetch failure fails the whole batch
// before a single send happens.
func (d *ReplyDispatcher) resolveBatch(ctx context.Context, batch []models.SendItem) ([]*types.MediaObject, error) {
	resolved := make([]*types.MediaObject, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(constants.MaxConcurrentResolutions)

	for i, item := range batch {
		if item.ImageURL == "" {
			continue
		}
		g.Go(func() error {
			obj, err := d.resolver.Resolve(gctx, item.ImageURL)
			if err != nil {
				return err
			}
			resolved[i] = obj
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDispatch, "failed to resolve reply media")
	}
	return resolved, nil
}
