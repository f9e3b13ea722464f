package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"time"

	"whatshook/internal/constants"
	apperrors "whatshook/internal/errors"
	"whatshook/internal/models"
	"whatshook/pkg/whatsapp/types"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
)

// Bridge moves binary media between the chat transport and the external
// object store
type Bridge interface {
	// HostImage uploads raw image bytes or a data: URI and returns a
	// public URL
	HostImage(ctx context.Context, image []byte) (string, error)
	// Resolve fetches a URL and wraps it as a sendable media object.
	// MIME typing is permissive: the reported type may not match the
	// URL's extension and is never grounds for rejection.
	Resolve(ctx context.Context, mediaURL string) (*types.MediaObject, error)
}

// uploadAPI is the slice of the Cloudinary SDK the bridge uses
type uploadAPI interface {
	Upload(ctx context.Context, file interface{}, uploadParams uploader.UploadParams) (*uploader.UploadResult, error)
}

type bridge struct {
	uploads uploadAPI
	folder  string
	client  *http.Client
}

// NewBridge builds a bridge backed by the configured Cloudinary account
func NewBridge(cfg models.CloudinaryConfig, timeout time.Duration) (Bridge, error) {
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeMedia, "failed to initialize object store client")
	}

	return &bridge{
		uploads: &cld.Upload,
		folder:  cfg.Folder,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (b *bridge) HostImage(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", apperrors.New(apperrors.ErrCodeMedia, "refusing to host empty image")
	}

	// The SDK takes data: URIs as strings and raw bytes as a reader
	var file interface{}
	if bytes.HasPrefix(image, []byte("data:")) {
		file = string(image)
	} else {
		file = bytes.NewReader(image)
	}

	result, err := b.uploads.Upload(ctx, file, uploader.UploadParams{
		Folder:   b.folder,
		PublicID: uuid.NewString(),
	})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeMedia, "object store upload failed").WithContext("bytes", len(image))
	}
	if result.Error.Message != "" {
		return "", apperrors.New(apperrors.ErrCodeMedia, fmt.Sprintf("object store rejected upload: %s", result.Error.Message)).WithContext("bytes", len(image))
	}
	if result.SecureURL == "" {
		return "", apperrors.New(apperrors.ErrCodeMedia, "object store returned no URL").WithContext("bytes", len(image))
	}

	return result.SecureURL, nil
}

func (b *bridge) Resolve(ctx context.Context, mediaURL string) (*types.MediaObject, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeMedia, "invalid media URL").WithContext("url", mediaURL)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeMedia, "failed to fetch media").WithContext("url", mediaURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, apperrors.New(apperrors.ErrCodeMedia, fmt.Sprintf("media fetch returned status %d", resp.StatusCode)).WithContext("url", mediaURL)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeMedia, "failed to read media body").WithContext("url", mediaURL)
	}

	return &types.MediaObject{
		Data:     data,
		MimeType: sniffMimeType(resp.Header.Get("Content-Type"), mediaURL),
		FileName: fileNameFromURL(mediaURL),
	}, nil
}

// sniffMimeType prefers the server-reported type, falls back to the URL
// extension, then to a generic image type. Mismatches between the two are
// tolerated.
func sniffMimeType(contentType, mediaURL string) string {
	if contentType != "" {
		if parsed, _, err := mime.ParseMediaType(contentType); err == nil && parsed != "" {
			return parsed
		}
	}
	if u, err := url.Parse(mediaURL); err == nil {
		if byExt := mime.TypeByExtension(path.Ext(u.Path)); byExt != "" {
			return byExt
		}
	}
	return constants.DefaultImageMimeType
}

func fileNameFromURL(mediaURL string) string {
	u, err := url.Parse(mediaURL)
	if err != nil || path.Base(u.Path) == "/" || path.Base(u.Path) == "." {
		return "media"
	}
	return path.Base(u.Path)
}
