package inbox

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"receipt-ledger-go/internal/models"
)

// ErrNoAttachment is returned when every resolution strategy came back
// empty. Absence of a receipt is a normal outcome (spam, plain mail),
// not an operational error.
var ErrNoAttachment = errors.New("no attachment found for message")

// notFoundRetries is how many extra attempts a per-stub fetch gets when
// the provider answers 404 before the file has materialized.
const notFoundRetries = 3

// notFoundRetryDelay is the fixed wait between those attempts.
const notFoundRetryDelay = 500 * time.Millisecond

// AttachmentLister is the provider's first-class client surface. When
// the provider SDK is available it is tried before the raw REST
// fallback.
type AttachmentLister interface {
	ListAttachments(ctx context.Context, emailID string) ([]models.Attachment, error)
}

// Resolver obtains a confirmed list of attachments for a message,
// tolerating the provider's eventual consistency by falling back
// through three strategies in strict order.
type Resolver struct {
	sdk    AttachmentLister
	client *Client

	// newBackOff builds the per-stub retry policy. Tests replace it to
	// run without the fixed delay.
	newBackOff func() backoff.BackOff
}

// NewResolver creates a new attachment resolver. The sdk lister may be
// nil, in which case resolution starts at the REST listing strategy.
func NewResolver(sdk AttachmentLister, client *Client) *Resolver {
	return NewResolverWithBackOff(sdk, client, func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(notFoundRetryDelay), notFoundRetries)
	})
}

// NewResolverWithBackOff creates a resolver with a custom per-stub
// retry policy. Tests use this to run without the fixed delay.
func NewResolverWithBackOff(sdk AttachmentLister, client *Client, newBackOff func() backoff.BackOff) *Resolver {
	return &Resolver{
		sdk:        sdk,
		client:     client,
		newBackOff: newBackOff,
	}
}

// Resolve tries each strategy in order and returns the first non-empty
// attachment list. All strategies empty yields ErrNoAttachment.
func (r *Resolver) Resolve(ctx context.Context, messageID string, stubs []models.AttachmentStub) ([]models.Attachment, error) {
	strategies := []struct {
		name string
		run  func(context.Context) []models.Attachment
	}{
		{"sdk-list", func(ctx context.Context) []models.Attachment {
			return r.viaSDK(ctx, messageID)
		}},
		{"rest-list", func(ctx context.Context) []models.Attachment {
			return r.viaREST(ctx, messageID)
		}},
		{"stub-fetch", func(ctx context.Context) []models.Attachment {
			return r.viaStubs(ctx, messageID, stubs)
		}},
	}

	for _, strategy := range strategies {
		attachments := strategy.run(ctx)
		if len(attachments) > 0 {
			logrus.Infof("Resolved %d attachment(s) for message %s via %s", len(attachments), messageID, strategy.name)
			return attachments, nil
		}
		logrus.Debugf("Strategy %s yielded no attachments for message %s", strategy.name, messageID)
	}

	return nil, ErrNoAttachment
}

// viaSDK asks the first-class client for the full attachment list. Any
// error aborts the strategy without retrying.
func (r *Resolver) viaSDK(ctx context.Context, messageID string) []models.Attachment {
	if r.sdk == nil {
		return nil
	}

	attachments, err := r.sdk.ListAttachments(ctx, messageID)
	if err != nil {
		logrus.Warnf("SDK attachment listing failed for message %s: %v", messageID, err)
		return nil
	}
	return attachments
}

// viaREST hits the raw listing endpoint. A non-success status is
// treated as "no data", not as an error.
func (r *Resolver) viaREST(ctx context.Context, messageID string) []models.Attachment {
	attachments, err := r.client.ListAttachments(ctx, messageID)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			logrus.Debugf("REST attachment listing for message %s returned status %d", messageID, se.Status)
		} else {
			logrus.Warnf("REST attachment listing failed for message %s: %v", messageID, err)
		}
		return nil
	}
	return attachments
}

// viaStubs fetches each event-supplied stub individually. Stubs are
// independent: one failing or never materializing does not abort the
// rest. Only results carrying a download URL are kept.
func (r *Resolver) viaStubs(ctx context.Context, messageID string, stubs []models.AttachmentStub) []models.Attachment {
	var attachments []models.Attachment

	for _, stub := range stubs {
		att, err := r.fetchStub(ctx, messageID, stub.ID)
		if err != nil {
			logrus.Warnf("Giving up on attachment %s of message %s: %v", stub.ID, messageID, err)
			continue
		}
		if att.DownloadURL == "" {
			logrus.Debugf("Attachment %s of message %s has no download URL yet, dropping", stub.ID, messageID)
			continue
		}
		attachments = append(attachments, *att)
	}

	return attachments
}

// fetchStub retrieves one attachment record, retrying only on 404 —
// the provider's way of saying the file is not ready yet. Any other
// failure is terminal for the stub.
func (r *Resolver) fetchStub(ctx context.Context, messageID, attachmentID string) (*models.Attachment, error) {
	var result *models.Attachment

	operation := func() error {
		att, err := r.client.GetAttachment(ctx, messageID, attachmentID)
		if err != nil {
			if IsNotFound(err) {
				logrus.Debugf("Attachment %s of message %s not materialized yet, retrying", attachmentID, messageID)
				return err
			}
			return backoff.Permanent(err)
		}
		result = att
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(r.newBackOff(), ctx)); err != nil {
		return nil, err
	}
	return result, nil
}

// imageExtensions are the filename extensions accepted by the
// selection rule.
var imageExtensions = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"webp": true,
}

// SelectImage applies the selection rule to a resolved attachment
// list: the first attachment whose filename has an image extension or
// whose content type starts with "image/" wins. Returns nil when no
// attachment qualifies.
func SelectImage(attachments []models.Attachment) *models.Attachment {
	for i := range attachments {
		att := &attachments[i]
		if hasImageExtension(att.Filename) || hasImageContentType(att.ContentType) {
			return att
		}
	}
	return nil
}

func hasImageExtension(filename string) bool {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 || idx == len(filename)-1 {
		return false
	}
	return imageExtensions[strings.ToLower(filename[idx+1:])]
}

func hasImageContentType(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(contentType), "image/")
}
