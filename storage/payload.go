package storage

import (
	"bytes"
	"context"
	"errors"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/pithecene-io/deliorder/log"
	"github.com/pithecene-io/deliorder/metrics"
	"github.com/pithecene-io/deliorder/types"
)

// DefaultPresignTTL matches the package lifetime: a payload link never
// outlives the package that carries it.
const DefaultPresignTTL = types.PackageTTL

// ObjectAPI is the subset of the S3 client the payload store uses.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Presigner signs time-limited GET requests.
type Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// PayloadStore uploads create payloads and hands back presigned links, so
// the registry carries URLs instead of file bytes.
type PayloadStore struct {
	api       ObjectAPI
	presigner Presigner
	bucket    string
	prefix    string
	ttl       time.Duration
	newID     func() string
	logger    *log.Logger
	collector *metrics.Collector
}

// PayloadOption configures a PayloadStore.
type PayloadOption func(*PayloadStore)

// WithPresignTTL overrides the presigned link lifetime.
func WithPresignTTL(ttl time.Duration) PayloadOption {
	return func(s *PayloadStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithPayloadLogger attaches a logger.
func WithPayloadLogger(l *log.Logger) PayloadOption {
	return func(s *PayloadStore) { s.logger = l }
}

// WithPayloadCollector attaches a metrics collector.
func WithPayloadCollector(c *metrics.Collector) PayloadOption {
	return func(s *PayloadStore) { s.collector = c }
}

// NewPayloadStore creates a store writing under bucket/prefix.
func NewPayloadStore(api ObjectAPI, presigner Presigner, bucket, prefix string, opts ...PayloadOption) *PayloadStore {
	s := &PayloadStore{
		api:       api,
		presigner: presigner,
		bucket:    bucket,
		prefix:    prefix,
		ttl:       DefaultPresignTTL,
		newID:     uuid.NewString,
		logger:    log.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewS3PayloadStore builds a PayloadStore from S3 configuration.
func NewS3PayloadStore(ctx context.Context, cfg S3Config, opts ...PayloadOption) (*PayloadStore, error) {
	client, err := NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewPayloadStore(client, s3.NewPresignClient(client), cfg.Bucket, cfg.Prefix, opts...), nil
}

// Upload stores one payload and returns its object key.
func (s *PayloadStore) Upload(ctx context.Context, name string, p *types.Payload) (string, error) {
	if p == nil || len(p.Data) == 0 {
		return "", types.ErrNoPayload
	}
	key := path.Join(s.prefix, s.newID(), name)
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(p.Data),
	}
	if p.MimeType != "" {
		in.ContentType = aws.String(p.MimeType)
	}
	if _, err := s.api.PutObject(ctx, in); err != nil {
		s.collector.IncPayloadUploadFailure()
		return "", WrapError(err, "upload", key)
	}
	s.collector.IncPayloadUpload()
	return key, nil
}

// Presign returns a GET link for key valid for the store's TTL.
func (s *PayloadStore) Presign(ctx context.Context, key string) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", WrapError(err, "presign", key)
	}
	return req.URL, nil
}

// Discard deletes the given objects, returning every failure joined.
func (s *PayloadStore) Discard(ctx context.Context, keys ...string) error {
	var errs []error
	for _, key := range keys {
		_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			errs = append(errs, WrapError(err, "discard", key))
		}
	}
	return errors.Join(errs...)
}

// Offload uploads the embedded payload of every create record and replaces
// it with a presigned link. The input slice is not modified. If any upload
// fails, objects already uploaded are discarded and the error is returned.
func (s *PayloadStore) Offload(ctx context.Context, recs []types.OrderRecord) ([]types.OrderRecord, error) {
	out := make([]types.OrderRecord, len(recs))
	copy(out, recs)

	var uploaded []string
	rollback := func(cause error) error {
		if err := s.Discard(ctx, uploaded...); err != nil {
			s.logger.Warn("payload rollback incomplete", map[string]any{
				"keys":  uploaded,
				"error": err.Error(),
			})
		}
		return cause
	}

	for i := range out {
		rec := &out[i]
		if rec.Action != string(types.ActionCreate) || len(rec.AttachmentData) == 0 {
			continue
		}
		key, err := s.Upload(ctx, rec.AttachmentName, &types.Payload{Data: rec.AttachmentData, MimeType: rec.MimeType})
		if err != nil {
			return nil, rollback(err)
		}
		uploaded = append(uploaded, key)

		link, err := s.Presign(ctx, key)
		if err != nil {
			return nil, rollback(err)
		}
		rec.AttachmentURL = link
		rec.AttachmentData = nil
		s.logger.Debug("payload offloaded", map[string]any{
			"order_index": i,
			"key":         key,
		})
	}
	return out, nil
}
