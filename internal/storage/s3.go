package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
)

// S3Client stores blobs in an S3-compatible bucket. The object ETag is the
// revision token and conditional writes give the same create/replace contract
// as the content APIs. Buckets keep no history, so commit messages are dropped.
type S3Client struct {
	client     *s3.Client
	presign    *s3.PresignClient
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucket     string
	publicBase string
	presignTTL time.Duration
	logger     *logrus.Entry
}

func NewS3Client(client *s3.Client, bucket string, opts Options) *S3Client {
	ttl := opts.PresignTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &S3Client{
		client:     client,
		presign:    s3.NewPresignClient(client),
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		bucket:     bucket,
		publicBase: strings.TrimRight(opts.S3PublicBase, "/"),
		presignTTL: ttl,
		logger:     opts.logger().WithFields(logrus.Fields{"provider": "s3", "bucket": bucket}),
	}
}

func (s *S3Client) Stat(ctx context.Context, key string) (*Entry, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classifyS3("stat "+key, err)
	}
	return &Entry{
		Name:     path.Base(key),
		Path:     key,
		Type:     EntryTypeFile,
		Revision: trimETag(aws.ToString(out.ETag)),
		Size:     aws.ToInt64(out.ContentLength),
	}, nil
}

func (s *S3Client) Get(ctx context.Context, key string) (*File, error) {
	entry, err := s.Stat(ctx, key)
	if err != nil {
		return nil, err
	}

	buf := manager.NewWriteAtBuffer(make([]byte, 0, entry.Size))
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if entry.Revision != "" {
		input.IfMatch = aws.String(`"` + entry.Revision + `"`)
	}
	n, err := s.downloader.Download(ctx, buf, input)
	if err != nil {
		return nil, classifyS3("get "+key, err)
	}
	entry.Size = n
	return &File{Entry: *entry, Content: buf.Bytes()[:n]}, nil
}

func (s *S3Client) List(ctx context.Context, dir string) ([]Entry, error) {
	prefix := strings.Trim(dir, "/")
	if prefix != "" {
		prefix += "/"
	}
	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	}

	var entries []Entry
	for {
		output, err := s.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, classifyS3("list "+dir, err)
		}

		for _, obj := range output.Contents {
			key := aws.ToString(obj.Key)
			if key == prefix {
				continue
			}
			entries = append(entries, Entry{
				Name:     path.Base(key),
				Path:     key,
				Type:     EntryTypeFile,
				Revision: trimETag(aws.ToString(obj.ETag)),
				Size:     aws.ToInt64(obj.Size),
			})
		}
		for _, cp := range output.CommonPrefixes {
			p := strings.TrimSuffix(aws.ToString(cp.Prefix), "/")
			entries = append(entries, Entry{Name: path.Base(p), Path: p, Type: EntryTypeDir})
		}

		if !aws.ToBool(output.IsTruncated) || output.NextContinuationToken == nil {
			break
		}
		input.ContinuationToken = output.NextContinuationToken
	}
	return entries, nil
}

func (s *S3Client) Put(ctx context.Context, key string, content []byte, opts PutOptions) (*PutResult, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(mimetype.Detect(content).String()),
	}
	if opts.Revision == "" {
		input.IfNoneMatch = aws.String("*")
	} else {
		input.IfMatch = aws.String(`"` + opts.Revision + `"`)
	}

	out, err := s.uploader.Upload(ctx, input)
	if err != nil {
		return nil, classifyS3("put "+key, err)
	}
	raw, err := s.RawURL(ctx, key)
	if err != nil {
		return nil, err
	}
	s.logger.WithField("key", key).Debug("wrote object")
	return &PutResult{
		Revision: trimETag(aws.ToString(out.ETag)),
		RawURL:   raw,
	}, nil
}

func (s *S3Client) Delete(ctx context.Context, key, revision, _ string) error {
	input := &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if revision != "" {
		input.IfMatch = aws.String(`"` + revision + `"`)
	}
	if _, err := s.client.DeleteObject(ctx, input); err != nil {
		return classifyS3("delete "+key, err)
	}
	return nil
}

func (s *S3Client) RawURL(ctx context.Context, key string) (string, error) {
	if s.publicBase != "" {
		return s.publicBase + "/" + escapePath(key), nil
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.presignTTL))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}

func classifyS3(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return networkError(op, err)
	}

	status := 0
	var withStatus interface{ HTTPStatusCode() int }
	if errors.As(err, &withStatus) {
		status = withStatus.HTTPStatusCode()
	}
	message := apiErr.ErrorMessage()
	if message == "" {
		message = apiErr.ErrorCode()
	}

	switch apiErr.ErrorCode() {
	case "NoSuchKey", "NotFound", "NoSuchBucket":
		status = http.StatusNotFound
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
		status = http.StatusForbidden
	case "PreconditionFailed", "ConditionalRequestConflict":
		status = http.StatusPreconditionFailed
	}
	return fmt.Errorf("%s: %w", op, classifyStatus(status, message))
}

func trimETag(etag string) string {
	return strings.Trim(etag, `"`)
}

var _ Client = (*S3Client)(nil)
