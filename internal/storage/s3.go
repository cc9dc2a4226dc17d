package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3 user metadata must be ASCII, so the URL is query-escaped on write.
const s3MetadataURL = "url"

type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

type S3Backend struct {
	client   *s3.S3
	uploader *s3manager.Uploader
	bucket   string
}

func NewS3Backend(cfg S3Config) (*S3Backend, error) {
	awsConfig := &aws.Config{
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(true),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, err
	}
	return newS3Backend(sess, cfg.Bucket), nil
}

func newS3Backend(sess *session.Session, bucket string) *S3Backend {
	return &S3Backend{
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
		bucket:   bucket,
	}
}

func (s *S3Backend) Head(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Put streams body to S3. The uploader only buffers one part at a time, so
// large bodies are never held in memory whole.
func (s *S3Backend) Put(ctx context.Context, key string, body io.Reader, size int64, meta Metadata) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]*string{
			s3MetadataURL: aws.String(url.QueryEscape(meta.URL)),
		},
	})
	return err
}

func (s *S3Backend) Get(ctx context.Context, key string) (*StoredObject, bool, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, false, nil
		}
		return nil, false, err
	}

	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return &StoredObject{
		Key:  key,
		URL:  s3URLMetadata(out.Metadata),
		Size: size,
		Body: out.Body,
	}, true, nil
}

// HeadObject has no response body, so a missing key only shows up as a 404.
func isS3NotFound(err error) bool {
	var rf awserr.RequestFailure
	if errors.As(err, &rf) && rf.StatusCode() == http.StatusNotFound {
		return true
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case "NotFound", s3.ErrCodeNoSuchKey:
			return true
		}
	}
	return false
}

// The SDK canonicalizes metadata keys as header names.
func s3URLMetadata(md map[string]*string) string {
	for k, v := range md {
		if !strings.EqualFold(k, s3MetadataURL) {
			continue
		}
		raw := aws.StringValue(v)
		if u, err := url.QueryUnescape(raw); err == nil {
			return u
		}
		return raw
	}
	return ""
}
