/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/GoogleCloudPlatform/olap-schema-advisor/internal/config"
)

// Sink is a report destination.
type Sink interface {
	Write(ctx context.Context, data []byte, contentType string) error
	String() string
}

// OpenSink resolves a destination: "" or "-" is stdout, s3://bucket/key is
// an S3 object and anything else is a local file path.
func OpenSink(ctx context.Context, dest string, cfg config.ReportConfig) (Sink, error) {
	switch {
	case dest == "" || dest == "-":
		return &WriterSink{W: os.Stdout, Name: "stdout"}, nil
	case strings.HasPrefix(dest, "s3://"):
		bucket, key, err := ParseS3URL(dest)
		if err != nil {
			return nil, err
		}
		return NewS3Sink(ctx, bucket, key, cfg)
	}
	return &FileSink{Path: dest}, nil
}

// WriterSink writes to an io.Writer.
type WriterSink struct {
	W    io.Writer
	Name string
}

func (s *WriterSink) Write(_ context.Context, data []byte, _ string) error {
	_, err := s.W.Write(data)
	return err
}

func (s *WriterSink) String() string { return s.Name }

// FileSink writes to a local file, creating parent directories.
type FileSink struct {
	Path string
}

func (s *FileSink) Write(_ context.Context, data []byte, _ string) error {
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(s.Path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.Path, err)
	}
	return nil
}

func (s *FileSink) String() string { return s.Path }

// putObjectAPI is the part of the S3 client the sink uses.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads the report as a single object.
type S3Sink struct {
	client putObjectAPI
	bucket string
	key    string
}

// NewS3Sink creates an S3 client from the default AWS credential chain.
// A custom endpoint and path-style addressing support MinIO and LocalStack.
func NewS3Sink(ctx context.Context, bucket, key string, cfg config.ReportConfig) (*S3Sink, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.S3Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		})
	}
	if cfg.S3UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	return &S3Sink{client: s3.NewFromConfig(awsCfg, s3Opts...), bucket: bucket, key: key}, nil
}

func (s *S3Sink) Write(ctx context.Context, data []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload report to %s: %w", s, err)
	}
	return nil
}

func (s *S3Sink) String() string { return "s3://" + s.bucket + "/" + s.key }

// ParseS3URL splits s3://bucket/key.
func ParseS3URL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid S3 URL %q: %w", raw, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("invalid S3 URL %q: want s3://bucket/key", raw)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("invalid S3 URL %q: missing object key", raw)
	}
	return u.Host, key, nil
}

// Deliver renders r in format and writes it to sink.
func Deliver(ctx context.Context, sink Sink, r *Report, format string) error {
	var buf bytes.Buffer
	if err := Render(&buf, r, format); err != nil {
		return err
	}
	return sink.Write(ctx, buf.Bytes(), ContentType(format))
}
