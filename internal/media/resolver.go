// Package media turns stored attachment keys into URLs a publish channel can
// hand to a platform API. Oversized images are downscaled once into a
// rendition object; everything else is presigned as-is.
package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/disintegration/imaging"

	"content-automation-pipeline/internal/config"
)

// Resolver serves publish-ready media URLs backed by an S3 bucket.
type Resolver struct {
	client     *s3.Client
	presigner  *s3.PresignClient
	bucket     string
	maxWidth   int
	presignTTL time.Duration
}

// NewResolver builds the resolver from config. MediaS3Bucket must be set.
func NewResolver(ctx context.Context, cfg config.Config) (*Resolver, error) {
	if cfg.MediaS3Bucket == "" {
		return nil, fmt.Errorf("media bucket not configured")
	}
	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	ttl := cfg.MediaPresignTTL
	if ttl == 0 {
		ttl = time.Hour
	}
	maxWidth := cfg.SocialMaxImageWidth
	if maxWidth == 0 {
		maxWidth = 1600
	}
	return &Resolver{
		client:     client,
		presigner:  s3.NewPresignClient(client),
		bucket:     cfg.MediaS3Bucket,
		maxWidth:   maxWidth,
		presignTTL: ttl,
	}, nil
}

func newS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.MediaS3Region),
	}
	if cfg.MediaS3Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               cfg.MediaS3Endpoint,
					HostnameImmutable: cfg.MediaS3PathStyle,
					SigningRegion:     cfg.MediaS3Region,
					Source:            aws.EndpointSourceCustom,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.MediaS3PathStyle
	}), nil
}

// Resolve returns a presigned GET URL for the attachment. Images wider than
// the platform limit are downscaled into a rendition object first; the
// rendition is reused on later resolves.
func (r *Resolver) Resolve(ctx context.Context, key string) (string, error) {
	rendition := RenditionKey(key)

	// A prior resolve may already have produced the rendition.
	if _, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(rendition),
	}); err == nil {
		return r.presign(ctx, rendition)
	}

	obj, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("fetch media %s: %w", key, err)
	}
	defer obj.Body.Close()

	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return "", fmt.Errorf("read media %s: %w", key, err)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		// Not an image; hand over the original untouched.
		return r.presign(ctx, key)
	}
	if img.Bounds().Dx() <= r.maxWidth {
		return r.presign(ctx, key)
	}

	resized := imaging.Resize(img, r.maxWidth, 0, imaging.Lanczos)
	var buf bytes.Buffer
	encFormat, contentType := encodingFor(format)
	if err := imaging.Encode(&buf, resized, encFormat); err != nil {
		return "", fmt.Errorf("encode rendition: %w", err)
	}

	if _, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(rendition),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String(contentType),
	}); err != nil {
		return "", fmt.Errorf("store rendition %s: %w", rendition, err)
	}
	return r.presign(ctx, rendition)
}

func (r *Resolver) presign(ctx context.Context, key string) (string, error) {
	req, err := r.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(r.presignTTL))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}

// RenditionKey names the downscaled copy of an attachment.
func RenditionKey(key string) string {
	dir, file := path.Split(key)
	ext := path.Ext(file)
	base := strings.TrimSuffix(file, ext)
	return dir + "renditions/" + base + "_social" + ext
}

func encodingFor(format string) (imaging.Format, string) {
	if format == "png" {
		return imaging.PNG, "image/png"
	}
	return imaging.JPEG, "image/jpeg"
}
