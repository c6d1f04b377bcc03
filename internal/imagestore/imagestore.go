// Package imagestore は物件画像をS3互換ストレージへ直接アップロードするための
// 署名付きURLを発行する。
package imagestore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// DefaultExpires は署名付きURLの有効期間の既定値。
const DefaultExpires = 15 * time.Minute

// ErrUnsupportedType は受け付けない画像形式を表す。
var ErrUnsupportedType = errors.New("unsupported image content type")

// extensions は受け付ける画像形式と保存時の拡張子。
var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Config はストレージ接続の設定。
// AccessKeyが空の場合はAWS SDKの既定の認証情報チェーンを使用する。
type Config struct {
	Region        string
	Endpoint      string
	Bucket        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
	UsePathStyle  bool
	Expires       time.Duration
}

// Upload は発行した署名付きアップロードの情報。
type Upload struct {
	Key       string
	UploadURL string
	PublicURL string
	ExpiresAt time.Time
}

type presigner interface {
	PresignPutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Store は署名付きURLの発行を行う。
type Store struct {
	presign    presigner
	bucket     string
	publicBase string
	expires    time.Duration
	now        func() time.Time
}

// New はConfigからStoreを生成する。署名はローカルで行うため接続は確認しない。
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("image bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return newStore(s3.NewPresignClient(client), cfg), nil
}

func newStore(p presigner, cfg Config) *Store {
	expires := cfg.Expires
	if expires <= 0 {
		expires = DefaultExpires
	}
	publicBase := strings.TrimRight(cfg.PublicBaseURL, "/")
	if publicBase == "" {
		publicBase = defaultPublicBase(cfg)
	}
	return &Store{
		presign:    p,
		bucket:     cfg.Bucket,
		publicBase: publicBase,
		expires:    expires,
		now:        time.Now,
	}
}

func defaultPublicBase(cfg Config) string {
	if cfg.Endpoint != "" {
		return strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
}

// Supported は画像形式が受け付け可能かを返す。
func Supported(contentType string) bool {
	_, ok := extensions[normalizeType(contentType)]
	return ok
}

func normalizeType(contentType string) string {
	ct, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(ct))
}

// PresignUpload は所有者ごとのキーに対する署名付きPUT URLを発行する。
// 元のファイル名は使用せず、形式に応じた拡張子を付けたランダムなキーを割り当てる。
func (s *Store) PresignUpload(ctx context.Context, ownerID, contentType string) (*Upload, error) {
	contentType = normalizeType(contentType)
	ext, ok := extensions[contentType]
	if !ok {
		return nil, ErrUnsupportedType
	}

	now := s.now().UTC()
	key := path.Join("properties", ownerID, now.Format("2006/01/02"), uuid.NewString()+ext)

	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.expires))
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}

	return &Upload{
		Key:       key,
		UploadURL: req.URL,
		PublicURL: s.publicBase + "/" + key,
		ExpiresAt: now.Add(s.expires),
	}, nil
}
