package imagestore

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePresigner struct {
	in  *s3.PutObjectInput
	err error
}

func (f *fakePresigner) PresignPutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &v4.PresignedHTTPRequest{URL: "https://signed.example.com/" + *in.Key, Method: "PUT"}, nil
}

func fixedStore(p presigner, cfg Config) *Store {
	s := newStore(p, cfg)
	s.now = func() time.Time { return time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestPresignUpload_KeyAndURLs(t *testing.T) {
	p := &fakePresigner{}
	s := fixedStore(p, Config{Bucket: "listings", Region: "us-east-1", PublicBaseURL: "https://cdn.example.com/"})

	up, err := s.PresignUpload(context.Background(), "user-1", "image/PNG; charset=binary")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(up.Key, "properties/user-1/2024/03/09/"))
	assert.True(t, strings.HasSuffix(up.Key, ".png"))
	assert.Equal(t, "https://signed.example.com/"+up.Key, up.UploadURL)
	assert.Equal(t, "https://cdn.example.com/"+up.Key, up.PublicURL)
	assert.Equal(t, time.Date(2024, 3, 9, 12, 15, 0, 0, time.UTC), up.ExpiresAt)

	assert.Equal(t, "listings", *p.in.Bucket)
	assert.Equal(t, "image/png", *p.in.ContentType)
}

func TestPresignUpload_UnsupportedType(t *testing.T) {
	p := &fakePresigner{}
	s := fixedStore(p, Config{Bucket: "listings"})

	for _, ct := range []string{"image/gif", "application/pdf", ""} {
		_, err := s.PresignUpload(context.Background(), "user-1", ct)
		assert.ErrorIs(t, err, ErrUnsupportedType, ct)
	}
	assert.Nil(t, p.in)
}

func TestPresignUpload_PresignError(t *testing.T) {
	s := fixedStore(&fakePresigner{err: errors.New("boom")}, Config{Bucket: "listings"})

	_, err := s.PresignUpload(context.Background(), "user-1", "image/jpeg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestDefaultPublicBase(t *testing.T) {
	assert.Equal(t, "https://listings.s3.eu-west-1.amazonaws.com",
		defaultPublicBase(Config{Bucket: "listings", Region: "eu-west-1"}))
	assert.Equal(t, "http://minio:9000/listings",
		defaultPublicBase(Config{Bucket: "listings", Endpoint: "http://minio:9000/"}))
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("image/jpeg"))
	assert.True(t, Supported("IMAGE/WEBP"))
	assert.False(t, Supported("image/svg+xml"))
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{Region: "us-east-1"})
	assert.Error(t, err)
}

// 署名はローカルで計算されるため、ネットワークなしで実際のURLを検証できる。
func TestNew_PresignsWithStaticCredentials(t *testing.T) {
	s, err := New(context.Background(), Config{
		Region:       "us-east-1",
		Endpoint:     "http://localhost:9000",
		Bucket:       "listings",
		AccessKey:    "minio",
		SecretKey:    "minio-secret",
		UsePathStyle: true,
	})
	require.NoError(t, err)

	up, err := s.PresignUpload(context.Background(), "user-1", "image/webp")
	require.NoError(t, err)

	u, err := url.Parse(up.UploadURL)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/listings/"+up.Key, u.Path)
	q := u.Query()
	assert.NotEmpty(t, q.Get("X-Amz-Signature"))
	assert.Equal(t, "900", q.Get("X-Amz-Expires"))
	assert.Contains(t, q.Get("X-Amz-Credential"), "minio/")
	assert.Equal(t, "http://localhost:9000/listings/"+up.Key, up.PublicURL)
}
