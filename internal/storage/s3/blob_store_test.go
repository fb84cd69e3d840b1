package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/inc-submissions-harvester/internal/submission"
)

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

func (m *mockAPI) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.GetObjectOutput)
	return out, args.Error(1)
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	api := &mockAPI{}
	var body string
	api.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return aws.ToString(in.Bucket) == "harvest" &&
			aws.ToString(in.Key) == "snapshots/metadata_session_3.json" &&
			aws.ToString(in.ContentType) == "application/json"
	})).Run(func(args mock.Arguments) {
		in := args.Get(1).(*s3.PutObjectInput)
		data, _ := io.ReadAll(in.Body)
		body = string(data)
	}).Return(&s3.PutObjectOutput{}, nil)

	store := newWithClient(api, "harvest")
	uri, err := store.PutObject(context.Background(), `snapshots\metadata_session_3.json`, "application/json", bytes.NewReader([]byte("{}")))
	require.NoError(t, err)
	assert.Equal(t, "s3://harvest/snapshots/metadata_session_3.json", uri)
	assert.Equal(t, "{}", body)
	api.AssertExpectations(t)
}

func TestPutObjectErrors(t *testing.T) {
	t.Parallel()

	api := &mockAPI{}
	api.On("PutObject", mock.Anything, mock.Anything).Return(nil, errors.New("denied"))
	store := newWithClient(api, "harvest")

	_, err := store.PutObject(context.Background(), "", "", bytes.NewReader(nil))
	require.ErrorContains(t, err, "path is required")

	_, err = store.PutObject(context.Background(), "a.json", "", bytes.NewReader(nil))
	require.ErrorContains(t, err, "denied")
}

func TestGetObject(t *testing.T) {
	t.Parallel()

	api := &mockAPI{}
	api.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return aws.ToString(in.Key) == "a.json"
	})).Return(&s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte("payload")))}, nil)
	api.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return aws.ToString(in.Key) == "missing.json"
	})).Return(nil, &types.NoSuchKey{})

	store := newWithClient(api, "harvest")
	got, err := store.GetObject(context.Background(), "/a.json")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	_, err = store.GetObject(context.Background(), "missing.json")
	require.ErrorIs(t, err, submission.ErrObjectNotFound)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{Region: "us-east-1"})
	require.ErrorContains(t, err, "bucket")
	_, err = New(context.Background(), Config{Bucket: "b"})
	require.ErrorContains(t, err, "region")

	store, err := New(context.Background(), Config{
		Bucket: "b", Region: "us-east-1", Endpoint: "http://localhost:9000",
		AccessKeyID: "k", SecretAccessKey: "s", UsePathStyle: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "b", store.bucket)
}
