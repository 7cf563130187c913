package export

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = params
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{ETag: aws.String(`"abc123"`)}, nil
}

func TestPublishStandings(t *testing.T) {
	putter := &fakePutter{}
	publisher := NewPublisher(putter, S3Config{
		Bucket:    "certificates",
		Prefix:    "standings/",
		PublicURL: "https://cdn.dojo.example/files",
	})
	tournamentID := uuid.New()

	res, err := publisher.PublishStandings(context.Background(), tournamentID, map[string]any{"gold": "Aiko"})
	require.NoError(t, err)

	key := "standings/" + tournamentID.String() + "/standings.json"
	assert.Equal(t, key, res.Key)
	assert.Equal(t, "abc123", res.ETag)
	assert.Equal(t, "https://cdn.dojo.example/files/"+key, res.Location)

	assert.Equal(t, "certificates", aws.ToString(putter.input.Bucket))
	assert.Equal(t, key, aws.ToString(putter.input.Key))
	assert.Equal(t, "application/json", aws.ToString(putter.input.ContentType))

	var doc map[string]string
	require.NoError(t, json.Unmarshal(putter.body, &doc))
	assert.Equal(t, "Aiko", doc["gold"])
}

func TestPublishStandingsUploadFailure(t *testing.T) {
	putter := &fakePutter{err: errors.New("access denied")}
	publisher := NewPublisher(putter, S3Config{Bucket: "certificates"})

	_, err := publisher.PublishStandings(context.Background(), uuid.New(), []string{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "access denied")
}

func TestNewS3PublisherRequiresBucket(t *testing.T) {
	_, err := NewS3Publisher(context.Background(), S3Config{})
	assert.ErrorIs(t, err, ErrExportDisabled)
}

func TestNewS3PublisherWithEndpoint(t *testing.T) {
	publisher, err := NewS3Publisher(context.Background(), S3Config{
		Bucket:          "certificates",
		Endpoint:        "http://localhost:9000",
		Region:          "auto",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "standings.json", publisher.Key(uuid.Nil)[len(uuid.Nil.String())+1:])
}
