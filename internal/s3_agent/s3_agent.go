package s3_agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// ProbeKey is the object looked up by ProbeAnonymousRead. It is not expected to exist.
const ProbeKey = "test"

var ErrUnexpectedStatus = errors.New("unexpected probe status")

// S3Agent wraps the s3.S3 structure to allow for wrapper methods
type S3Agent struct {
	Client *s3.S3
}

func NewS3Agent(accessKey, secretKey, endpoint string, debug bool) (*S3Agent, error) {
	return newS3Agent(credentials.NewStaticCredentials(accessKey, secretKey, ""), endpoint, debug)
}

// NewAnonymousS3Agent returns an agent sending unsigned requests.
func NewAnonymousS3Agent(endpoint string, debug bool) (*S3Agent, error) {
	return newS3Agent(credentials.AnonymousCredentials, endpoint, debug)
}

func newS3Agent(creds *credentials.Credentials, endpoint string, debug bool) (*S3Agent, error) {
	// MinIO accepts any region unless one is configured on the server.
	const minioRegion = "us-east-1"

	logLevel := aws.LogOff
	if debug {
		logLevel = aws.LogDebug
	}
	client := http.Client{
		Timeout: time.Second * 15,
	}
	sess, err := session.NewSession(
		aws.NewConfig().
			WithRegion(minioRegion).
			WithCredentials(creds).
			WithEndpoint(endpoint).
			WithS3ForcePathStyle(true).
			WithMaxRetries(2).
			WithDisableSSL(strings.HasPrefix(endpoint, "http://")).
			WithHTTPClient(&client).
			WithLogLevel(logLevel),
	)
	if err != nil {
		return nil, err
	}
	svc := s3.New(sess)
	return &S3Agent{
		Client: svc,
	}, nil
}

func (s *S3Agent) BucketExists(ctx context.Context, name string) (bool, error) {
	_, err := s.Client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(name),
	})
	if err == nil {
		return true, nil
	}
	if statusCode(err) == http.StatusNotFound {
		return false, nil
	}
	return false, fmt.Errorf("failed to head bucket %q. %w", name, err)
}

// ProbeAnonymousRead tells whether anonymous clients may read objects of the bucket.
// A missing object answers 404 when reading is allowed and 403 otherwise.
func (s *S3Agent) ProbeAnonymousRead(ctx context.Context, bucket string) (bool, error) {
	_, err := s.Client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(ProbeKey),
	})
	switch code := statusCode(err); {
	case err == nil, code == http.StatusNotFound:
		return true, nil
	case code == http.StatusForbidden:
		return false, nil
	case code != 0:
		return false, fmt.Errorf("%w %d for bucket %q", ErrUnexpectedStatus, code, bucket)
	default:
		return false, fmt.Errorf("failed to probe bucket %q. %w", bucket, err)
	}
}

func statusCode(err error) int {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode()
	}
	return 0
}
