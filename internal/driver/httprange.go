package driver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/h5coro-go/h5coro/internal/herrors"
)

// emptyPayloadHash is the SHA-256 of an empty body, the payload hash SigV4
// expects for a GET request with no body.
var emptyPayloadHash = func() string {
	sum := sha256.Sum256(nil)
	return hex.EncodeToString(sum[:])
}()

// Credentials carries AWS-style static credentials for signing object
// storage range requests, matching spec's aws_access_key_id,
// aws_secret_access_key, aws_session_token, and region fields. SessionToken
// is optional (only set for temporary/STS credentials).
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Region          string
}

// HTTPRange is a Driver backed by HTTP range requests against an
// object-storage URL (S3, GCS, or any server advertising Accept-Ranges).
// Size is discovered once via a HEAD request and cached. Read issues a
// single ranged GET and returns whatever error it gets; it does not retry —
// callers that want retry behavior wrap the driver themselves, matching
// spec's "failures are not retried by this layer" contract.
type HTTPRange struct {
	client *http.Client
	url    string

	credsProvider awssdk.CredentialsProvider
	region        string
	service       string
	signer        *v4.Signer

	sizeOnce sync.Once
	size     int64
	sizeErr  error
}

// HTTPRangeOption configures an HTTPRange driver.
type HTTPRangeOption func(*HTTPRange)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(client *http.Client) HTTPRangeOption {
	return func(d *HTTPRange) { d.client = client }
}

// WithCredentials signs every range request with the given static
// credentials, per spec's `{ aws_access_key_id, aws_secret_access_key,
// aws_session_token }` injection contract.
func WithCredentials(c Credentials) HTTPRangeOption {
	return func(d *HTTPRange) {
		d.credsProvider = credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, c.SessionToken)
		d.region = c.Region
	}
}

// WithDefaultCredentialChain signs every range request using credentials
// obtained from the host's standard AWS credential chain (environment,
// shared config, IMDS), per spec's "or obtained from the host's standard
// credential chain" fallback. region is required to compute a SigV4
// signature and is not discoverable from the chain itself.
func WithDefaultCredentialChain(region string) HTTPRangeOption {
	return func(d *HTTPRange) {
		cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
		if err != nil {
			// Leave credsProvider nil: requests go out unsigned and the
			// object store rejects them if it requires auth, surfacing as
			// an ordinary io-error from rangeGet.
			return
		}
		d.credsProvider = cfg.Credentials
		d.region = region
	}
}

// WithService overrides the SigV4 service name used to sign requests.
// Defaults to "s3".
func WithService(service string) HTTPRangeOption {
	return func(d *HTTPRange) { d.service = service }
}

// NewHTTPRange constructs a driver for the given URL.
func NewHTTPRange(url string, opts ...HTTPRangeOption) *HTTPRange {
	d := &HTTPRange{
		url: url,
		client: &http.Client{
			Transport: &http.Transport{
				ForceAttemptHTTP2:   true,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		service: "s3",
		signer:  v4.NewSigner(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *HTTPRange) Size(ctx context.Context) (int64, error) {
	d.sizeOnce.Do(func() {
		d.size, d.sizeErr = d.headSize(ctx)
	})
	return d.size, d.sizeErr
}

func (d *HTTPRange) headSize(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, d.url, nil)
	if err != nil {
		return 0, herrors.Wrap(herrors.IOError, err, "building HEAD request")
	}
	if err := d.signRequest(ctx, req); err != nil {
		return 0, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, herrors.Wrap(herrors.IOError, err, "HEAD request failed").WithPath(d.url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, herrors.New(herrors.IOError, "HEAD request returned non-200 status").
			WithPath(d.url).WithDetail("status", resp.Status)
	}

	size, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	if err != nil {
		return 0, herrors.Wrap(herrors.FormatError, err, "parsing Content-Length header").WithPath(d.url)
	}
	return size, nil
}

// Read issues one ranged GET for [offset, offset+length) and returns its
// error as-is on failure. It does not retry; wrap this driver (e.g. in the
// cache's caller) for retry behavior.
func (d *HTTPRange) Read(ctx context.Context, offset int64, length int) ([]byte, error) {
	data, err := d.rangeGet(ctx, offset, length)
	if err != nil {
		return nil, herrors.Wrap(herrors.IOError, err, "range GET failed").
			WithDetail("offset", offset).WithDetail("length", length)
	}
	return data, nil
}

func (d *HTTPRange) rangeGet(ctx context.Context, offset int64, length int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+int64(length)-1))
	if err := d.signRequest(ctx, req); err != nil {
		return nil, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	buf := make([]byte, length)
	n, err := io.ReadFull(resp.Body, buf)
	if err != nil {
		return nil, err
	}
	if n != length {
		return nil, fmt.Errorf("short read: got %d of %d bytes", n, length)
	}
	return buf, nil
}

// signRequest applies a SigV4 signature to req when credentials have been
// configured via WithCredentials or WithDefaultCredentialChain. A driver
// with no credentials configured sends requests unsigned, for object stores
// that don't require auth (public buckets, local test servers).
func (d *HTTPRange) signRequest(ctx context.Context, req *http.Request) error {
	if d.credsProvider == nil {
		return nil
	}

	creds, err := d.credsProvider.Retrieve(ctx)
	if err != nil {
		return herrors.Wrap(herrors.IOError, err, "retrieving object storage credentials").WithPath(d.url)
	}

	req.Header.Set("X-Amz-Content-Sha256", emptyPayloadHash)
	if err := d.signer.SignHTTP(ctx, creds, req, emptyPayloadHash, d.service, d.region, time.Now()); err != nil {
		return herrors.Wrap(herrors.IOError, err, "signing range request").WithPath(d.url)
	}
	return nil
}

func (d *HTTPRange) Close() error {
	d.client.CloseIdleConnections()
	return nil
}
