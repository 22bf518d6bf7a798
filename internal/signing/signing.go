// Package signing signs API Gateway requests with AWS Signature Version 4.
package signing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
)

// Service is the signing name of API Gateway invocations.
const Service = "execute-api"

// RegionFromURL returns the third label of the URL host, which is the region
// in https://<api-id>.execute-api.<region>.amazonaws.com/<stage>/...
func RegionFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing URL: %w", err)
	}
	labels := strings.Split(u.Hostname(), ".")
	if len(labels) < 3 || labels[2] == "" {
		return "", fmt.Errorf("cannot derive region from host %q", u.Hostname())
	}
	return labels[2], nil
}

// Signer adds SigV4 authentication headers to outgoing requests.
type Signer struct {
	credentials aws.CredentialsProvider
	signer      *v4.Signer
	now         func() time.Time
}

func New(credentials aws.CredentialsProvider) *Signer {
	return &Signer{
		credentials: credentials,
		signer:      v4.NewSigner(),
		now:         time.Now,
	}
}

// Sign signs req for region. body must be the exact payload req will send.
func (s *Signer) Sign(ctx context.Context, req *http.Request, body []byte, region string) error {
	creds, err := s.credentials.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("retrieving credentials: %w", err)
	}
	sum := sha256.Sum256(body)
	if err := s.signer.SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]), Service, region, s.now()); err != nil {
		return fmt.Errorf("signing request: %w", err)
	}
	return nil
}
