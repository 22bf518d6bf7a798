package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"

	"traffic-logger/internal/handler"
	"traffic-logger/internal/models"
	"traffic-logger/internal/store"
)

func (a *app) newLocalCommand() *cobra.Command {
	var useS3 bool
	cmd := &cobra.Command{
		Use:   "local",
		Short: "Invoke the ingest handler in-process with a synthetic event",
		Long: `Runs the handler against an in-memory object store. With --s3 the record
is written to the real S3_BUCKET_NAME bucket using AWS credentials.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			objects, err := a.objectStore(cmd.Context(), useS3)
			if err != nil {
				return err
			}
			return runLocal(cmd.Context(), cmd.OutOrStdout(), objects, a.v.GetString(keyBucket))
		},
	}
	cmd.Flags().BoolVar(&useS3, "s3", false, "write to the configured S3 bucket instead of memory")
	return cmd
}

func (a *app) objectStore(ctx context.Context, useS3 bool) (store.ObjectStore, error) {
	if !useS3 {
		return store.NewMemory(), nil
	}
	var opts []func(*awsconfig.LoadOptions) error
	if region := a.v.GetString(keyRegion); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return store.NewS3(awsCfg, a.v.GetString("s3_endpoint")), nil
}

// sampleEnvelope mimics an API Gateway proxy event for a page view.
func sampleEnvelope() models.Envelope {
	body, _ := json.Marshal(map[string]string{
		"event":      "page_view",
		"page":       "/home",
		"user_id":    "test-user-123",
		"session_id": "session-xyz",
	})
	sourceIP := "203.0.113.42"
	userAgent := "trafficctl/1.0"
	return models.Envelope{
		Body: models.RawBody(string(body)),
		RequestContext: &models.RequestContext{
			Identity: &models.Identity{SourceIP: &sourceIP, UserAgent: &userAgent},
		},
	}
}

func runLocal(ctx context.Context, out io.Writer, objects store.ObjectStore, bucket string) error {
	banner(out, "Local handler test")

	env := sampleEnvelope()
	raw, _ := env.Body.Raw()
	fmt.Fprintf(out, "Sending event:\n%s\n\n", prettyJSON([]byte(raw)))

	resp, err := handler.New(objects, bucket).Handle(ctx, env)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Response:")
	fmt.Fprintf(out, "Status: %d\n", resp.StatusCode)
	fmt.Fprintf(out, "Body: %s\n", prettyJSON([]byte(resp.Body)))

	if mem, ok := objects.(*store.Memory); ok {
		for _, o := range mem.Objects() {
			fmt.Fprintf(out, "\nStored object %s/%s (%s):\n%s\n", o.Bucket, o.Key, o.ContentType, o.Body)
		}
	}
	reportOutcome(out, resp.StatusCode, []byte(resp.Body))
	return nil
}
