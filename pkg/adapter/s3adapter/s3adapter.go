// Package s3adapter implements a base adapter (C3) over an S3-compatible
// bucket: a node's key is its object key prefix, and Children enumerates
// one level of common prefixes and objects beneath it using
// ListObjectsV2's Delimiter parameter, so the bucket's flat key space is
// exposed as a directory tree without ever listing the whole bucket.
package s3adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/arbortree/arbor/internal/circuit"
	"github.com/arbortree/arbor/internal/telemetry"
	"github.com/arbortree/arbor/pkg/adapter"
	"github.com/arbortree/arbor/pkg/errors"
	"github.com/arbortree/arbor/pkg/node"
	"github.com/arbortree/arbor/pkg/retry"
)

// Config configures the S3 base adapter.
type Config struct {
	Bucket   string
	Region   string
	Endpoint string // non-empty to target an S3-compatible store (MinIO, etc.)
	// ForcePathStyle requests path-style addressing, required by most
	// non-AWS S3-compatible endpoints.
	ForcePathStyle bool

	Retry   retry.Config
	Breaker circuit.Config

	// Breakers, if set, is a shared circuit.Manager this adapter obtains
	// its breaker from, keyed by Identity(); several adapter instances
	// pointed at the same bucket then trip and recover together instead
	// of tracking failures independently. If nil, New creates a private
	// single-breaker Manager for this adapter alone.
	Breakers *circuit.Manager

	// Logger, if set, receives construction and retry events, and breaker
	// state-change events when Breakers is nil. If nil, this adapter logs
	// nothing.
	Logger *telemetry.Logger
}

// RootKey is the common prefix for the bucket root.
const RootKey = node.Key("")

// Adapter enumerates S3 objects and common prefixes beneath a bucket root.
type Adapter struct {
	client     *s3.Client
	bucket     string
	retryer    *retry.Retryer
	retryStats *retry.StatsCollector
	breaker    *circuit.Breaker
	logger     *telemetry.Logger
}

// New builds an S3 adapter, loading AWS credentials and region the same way
// the AWS SDK's default credential chain does.
func New(ctx context.Context, config Config) (*Adapter, error) {
	if config.Bucket == "" {
		return nil, errors.New(errors.CodeConfigurationError, "s3adapter", "new", "bucket must not be empty")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(config.Region))
	if err != nil {
		return nil, errors.Wrap(errors.CodeConfigurationError, "s3adapter", "new", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if config.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Endpoint)
		}
		if config.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	identity := fmt.Sprintf("s3adapter:%s", config.Bucket)
	logger := config.Logger
	if logger != nil {
		logger = logger.WithComponent("s3adapter").WithField("bucket", config.Bucket)
	}

	retryStats := retry.NewStatsCollector()
	retryConfig := config.Retry
	if retryConfig.MaxAttempts == 0 {
		retryConfig = retry.DefaultConfig()
	}
	userOnRetry := retryConfig.OnRetry
	retryConfig.OnRetry = func(attempt int, retryErr error, delay time.Duration) {
		retryStats.RecordAttempt(attempt, false, delay)
		if logger != nil {
			logger.Warn("retrying after transient error", map[string]interface{}{
				"attempt": attempt,
				"delay":   delay.String(),
				"error":   retryErr.Error(),
			})
		}
		if userOnRetry != nil {
			userOnRetry(attempt, retryErr, delay)
		}
	}

	// Breaker state-change logging only applies to a private manager built
	// here: a shared Manager's template config is fixed at its own
	// NewManager call and is not specific to any one adapter's logger.
	breakers := config.Breakers
	if breakers == nil {
		breakerConfig := config.Breaker
		userOnStateChange := breakerConfig.OnStateChange
		breakerConfig.OnStateChange = func(name string, from, to circuit.State) {
			if logger != nil {
				logger.Warn("circuit breaker state change", map[string]interface{}{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				})
			}
			if userOnStateChange != nil {
				userOnStateChange(name, from, to)
			}
		}
		breakers = circuit.NewManager(breakerConfig)
	}

	if logger != nil {
		logger.Info("s3 adapter constructed", map[string]interface{}{"endpoint": config.Endpoint})
	}

	return &Adapter{
		client:     client,
		bucket:     config.Bucket,
		retryer:    retry.New(retryConfig),
		retryStats: retryStats,
		breaker:    breakers.GetBreaker(identity),
		logger:     logger,
	}, nil
}

// RetryStats returns a snapshot of this adapter's accumulated retry
// behavior, recorded once per scheduled retry: TotalAttempts counts the
// retries, TotalDelay sums their backoff delays, and MaxAttemptsUsed is the
// most failed attempts any single call had made before a retry.
func (a *Adapter) RetryStats() retry.Stats {
	return a.retryStats.GetStats()
}

// Identity returns a tag scoped to this bucket, distinguishing it from any
// other bucket or endpoint an s3adapter might target.
func (a *Adapter) Identity() string {
	return fmt.Sprintf("s3adapter:%s", a.bucket)
}

// Children lists the common prefixes and objects directly beneath n's key,
// using Delimiter "/" so deeper keys are folded into a single prefix child
// rather than listed individually.
func (a *Adapter) Children(ctx context.Context, n node.Node, opts adapter.ChildrenOptions) ([]node.Node, error) {
	prefix := normalizePrefix(string(n.Key()))

	var children []node.Node
	err := a.breaker.ExecuteWithContext(ctx, func(ctx context.Context) error {
		return a.retryer.DoWithContext(ctx, func(ctx context.Context) error {
			result, err := a.list(ctx, prefix)
			if err != nil {
				return err
			}
			children = result
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return children, nil
}

func (a *Adapter) list(ctx context.Context, prefix string) ([]node.Node, error) {
	var children []node.Node
	var continuationToken *string

	for {
		input := &s3.ListObjectsV2Input{
			Bucket:            aws.String(a.bucket),
			Prefix:            aws.String(prefix),
			Delimiter:         aws.String("/"),
			ContinuationToken: continuationToken,
		}

		out, err := a.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, errors.Wrap(errors.CodeSourceUnavailable, "s3adapter", "children", err).WithContext("prefix", prefix)
		}

		for _, cp := range out.CommonPrefixes {
			key := node.Key(strings.TrimSuffix(aws.ToString(cp.Prefix), "/"))
			children = append(children, node.New(key, 0))
		}

		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if key == prefix {
				continue // the "directory marker" object itself
			}
			size := aws.ToInt64(obj.Size)
			etag := aws.ToString(obj.ETag)
			modTime := aws.ToTime(obj.LastModified)
			children = append(children, node.NewWithMetadata(node.Key(key), 0, func() (map[string]string, error) {
				return map[string]string{
					"size":     fmt.Sprintf("%d", size),
					"etag":     etag,
					"mod_time": modTime.Format(time.RFC3339),
				}, nil
			}))
		}

		if !aws.ToBool(out.IsTruncated) {
			break
		}
		continuationToken = out.NextContinuationToken
	}

	return children, nil
}

// Metadata issues a HeadObject for n's key.
func (a *Adapter) Metadata(ctx context.Context, n node.Node) (map[string]string, error) {
	var meta map[string]string
	err := a.breaker.ExecuteWithContext(ctx, func(ctx context.Context) error {
		return a.retryer.DoWithContext(ctx, func(ctx context.Context) error {
			out, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
				Bucket: aws.String(a.bucket),
				Key:    aws.String(string(n.Key())),
			})
			if err != nil {
				return errors.Wrap(errors.CodeSourceUnavailable, "s3adapter", "metadata", err).WithContext("key", string(n.Key()))
			}
			meta = map[string]string{
				"size":     fmt.Sprintf("%d", aws.ToInt64(out.ContentLength)),
				"etag":     aws.ToString(out.ETag),
				"mod_time": aws.ToTime(out.LastModified).Format(time.RFC3339),
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return meta, nil
}

func normalizePrefix(key string) string {
	if key == "" {
		return ""
	}
	return strings.TrimSuffix(key, "/") + "/"
}

var (
	_ adapter.Adapter         = (*Adapter)(nil)
	_ adapter.MetadataAdapter = (*Adapter)(nil)
)
