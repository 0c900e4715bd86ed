package objstore

import (
	"errors"
	"fmt"
	"strings"
)

// URI schemes understood by ParseURI.
const (
	SchemeS3   = "s3"
	SchemeFile = "file"
)

// FormatURI builds a fully-qualified object address.
func FormatURI(scheme, bucket, key string) string {
	return scheme + "://" + bucket + "/" + key
}

// ParseURI splits scheme://bucket/key into its components. The key may be
// empty (bucket-only URIs address the whole bucket).
func ParseURI(uri string) (scheme, bucket, key string, err error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return "", "", "", fmt.Errorf("invalid URI %q: missing scheme", uri)
	}
	switch scheme {
	case SchemeS3, SchemeFile:
	default:
		return "", "", "", fmt.Errorf("invalid URI %q: unsupported scheme %q", uri, scheme)
	}

	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", "", fmt.Errorf("invalid URI %q: missing bucket name", uri)
	}
	return scheme, bucket, key, nil
}

// ParseBucketIdentifier extracts the bucket name from either a plain bucket
// name or an S3 bucket ARN ("arn:aws:s3:::my-bucket").
func ParseBucketIdentifier(bucketOrARN string) (string, error) {
	if bucketOrARN == "" {
		return "", errors.New("empty bucket identifier")
	}
	if strings.HasPrefix(bucketOrARN, "arn:") {
		return parseBucketARN(bucketOrARN)
	}
	if strings.Contains(bucketOrARN, "://") {
		return "", fmt.Errorf("invalid bucket identifier %q: looks like a URI", bucketOrARN)
	}
	return bucketOrARN, nil
}

// parseBucketARN handles arn:partition:s3:::bucket[/path].
func parseBucketARN(arn string) (string, error) {
	parts := strings.Split(arn, ":")
	if len(parts) < 6 {
		return "", fmt.Errorf("invalid ARN %q: expected at least 6 colon-separated parts", arn)
	}
	if parts[2] != "s3" {
		return "", fmt.Errorf("invalid S3 ARN %q: service must be 's3', got %q", arn, parts[2])
	}

	resource := strings.Join(parts[5:], ":")
	if idx := strings.Index(resource, "/"); idx >= 0 {
		resource = resource[:idx]
	}
	if resource == "" {
		return "", fmt.Errorf("invalid S3 ARN %q: missing bucket name", arn)
	}
	return resource, nil
}
