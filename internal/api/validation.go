package api

import (
	"fmt"
	"regexp"
	"strings"
)

// bucketNameRegex follows the S3 general-purpose bucket naming rules.
var bucketNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func validateBucket(bucket string) error {
	if bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if !bucketNameRegex.MatchString(bucket) || strings.Contains(bucket, "..") {
		return fmt.Errorf("invalid bucket name")
	}
	return nil
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}
	if len(key) > 1024 {
		return fmt.Errorf("key exceeds 1024 bytes")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("invalid key")
	}
	return nil
}
