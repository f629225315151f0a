// Package identity derives the owner identity from AWS STS caller identity.
// The owner is logged at startup and recorded in the tfapi:owner and
// tfapi:owner-arn tags of every bucket tfapi creates.
package identity

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws/arn"
)

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeARN turns a caller ARN into a friendly owner name: the last
// segment of the resource, without any @domain suffix, lowercased, with
// runs of other characters collapsed to a single hyphen.
//
//	arn:aws:iam::123456789012:user/Ryan.O'Brien  -> ryan-o-brien
//	arn:aws:sts::123456789012:assumed-role/R/ryan@example.com -> ryan
func NormalizeARN(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("empty ARN")
	}

	parsed, err := arn.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("malformed ARN: %w", err)
	}
	if parsed.Resource == "" {
		return "", fmt.Errorf("malformed ARN: empty resource field")
	}

	identifier := parsed.Resource[strings.LastIndex(parsed.Resource, "/")+1:]
	if identifier == "" {
		return "", fmt.Errorf("malformed ARN: empty trailing identifier")
	}

	if idx := strings.Index(identifier, "@"); idx > 0 {
		identifier = identifier[:idx]
	}

	identifier = nonAlphanumeric.ReplaceAllString(strings.ToLower(identifier), "-")
	identifier = strings.Trim(identifier, "-")
	if identifier == "" {
		return "", fmt.Errorf("ARN normalized to empty string: %s", raw)
	}
	return identifier, nil
}
