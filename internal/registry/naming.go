package registry

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
)

const (
	// StatePrefix starts every bucket name this service derives.
	StatePrefix = "terraform-state-"

	// TempPrefix starts the session buckets of older deployments. No bucket
	// is created with it any more, but the sweeper still collects them.
	TempPrefix = "terraform-temp-"

	maxBucketNameLen = 63
	hashLen          = 8
)

var invalidBucketChars = regexp.MustCompile(`[^a-z0-9]+`)

// BucketName returns the deterministic bucket for a (template, environment)
// pair: "terraform-state-<template>-<environment>-<hash8>", where hash8 is
// the first eight hex digits of MD5("<template>-<environment>").
//
// The readable middle part is lowercased, runs of characters S3 does not
// accept are collapsed to '-', and it is truncated so the whole name fits
// in 63 characters. The hash is always taken over the raw pair, so two pairs
// that sanitize to the same middle still get different buckets.
func BucketName(template, environment string) string {
	raw := template + "-" + environment
	sum := md5.Sum([]byte(raw))
	hash := hex.EncodeToString(sum[:])[:hashLen]

	middle := invalidBucketChars.ReplaceAllString(strings.ToLower(raw), "-")
	if room := maxBucketNameLen - len(StatePrefix) - hashLen - 1; len(middle) > room {
		middle = middle[:room]
	}
	middle = strings.Trim(middle, "-")
	if middle == "" {
		return StatePrefix + hash
	}
	return StatePrefix + middle + "-" + hash
}

// IsManagedName reports whether name follows one of the naming conventions
// the sweeper collects.
func IsManagedName(name string) bool {
	return strings.HasPrefix(name, StatePrefix) || strings.HasPrefix(name, TempPrefix)
}
