package statesync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SpiceLabsHQ/tfapi/internal/aws/awstest"
	"github.com/SpiceLabsHQ/tfapi/internal/blobstore"
)

const bucket = "terraform-state-test"

func newSyncer(t *testing.T) (*Syncer, *awstest.FakeS3, string) {
	t.Helper()
	fake := awstest.NewFakeS3()
	fake.AddBucket(bucket)
	dir := t.TempDir()
	return New(blobstore.New(fake, "us-east-1"), dir, "", nil), fake, dir
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

// ---------------------------------------------------------------------------
// Upload
// ---------------------------------------------------------------------------

func TestUpload_OnlyStateFiles(t *testing.T) {
	s, fake, dir := newSyncer(t)
	writeFile(t, dir, "terraform.tfstate", `{"serial":2}`)
	writeFile(t, dir, "terraform.tfstate.backup", `{"serial":1}`)
	writeFile(t, dir, "main.tf", `resource "x" "y" {}`)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "dir.tfstate.d"), 0o755))

	keys, err := s.Upload(context.Background(), "webapp", bucket)
	require.NoError(t, err)
	assert.Equal(t, []string{"webapp/terraform.tfstate", "webapp/terraform.tfstate.backup"}, keys)
	assert.Equal(t, keys, fake.Keys(bucket))

	data, ok := fake.Object(bucket, "webapp/terraform.tfstate")
	require.True(t, ok)
	assert.Equal(t, `{"serial":2}`, string(data))
}

func TestUpload_NoStateFiles(t *testing.T) {
	s, fake, _ := newSyncer(t)

	keys, err := s.Upload(context.Background(), "webapp", bucket)
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Empty(t, fake.Keys(bucket))
}

func TestUpload_PartialFailureUploadsSubset(t *testing.T) {
	s, fake, dir := newSyncer(t)
	writeFile(t, dir, "a.tfstate", "a")
	writeFile(t, dir, "b.tfstate", "b")
	fake.PutObjectErr = func(_, key string) error {
		if key == "webapp/b.tfstate" {
			return errors.New("throttled")
		}
		return nil
	}

	keys, err := s.Upload(context.Background(), "webapp", bucket)
	require.Error(t, err)
	assert.Equal(t, []string{"webapp/a.tfstate"}, keys)
	assert.Equal(t, []string{"webapp/a.tfstate"}, fake.Keys(bucket))
}

func TestUpload_InvalidTemplate(t *testing.T) {
	s, _, _ := newSyncer(t)
	_, err := s.Upload(context.Background(), "../etc", bucket)
	assert.True(t, errors.Is(err, ErrInvalidTemplate))
}

// ---------------------------------------------------------------------------
// Download
// ---------------------------------------------------------------------------

func TestDownload_NotFoundIsNotAnError(t *testing.T) {
	s, fake, _ := newSyncer(t)
	fake.PutRaw(bucket, "other/terraform.tfstate", []byte("x"))

	found, err := s.Download(context.Background(), "webapp", bucket)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, fake.CallCount("GetObject"))
}

func TestDownload_OverwritesLocalFiles(t *testing.T) {
	s, fake, dir := newSyncer(t)
	writeFile(t, dir, "terraform.tfstate", "stale")
	fake.PutRaw(bucket, "webapp/terraform.tfstate", []byte("fresh"))
	fake.PutRaw(bucket, "webapp/terraform.tfstate.backup", []byte("older"))

	found, err := s.Download(context.Background(), "webapp", bucket)
	require.NoError(t, err)
	assert.True(t, found)

	data, err := os.ReadFile(filepath.Join(dir, "terraform.tfstate"))
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))
	data, err = os.ReadFile(filepath.Join(dir, "terraform.tfstate.backup"))
	require.NoError(t, err)
	assert.Equal(t, "older", string(data))
}

func TestDownload_DoesNotMatchSiblingPrefix(t *testing.T) {
	s, fake, dir := newSyncer(t)
	fake.PutRaw(bucket, "webapp2/terraform.tfstate", []byte("other template"))

	found, err := s.Download(context.Background(), "webapp", bucket)
	require.NoError(t, err)
	assert.False(t, found)
	_, err = os.Stat(filepath.Join(dir, "terraform.tfstate"))
	assert.True(t, os.IsNotExist(err))
}

func TestDownload_GetFailurePropagates(t *testing.T) {
	s, fake, _ := newSyncer(t)
	fake.PutRaw(bucket, "webapp/terraform.tfstate", []byte("x"))
	fake.GetObjectErr = func(string, string) error { return errors.New("denied") }

	_, err := s.Download(context.Background(), "webapp", bucket)
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// DeletePrefix
// ---------------------------------------------------------------------------

func TestDeletePrefix(t *testing.T) {
	s, fake, _ := newSyncer(t)
	fake.PutRaw(bucket, "webapp/terraform.tfstate", []byte("x"))
	fake.PutRaw(bucket, "webapp/terraform.tfstate.backup", []byte("y"))
	fake.PutRaw(bucket, "api/terraform.tfstate", []byte("z"))

	found, err := s.DeletePrefix(context.Background(), "webapp", bucket)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"api/terraform.tfstate"}, fake.Keys(bucket))

	found, err = s.DeletePrefix(context.Background(), "webapp", bucket)
	require.NoError(t, err)
	assert.False(t, found, "already-empty prefix reports not found")
}

func TestDeletePrefix_ContinuesPastFailures(t *testing.T) {
	s, fake, _ := newSyncer(t)
	fake.PutRaw(bucket, "webapp/a.tfstate", []byte("a"))
	fake.PutRaw(bucket, "webapp/b.tfstate", []byte("b"))
	fake.DeleteObjectErr = func(_, key string) error {
		if key == "webapp/a.tfstate" {
			return errors.New("denied")
		}
		return nil
	}

	found, err := s.DeletePrefix(context.Background(), "webapp", bucket)
	assert.True(t, found)
	require.Error(t, err)
	assert.Equal(t, []string{"webapp/a.tfstate"}, fake.Keys(bucket))
}

// ---------------------------------------------------------------------------
// Keys / Templates
// ---------------------------------------------------------------------------

func TestKeysAndTemplates(t *testing.T) {
	s, fake, _ := newSyncer(t)
	fake.PutRaw(bucket, "webapp/terraform.tfstate", []byte("x"))
	fake.PutRaw(bucket, "api/terraform.tfstate", []byte("y"))

	keys, err := s.Keys(context.Background(), "webapp", bucket)
	require.NoError(t, err)
	assert.Equal(t, []string{"webapp/terraform.tfstate"}, keys)

	templates, err := s.Templates(context.Background(), bucket)
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "webapp"}, templates)
}

func TestValidateTemplate(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"webapp", false},
		{"my_app-01", false},
		{"", true},
		{"a/b", true},
		{"..", true},
		{string(make([]byte, 201)), true},
	}
	for _, tc := range tests {
		err := ValidateTemplate(tc.name)
		if tc.wantErr {
			assert.Error(t, err, "ValidateTemplate(%q)", tc.name)
		} else {
			assert.NoError(t, err, "ValidateTemplate(%q)", tc.name)
		}
	}
}
