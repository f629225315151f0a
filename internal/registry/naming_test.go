package registry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBucketName_Format(t *testing.T) {
	// md5("webapp-dev") = 18f2f8737b6568de75a119993d205e27
	assert.Equal(t, "terraform-state-webapp-dev-18f2f873", BucketName("webapp", "dev"))
}

func TestBucketName_PureAndStable(t *testing.T) {
	assert.Equal(t, BucketName("webapp", "dev"), BucketName("webapp", "dev"))
}

func TestBucketName_EnvironmentSensitive(t *testing.T) {
	assert.NotEqual(t, BucketName("webapp", "dev"), BucketName("webapp", "prod"))
}

func TestBucketName_S3Rules(t *testing.T) {
	valid := func(t *testing.T, name string) {
		t.Helper()
		assert.LessOrEqual(t, len(name), 63, name)
		assert.GreaterOrEqual(t, len(name), 3, name)
		for _, r := range name {
			ok := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-'
			assert.True(t, ok, "invalid rune %q in %s", r, name)
		}
		assert.False(t, strings.HasSuffix(name, "-"), name)
	}

	valid(t, BucketName("My_App.v2", "Staging"))
	valid(t, BucketName(strings.Repeat("long-template-", 20), "dev"))
	valid(t, BucketName("___", "!!"))
}

func TestBucketName_HashUsesRawPair(t *testing.T) {
	// Both sanitize to "my-app-dev" but must not share a bucket.
	a := BucketName("my_app", "dev")
	b := BucketName("my.app", "dev")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a[:len(a)-8], b[:len(b)-8])
}

func TestIsManagedName(t *testing.T) {
	assert.True(t, IsManagedName("terraform-state-webapp-dev-12345678"))
	assert.True(t, IsManagedName("terraform-temp-1700000000-ab12cd"))
	assert.False(t, IsManagedName("company-logs"))
	assert.False(t, IsManagedName("terraform-stateful"))
}
