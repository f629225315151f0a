package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeARN(t *testing.T) {
	tests := []struct {
		arn      string
		wantName string
		wantErr  bool
	}{
		{arn: "arn:aws:iam::123456789012:user/ryan", wantName: "ryan"},
		{arn: "arn:aws:sts::123456789012:assumed-role/AWSReservedSSO_PowerUserAccess_abc123/ryan@example.com", wantName: "ryan"},
		{arn: "arn:aws:sts::123456789012:assumed-role/ci-deployer/build-4411", wantName: "build-4411"},
		{arn: "arn:aws:iam::123456789012:user/Ryan.O'Brien", wantName: "ryan-o-brien"},
		{arn: "arn:aws:iam::123456789012:user/.ryan..", wantName: "ryan"},
		{arn: "arn:aws:iam::123456789012:root", wantName: "root"},
		{arn: "arn:aws:sts::123456789012:federated-user/developer", wantName: "developer"},
		{arn: "", wantErr: true},
		{arn: "not-an-arn", wantErr: true},
		{arn: "arn:aws:iam::123456789012:user/...", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.arn, func(t *testing.T) {
			got, err := NormalizeARN(tt.arn)
			if tt.wantErr {
				require.Error(t, err, "NormalizeARN(%q) = %q", tt.arn, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, got)
		})
	}
}
