package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSTSClient struct {
	output *sts.GetCallerIdentityOutput
	err    error
	calls  int
}

func (m *mockSTSClient) GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	m.calls++
	return m.output, m.err
}

func TestResolve(t *testing.T) {
	ssoARN := "arn:aws:sts::123456789012:assumed-role/AWSReservedSSO_Admin_abc/ryan@example.com"

	tests := []struct {
		name    string
		client  *mockSTSClient
		want    *Owner
		wantErr bool
	}{
		{
			name: "SSO identity",
			client: &mockSTSClient{output: &sts.GetCallerIdentityOutput{
				Arn:     aws.String(ssoARN),
				Account: aws.String("123456789012"),
			}},
			want: &Owner{Name: "ryan", ARN: ssoARN, Account: "123456789012"},
		},
		{
			name:    "STS API error",
			client:  &mockSTSClient{err: errors.New("no credentials")},
			wantErr: true,
		},
		{
			name:    "nil ARN in response",
			client:  &mockSTSClient{output: &sts.GetCallerIdentityOutput{}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, err := NewResolver(tt.client).Resolve(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, owner)
		})
	}
}

func TestResolve_CachesSuccessOnly(t *testing.T) {
	client := &mockSTSClient{err: errors.New("expired token")}
	r := NewResolver(client)

	_, err := r.Resolve(context.Background())
	require.Error(t, err)

	client.err = nil
	client.output = &sts.GetCallerIdentityOutput{Arn: aws.String("arn:aws:iam::123456789012:user/ryan")}
	first, err := r.Resolve(context.Background())
	require.NoError(t, err)
	second, err := r.Resolve(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 2, client.calls)
}
