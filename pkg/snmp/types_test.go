package snmp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCredentialsValidate(t *testing.T) {
	tests := []struct {
		name  string
		creds Credentials
		want  error
	}{
		{
			name:  "v2c with community",
			creds: Credentials{Version: Version2c, ReadCommunity: "public"},
		},
		{
			name:  "v1 with community",
			creds: Credentials{Version: Version1, ReadCommunity: "public"},
		},
		{
			name:  "v2c without community",
			creds: Credentials{Version: Version2c},
			want:  ErrInvalidCredentials,
		},
		{
			name: "v3 with user",
			creds: Credentials{
				Version:      Version3,
				Username:     "admin",
				AuthProtocol: "SHA",
				AuthKey:      "secret123",
			},
		},
		{
			name:  "v3 without user",
			creds: Credentials{Version: Version3},
			want:  ErrInvalidCredentials,
		},
		{
			name:  "unknown version",
			creds: Credentials{Version: "v4"},
			want:  ErrUnsupportedSNMPVersion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}

			assert.ErrorIs(t, err, tt.want)
		})
	}
}
