package address

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{
			name: "checksummed to lowercase",
			in:   "0x95222290DD7278Aa3Ddd389Cc1E1d165CC4BAfe5",
			want: "0x95222290dd7278aa3ddd389cc1e1d165cc4bafe5",
		},
		{
			name: "already lowercase",
			in:   "0xebec795c9c8bbd61ffc14a6662944748f299cacf",
			want: "0xebec795c9c8bbd61ffc14a6662944748f299cacf",
		},
		{
			name: "no 0x prefix accepted",
			in:   "95222290DD7278Aa3Ddd389Cc1E1d165CC4BAfe5",
			want: "0x95222290dd7278aa3ddd389cc1e1d165cc4bafe5",
		},
		{
			name: "zero address",
			in:   "0x0000000000000000000000000000000000000000",
			want: Zero,
		},
		{
			name:    "too short",
			in:      "0x1234",
			wantErr: true,
		},
		{
			name:    "not hex",
			in:      "0xzz22290DD7278Aa3Ddd389Cc1E1d165CC4BAfe5",
			wantErr: true,
		},
		{
			name:    "empty",
			in:      "",
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestEqual(t *testing.T) {
	require.True(t, Equal(
		"0x95222290DD7278Aa3Ddd389Cc1E1d165CC4BAfe5",
		"0x95222290dd7278aa3ddd389cc1e1d165cc4bafe5",
	))
	require.False(t, Equal(
		"0x95222290DD7278Aa3Ddd389Cc1E1d165CC4BAfe5",
		"0xebec795c9c8bbd61ffc14a6662944748f299cacf",
	))
	require.False(t, Equal("garbage", "0x95222290dd7278aa3ddd389cc1e1d165cc4bafe5"))
}
