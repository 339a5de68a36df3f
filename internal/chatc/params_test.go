package chatc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseParams(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]any
		wantErr bool
	}{
		{name: "none", pairs: nil, want: nil},
		{
			name:  "json typed values",
			pairs: []string{"temperature=0.7", "stream=true", "stop=[\"\\n\"]"},
			want:  map[string]any{"temperature": 0.7, "stream": true, "stop": []any{"\n"}},
		},
		{name: "plain string", pairs: []string{"reasoning_effort=high"}, want: map[string]any{"reasoning_effort": "high"}},
		{name: "value with equals", pairs: []string{"user=a=b"}, want: map[string]any{"user": "a=b"}},
		{name: "missing equals", pairs: []string{"temperature"}, wantErr: true},
		{name: "empty key", pairs: []string{"=1"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseParams(tt.pairs)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
