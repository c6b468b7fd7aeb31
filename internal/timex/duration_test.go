package timex

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    time.Duration
		wantErr bool
	}{
		{name: "string minutes", in: `"15m"`, want: 15 * time.Minute},
		{name: "string compound", in: `"1h30m"`, want: 90 * time.Minute},
		{name: "integer nanoseconds", in: `1000000000`, want: time.Second},
		{name: "bad string", in: `"soon"`, wantErr: true},
		{name: "bool", in: `true`, wantErr: true},
		{name: "not json", in: `{`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := json.Unmarshal([]byte(tt.in), &d)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Duration)
		})
	}
}

func TestDuration_InStruct(t *testing.T) {
	var cfg struct {
		Expiry Duration `json:"expiry"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"expiry":"2m"}`), &cfg))
	assert.Equal(t, 2*time.Minute, cfg.Expiry.Duration)

	b, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"expiry":"2m0s"}`, string(b))
}
