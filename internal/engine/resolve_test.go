package engine

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d28khalil/Bidnology-sub001/internal/model"
)

func TestParseTriggerName(t *testing.T) {
	tests := []struct {
		in       string
		platform string
		name     string
		wantErr  bool
	}{
		{"RealForeclose | Essex", "RealForeclose", "Essex", false},
		{"RealForeclose|Essex", "RealForeclose", "Essex", false},
		{"  CivilView |  Bergen County ", "CivilView", "Bergen County", false},
		{"NoSeparator", "", "", true},
		{" | Essex", "", "", true},
		{"RealForeclose | ", "", "", true},
		{"", "", "", true},
	}
	for _, tc := range tests {
		platform, name, err := ParseTriggerName(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.platform, platform)
		assert.Equal(t, tc.name, name)
	}
}

func TestResolver_Resolve(t *testing.T) {
	s := newGateStore(t)
	ctx := context.Background()

	created, err := s.CreateSource(ctx, model.Source{
		Platform:  "RealForeclose",
		Name:      "Essex",
		PortalURL: "https://essex.example.org",
		Enabled:   true,
	})
	require.NoError(t, err)

	r := NewResolver(s)

	src, err := r.Resolve(ctx, created.TriggerName())
	require.NoError(t, err)
	assert.Equal(t, created.ID, src.ID)

	_, err = r.Resolve(ctx, "RealForeclose | Nowhere")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrUnknownSource))

	_, err = r.Resolve(ctx, "garbage")
	assert.Error(t, err)
}
