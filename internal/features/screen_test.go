package features

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedSurface(t *testing.T) {
	w, h, err := FixedSurface{Width: 1920, Height: 1080}.Resolution()
	require.NoError(t, err)
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)

	_, _, err = FixedSurface{}.Resolution()
	assert.Error(t, err)
}

func TestFramebufferSurface_CachesFirstRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "virtual_size")
	require.NoError(t, os.WriteFile(path, []byte("2560,1440\n"), 0o644))

	s := NewFramebufferSurface(path)
	w, h, err := s.Resolution()
	require.NoError(t, err)
	assert.Equal(t, 2560, w)
	assert.Equal(t, 1440, h)

	require.NoError(t, os.Remove(path))
	w, h, err = s.Resolution()
	require.NoError(t, err)
	assert.Equal(t, 2560, w)
	assert.Equal(t, 1440, h)
}

func TestFramebufferSurface_Missing(t *testing.T) {
	s := NewFramebufferSurface(filepath.Join(t.TempDir(), "virtual_size"))
	_, _, err := s.Resolution()
	assert.Error(t, err)
}

func TestParseVirtualSize(t *testing.T) {
	tests := []struct {
		in      string
		w, h    int
		wantErr bool
	}{
		{in: "1920,1080", w: 1920, h: 1080},
		{in: " 800 , 600 \n", w: 800, h: 600},
		{in: "1920x1080", wantErr: true},
		{in: "0,1080", wantErr: true},
		{in: "abc,1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			w, h, err := parseVirtualSize(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.w, w)
			assert.Equal(t, tt.h, h)
		})
	}
}
