package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/char5742/padpointer/internal/consts"
)

func TestIOCtl_ReturnsErrno(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "not-a-device"))
	require.NoError(t, err)
	defer f.Close()

	// 通常ファイルはuinputのioctlを受け付けない
	err = IOCtl(f, consts.DevCreate, 0)

	assert.ErrorIs(t, err, unix.ENOTTY)
}
