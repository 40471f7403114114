//go:build unix

package repair

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starford/linkmend/internal/models"
)

func TestFindBroken_FIFOIsBroken(t *testing.T) {
	root := t.TempDir()
	fifo := filepath.Join(root, "pipe.md")
	require.NoError(t, syscall.Mkfifo(fifo, 0o644))

	doc := filepath.Join(root, "index.md")
	idx := models.LinkIndex{
		doc: {{Kind: models.KindFile, Raw: "pipe.md", Target: fifo}},
	}
	require.Equal(t, []models.BrokenLink{
		{Document: doc, Target: fifo, Raw: "pipe.md"},
	}, FindBroken(idx))
}

func TestFindBroken_PermissionDeniedIsBroken(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	root := t.TempDir()
	touch(t, root, "locked/secret.md")
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	target := filepath.Join(locked, "secret.md")
	_, err := os.Stat(target)
	require.ErrorIs(t, err, os.ErrPermission)

	doc := filepath.Join(root, "index.md")
	idx := models.LinkIndex{
		doc: {{Kind: models.KindFile, Raw: "locked/secret.md", Target: target}},
	}
	require.Equal(t, []models.BrokenLink{
		{Document: doc, Target: target, Raw: "locked/secret.md"},
	}, FindBroken(idx))
}
