package environment

import (
	"context"
	"fmt"
	"github.com/otiai10/copy"
	"os"
	"path/filepath"
)

// copyDir copies the template directory at src to the instance directory dst
// which must not exist yet. Symlinks are recreated instead of followed and
// special files are skipped. Identity files in the top level directory are not
// copied at all. The copy is aborted between files once the context.Context is
// done.
func copyDir(ctx context.Context, src string, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("instance dir %s already exists", dst)
	} else if !os.IsNotExist(err) {
		return err
	}
	identityFiles := map[string]struct{}{
		filepath.Join(src, UIDFile):         {},
		filepath.Join(src, SessionLockFile): {},
	}
	return copy.Copy(src, dst, copy.Options{
		OnSymlink: func(_ string) copy.SymlinkAction {
			return copy.Shallow
		},
		Skip: func(_ os.FileInfo, srcPath string, _ string) (bool, error) {
			if err := ctx.Err(); err != nil {
				return false, err
			}
			_, identity := identityFiles[srcPath]
			return identity, nil
		},
		AddPermission: 0o200,
	})
}
