//go:build !windows

package knowledge

import (
	stderrors "errors"
	"os"
	"syscall"

	"github.com/hpungsan/veileder/internal/errors"
)

// openFileNoFollowRead opens a snapshot with O_NOFOLLOW so the final path
// component cannot be swapped for a symlink after validation.
func openFileNoFollowRead(path string) (*os.File, error) {
	fd, err := syscall.Open(path, syscall.O_RDONLY|syscall.O_NOFOLLOW|syscall.O_CLOEXEC, 0)
	if err != nil {
		if stderrors.Is(err, syscall.ELOOP) {
			return nil, errors.NewInvalidRequest("cannot read from symlink")
		}
		if stderrors.Is(err, syscall.ENOENT) {
			return nil, errors.NewNotFound("file", path)
		}
		return nil, err
	}
	return os.NewFile(uintptr(fd), path), nil
}
