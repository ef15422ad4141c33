//go:build windows

package knowledge

import (
	"os"

	"github.com/hpungsan/veileder/internal/errors"
)

// openFileNoFollowRead opens a snapshot for reading.
// O_NOFOLLOW is unavailable on Windows; validateSnapshotPath rejects symlinks.
func openFileNoFollowRead(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("file", path)
		}
		return nil, err
	}
	return f, nil
}
