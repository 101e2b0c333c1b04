package scanner

import "fmt"

// ArchiveOpenError reports an archive that could not be opened or is not an
// archive at all. No partial result accompanies it.
type ArchiveOpenError struct {
	Path string
	Err  error
}

func (e *ArchiveOpenError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("open archive: %v", e.Err)
	}
	return fmt.Sprintf("open archive %s: %v", e.Path, e.Err)
}

func (e *ArchiveOpenError) Unwrap() error {
	return e.Err
}
