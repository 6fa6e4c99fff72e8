package callseq

import (
	"io"
	"os"
	"path/filepath"
)

// backupSuffix is appended to a source path while its new content is being written.
const backupSuffix = ".bkp"

// CopyFile copies the content and permissions of src to dst.
func CopyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

// writeFileWithBackup replaces the content of path. A backup copy is kept next to the file until the new content has
// been fully written, so an interrupted write never leaves the only copy truncated.
func writeFileWithBackup(path string, content []byte) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	backup := path + backupSuffix
	if err := CopyFile(path, backup); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err = tmp.Write(content); err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmpName, info.Mode().Perm())
	}
	if err == nil {
		// rename replaces path atomically, readers see either the old or the new content
		err = os.Rename(tmpName, path)
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return err // backup retained
	}
	return os.Remove(backup)
}
