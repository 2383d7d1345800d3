package actions

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// RemovePaths deletes the given items. Directories are only deleted if recursive is set.
// Missing items are an error unless force is set.
func RemovePaths(items []string, recursive, force bool) error {
	existing := make([]string, 0, len(items))
	for _, item := range items {
		info, err := os.Lstat(item)
		if err != nil {
			if force && eris.Is(err, os.ErrNotExist) {
				continue
			}
			return eris.Wrapf(err, "could not stat %s", item)
		}

		if info.IsDir() && !recursive {
			return eris.Errorf("%s is a directory but -r wasn't passed", item)
		}
		existing = append(existing, item)
	}

	for _, item := range existing {
		err := os.RemoveAll(item)
		if err != nil && (!force || !eris.Is(err, os.ErrNotExist)) {
			return eris.Wrapf(err, "could not delete %s", item)
		}
	}

	return nil
}

// MovePaths moves items into dest. If only one item is passed and dest isn't an existing
// directory, the item is renamed to dest instead.
func MovePaths(items []string, dest string) error {
	if len(items) == 0 {
		return eris.New("nothing to move")
	}

	dest = filepath.Clean(dest)
	destParent := filepath.Dir(dest)
	info, err := os.Stat(destParent)
	if err != nil {
		return eris.Wrapf(err, "could not find destination directory %s", destParent)
	}

	if !info.IsDir() {
		return eris.Errorf("%s is not a directory", destParent)
	}

	info, err = os.Stat(dest)
	if err != nil && !eris.Is(err, os.ErrNotExist) {
		return eris.Wrapf(err, "failed to retrieve info about destination %s", dest)
	}
	destIsDir := err == nil && info.IsDir()

	if len(items) > 1 && !destIsDir {
		return eris.Errorf("can't move multiple items to %s because it is not a directory", dest)
	}

	for _, item := range items {
		itemDest := dest
		if destIsDir {
			itemDest = filepath.Join(dest, filepath.Base(item))
		}

		err = os.Rename(item, itemDest)
		if err != nil {
			return eris.Wrapf(err, "failed to move %s to %s", item, itemDest)
		}
	}

	return nil
}

// MakeDirs creates the given directories
func MakeDirs(items []string, parents bool) error {
	for _, item := range items {
		var err error
		if parents {
			err = os.MkdirAll(item, 0770)
		} else {
			err = os.Mkdir(item, 0770)
		}

		if err != nil {
			return eris.Wrapf(err, "failed to create %s", item)
		}
	}

	return nil
}

// CopyPaths copies items into dest following the same rules as MovePaths. Directories are
// only copied if recursive is set.
func CopyPaths(items []string, dest string, recursive bool) error {
	if len(items) == 0 {
		return eris.New("nothing to copy")
	}

	dest = filepath.Clean(dest)
	info, err := os.Stat(dest)
	if err != nil && !eris.Is(err, os.ErrNotExist) {
		return eris.Wrapf(err, "failed to retrieve info about destination %s", dest)
	}
	destIsDir := err == nil && info.IsDir()

	if len(items) > 1 && !destIsDir {
		return eris.Errorf("can't copy multiple items to %s because it is not a directory", dest)
	}

	for _, item := range items {
		itemDest := dest
		if destIsDir {
			itemDest = filepath.Join(dest, filepath.Base(item))
		}

		info, err := os.Stat(item)
		if err != nil {
			return eris.Wrapf(err, "could not stat %s", item)
		}

		if info.IsDir() {
			if !recursive {
				return eris.Errorf("%s is a directory but -r wasn't passed", item)
			}
			err = copyTree(item, itemDest)
		} else {
			err = CopyFile(item, itemDest)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

func copyTree(src, dest string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return eris.Wrapf(err, "failed to walk %s", path)
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return eris.Wrapf(err, "failed to resolve %s", path)
		}
		target := filepath.Join(dest, rel)

		if info.IsDir() {
			return MakeDirs([]string{target}, true)
		}
		return CopyFile(path, target)
	})
}

// CopyFile copies a single file and creates missing parent directories of dest.
func CopyFile(src, dest string) error {
	err := os.MkdirAll(filepath.Dir(dest), 0770)
	if err != nil {
		return eris.Wrapf(err, "failed to create directory for %s", dest)
	}

	in, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "failed to open %s", src)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return eris.Wrapf(err, "failed to stat %s", src)
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", dest)
	}

	_, err = io.Copy(out, in)
	if err != nil {
		out.Close()
		return eris.Wrapf(err, "failed to copy %s to %s", src, dest)
	}

	return eris.Wrapf(out.Close(), "failed to write %s", dest)
}
