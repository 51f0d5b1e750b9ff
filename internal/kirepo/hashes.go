package kirepo

import (
	"bufio"
	"crypto/md5" //nolint:gosec // used as a content digest for collection identity, not a security primitive
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// HashCollection returns the lowercase hex MD5 digest of the collection
// file's bytes — the identity ki uses to link a working copy to a specific
// database state.
func HashCollection(colPath string) (string, error) {
	f, err := os.Open(colPath) //nolint:gosec // colPath is supplied by the user at clone time
	if err != nil {
		return "", err
	}
	defer f.Close() //nolint:errcheck // read-only handle, nothing to flush

	h := md5.New() //nolint:gosec // see package-level note
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// AppendHash appends "<hex-md5>  <filename>\n" to the sidecar hashes log.
func AppendHash(hashesPath, hash, filename string) error {
	f, err := os.OpenFile(hashesPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck // error on Write below is what matters

	_, err = fmt.Fprintf(f, "%s  %s\n", hash, filename)
	return err
}

// LastHashLine returns the last non-empty line of the hashes log, or "" if
// the log is empty.
func LastHashLine(hashesPath string) (string, error) {
	f, err := os.Open(hashesPath) //nolint:gosec // sidecar-controlled path
	if err != nil {
		return "", err
	}
	defer f.Close() //nolint:errcheck // read-only handle

	var last string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) != "" {
			last = line
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return last, nil
}

// InSyncForPush reports whether the working copy's last recorded hash
// matches the collection's current hash: the final non-empty line of the
// hashes log equals the MD5 of the collection file iff the working copy is
// in sync for push.
func InSyncForPush(hashesPath, currentHash string) (bool, error) {
	last, err := LastHashLine(hashesPath)
	if err != nil {
		return false, err
	}
	fields := strings.Fields(last)
	if len(fields) == 0 {
		return false, nil
	}
	return fields[0] == currentHash, nil
}

// BackupPath returns the path backups/<hash>.anki2 for a given collection
// hash, inside the sidecar backups directory.
func BackupPath(backupsDir, hash string) string {
	return filepath.Join(backupsDir, hash+".anki2")
}

// BackupIfAbsent copies colPath into the backups directory keyed by hash,
// unless a backup with that hash already exists (backups are append-only).
func BackupIfAbsent(backupsDir, colPath, hash string) error {
	dst := BackupPath(backupsDir, hash)
	if _, err := os.Stat(dst); err == nil {
		return nil
	}
	src, err := os.Open(colPath) //nolint:gosec // colPath is the user's configured collection
	if err != nil {
		return err
	}
	defer src.Close() //nolint:errcheck // read-only handle

	out, err := os.Create(dst) //nolint:gosec // dst is sidecar-controlled
	if err != nil {
		return err
	}
	defer out.Close() //nolint:errcheck // error from Copy below is authoritative

	_, err = io.Copy(out, src)
	return err
}
