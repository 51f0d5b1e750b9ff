// Package kirepo locates and loads a ki working copy: the sidecar .ki/
// directory, its config, hashes log, last-push pointer, backups directory,
// and internal mirror. Discovery walks up to the filesystem root looking for
// a sidecar directory, and loading validates each required component in
// turn, naming the first one that's missing.
package kirepo

import (
	"os"
	"path/filepath"

	"gopkg.in/ini.v1"

	"github.com/kiproject/ki/internal/kierrors"
	"github.com/kiproject/ki/internal/pathstate"
)

const (
	SidecarDir       = ".ki"
	ConfigFile       = "config"
	HashesFile       = "hashes"
	LastPushFile     = "last_push"
	BackupsDir       = "backups"
	InternalMirror   = "internal_mirror"
	LockFile         = "lock"
	NotetypesFile    = "notetypes-manifest.json"
	GitignoreFile    = ".gitignore"
	remoteSection    = "remote"
	remotePathKey    = "path"
	gitignoreContent = SidecarDir + "/\n"
)

// Repo is a loaded ki working copy.
type Repo struct {
	Root           pathstate.ExtantDir
	KiDir          pathstate.ExtantDir
	ConfigFile     pathstate.ExtantFile
	HashesFile     pathstate.ExtantFile
	LastPushFile   pathstate.ExtantFile
	BackupsDir     pathstate.ExtantDir
	InternalMirror pathstate.ExtantDir
	NotetypesFile  pathstate.ExtantFile
	CollectionPath string
}

// Find walks up from startDir looking for a directory containing .ki/: stat,
// recurse to parent, stop when filepath.Dir(p) == p (filesystem root).
func Find(startDir string) (string, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	cur := abs
	for {
		candidate := filepath.Join(cur, SidecarDir)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return cur, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", &kierrors.NotKiRepo{StartDir: abs}
		}
		cur = parent
	}
}

// Load locates the working copy root from startDir and validates every
// sidecar component exists, returning a specific typed error naming the
// first missing piece.
func Load(startDir string) (*Repo, error) {
	rootPath, err := Find(startDir)
	if err != nil {
		return nil, err
	}

	root, err := pathstate.NewExtantDir(rootPath)
	if err != nil {
		return nil, err
	}
	kiDir, err := pathstate.NewExtantDir(pathstate.Join(root, SidecarDir))
	if err != nil {
		return nil, &kierrors.MissingDirectory{Path: pathstate.Join(root, SidecarDir), What: "sidecar directory"}
	}
	configFile, err := pathstate.NewExtantFile(pathstate.Join(kiDir, ConfigFile))
	if err != nil {
		return nil, &kierrors.MissingFile{Path: pathstate.Join(kiDir, ConfigFile), What: "sidecar config"}
	}
	hashesFile, err := pathstate.NewExtantFile(pathstate.Join(kiDir, HashesFile))
	if err != nil {
		return nil, &kierrors.MissingFile{Path: pathstate.Join(kiDir, HashesFile), What: "sidecar hashes log"}
	}
	lastPushFile, err := pathstate.NewExtantFile(pathstate.Join(kiDir, LastPushFile))
	if err != nil {
		return nil, &kierrors.MissingFile{Path: pathstate.Join(kiDir, LastPushFile), What: "sidecar last_push"}
	}
	backupsDir, err := pathstate.NewExtantDir(pathstate.Join(kiDir, BackupsDir))
	if err != nil {
		return nil, &kierrors.MissingDirectory{Path: pathstate.Join(kiDir, BackupsDir), What: "sidecar backups directory"}
	}
	mirrorDir, err := pathstate.NewExtantDir(pathstate.Join(kiDir, InternalMirror))
	if err != nil {
		return nil, &kierrors.MissingDirectory{Path: pathstate.Join(kiDir, InternalMirror), What: "sidecar internal mirror"}
	}
	notetypesFile, err := pathstate.NewExtantFile(pathstate.Join(root, NotetypesFile))
	if err != nil {
		return nil, &kierrors.MissingFile{Path: pathstate.Join(root, NotetypesFile), What: "root notetypes manifest"}
	}

	colPath, err := ReadCollectionPath(string(configFile))
	if err != nil {
		return nil, err
	}

	return &Repo{
		Root: root, KiDir: kiDir, ConfigFile: configFile, HashesFile: hashesFile,
		LastPushFile: lastPushFile, BackupsDir: backupsDir, InternalMirror: mirrorDir,
		NotetypesFile: notetypesFile, CollectionPath: colPath,
	}, nil
}

// ReadCollectionPath reads the [remote] path = <absolute collection path>
// key out of the sidecar's INI config.
func ReadCollectionPath(configPath string) (string, error) {
	cfg, err := ini.Load(configPath)
	if err != nil {
		return "", err
	}
	path := cfg.Section(remoteSection).Key(remotePathKey).String()
	if path == "" {
		return "", &kierrors.MissingFile{Path: configPath, What: "remote.path key in sidecar config"}
	}
	return path, nil
}

// WriteCollectionPath writes a fresh sidecar config naming colPath as the
// remote collection. Used only during clone, which creates the sidecar
// exactly once; the config is never rewritten afterward.
func WriteCollectionPath(configPath, colPath string) error {
	cfg := ini.Empty()
	sec, err := cfg.NewSection(remoteSection)
	if err != nil {
		return err
	}
	if _, err := sec.NewKey(remotePathKey, colPath); err != nil {
		return err
	}
	return cfg.SaveTo(configPath)
}

// LastPush reads the commit id stored in sidecar/last_push.
func LastPush(r *Repo) (string, error) {
	data, err := os.ReadFile(string(r.LastPushFile))
	if err != nil {
		return "", err
	}
	return trimTrailingNewline(string(data)), nil
}

// WriteLastPush overwrites sidecar/last_push with a new commit id.
func WriteLastPush(r *Repo, commit string) error {
	return os.WriteFile(string(r.LastPushFile), []byte(commit), 0o644)
}

func trimTrailingNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
