// Package sync is the sync driver: it orchestrates Clone, Push, and Pull
// against a ki working copy by wiring together every other component —
// pathstate preconditions, the sidecar layer, the collection adapter, the
// write-out engine, the diff engine, and the merge package's git
// delegation — behind one entry point, each step delegating to a focused
// helper rather than inlining every detail at the top level.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/kiproject/ki/internal/coladapter"
	"github.com/kiproject/ki/internal/diffengine"
	"github.com/kiproject/ki/internal/kierrors"
	"github.com/kiproject/ki/internal/kirepo"
	"github.com/kiproject/ki/internal/merge"
	"github.com/kiproject/ki/internal/noteparse"
	"github.com/kiproject/ki/internal/pathstate"
	"github.com/kiproject/ki/internal/vcs"
	"github.com/kiproject/ki/internal/writeout"
)

// Config holds the sync driver's tunables.
type Config struct {
	LockTimeout time.Duration
	OpenTimeout time.Duration
	MergePolicy merge.Policy
	Logger      *slog.Logger

	// OpenCollection is the seam to the collection adapter. Production
	// callers leave it nil to get coladapter.OpenSQLite; tests inject a
	// func that returns a *coladapter.MockCollection.
	OpenCollection func(ctx context.Context, path string) (coladapter.Collection, error)
}

func (c *Config) defaults() {
	if c.LockTimeout <= 0 {
		c.LockTimeout = 10 * time.Second
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
	if c.MergePolicy == "" {
		c.MergePolicy = merge.PolicyDefault
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.OpenCollection == nil {
		c.OpenCollection = func(ctx context.Context, path string) (coladapter.Collection, error) {
			return coladapter.OpenSQLite(ctx, path)
		}
	}
}

// Driver runs Clone/Push/Pull against working copies.
type Driver struct {
	cfg Config
}

// New constructs a Driver with defaults filled in.
func New(cfg Config) *Driver {
	cfg.defaults()
	return &Driver{cfg: cfg}
}

func (d *Driver) lock(path string) (*flock.Flock, error) {
	fl := flock.New(path)
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.LockTimeout)
	defer cancel()
	ok, err := fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("sync: acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("sync: collection is locked by another ki process")
	}
	return fl, nil
}

// Clone materializes a fresh working copy of the collection at colPath into
// targetDir.
func (d *Driver) Clone(ctx context.Context, colPath, targetDir string) (err error) {
	log := d.cfg.Logger.With("op", "clone", "collection", colPath, "target", targetDir)

	emptyRoot, err := pathstate.EnsureEmptyDirOrNoPath(targetDir)
	if err != nil {
		return err
	}
	root := emptyRoot.Widen()

	kiDir := pathstate.Join(root, kirepo.SidecarDir)
	mirrorDir := filepath.Join(kiDir, kirepo.InternalMirror)
	for _, sub := range []string{kiDir, filepath.Join(kiDir, kirepo.BackupsDir)} {
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return fmt.Errorf("sync: create sidecar dir %s: %w", sub, err)
		}
	}

	configPath := filepath.Join(kiDir, kirepo.ConfigFile)
	if err := kirepo.WriteCollectionPath(configPath, colPath); err != nil {
		return fmt.Errorf("sync: write sidecar config: %w", err)
	}

	hash, err := kirepo.HashCollection(colPath)
	if err != nil {
		return fmt.Errorf("sync: hash collection: %w", err)
	}
	backupsDir := filepath.Join(kiDir, kirepo.BackupsDir)
	if err := kirepo.BackupIfAbsent(backupsDir, colPath, hash); err != nil {
		return fmt.Errorf("sync: backup collection: %w", err)
	}

	octx, cancel := context.WithTimeout(ctx, d.cfg.OpenTimeout)
	defer cancel()
	col, err := d.cfg.OpenCollection(octx, colPath)
	if err != nil {
		return fmt.Errorf("sync: open collection: %w", err)
	}
	defer col.Close() //nolint:errcheck // nothing further to do with a close error on a read path

	res, commit, err := buildNoteTreeRepo(ctx, string(root), col, "Initial commit")
	if err != nil {
		return fmt.Errorf("sync: write out notes: %w", err)
	}
	log.Info("wrote notes", "count", res.NotesWritten, "decks", len(res.Decks))

	// Steps 5/6: the internal mirror is a real clone of the main repository
	// rather than a bare copy of its tree, so it shares true commit ancestry
	// with it — pull's anchor step needs a common ancestor to diff against,
	// not just a snapshot of the current state.
	if err := os.RemoveAll(mirrorDir); err != nil {
		return fmt.Errorf("sync: clear mirror dir: %w", err)
	}
	if err := vcs.CloneLocal(ctx, string(root), mirrorDir); err != nil {
		return fmt.Errorf("sync: build internal mirror: %w", err)
	}

	hashesPath := filepath.Join(kiDir, kirepo.HashesFile)
	if err := os.WriteFile(hashesPath, nil, 0o644); err != nil {
		return fmt.Errorf("sync: create hashes log: %w", err)
	}
	if err := kirepo.AppendHash(hashesPath, hash, filepath.Base(colPath)); err != nil {
		return fmt.Errorf("sync: append hash: %w", err)
	}
	lastPushPath := filepath.Join(kiDir, kirepo.LastPushFile)
	if err := os.WriteFile(lastPushPath, []byte(commit), 0o644); err != nil {
		return fmt.Errorf("sync: write last_push: %w", err)
	}

	log.Info("clone complete", "commit", commit)
	return nil
}

// buildNoteTreeRepo writes out every note in col under dir, writes the root
// notetype manifest and gitignore, and commits the result as a fresh git
// repository — the sequence clone's main repo and pull's ephemeral remote
// snapshot both need, factored out so neither duplicates the other.
func buildNoteTreeRepo(ctx context.Context, dir string, col coladapter.Collection, message string) (*writeout.Result, string, error) {
	res, err := writeout.Run(ctx, dir, col)
	if err != nil {
		return nil, "", fmt.Errorf("write out notes: %w", err)
	}
	if err := kirepo.WriteNotetypeManifest(filepath.Join(dir, kirepo.NotetypesFile), res.RootManifest); err != nil {
		return nil, "", fmt.Errorf("write root manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, kirepo.GitignoreFile), []byte(".ki/\n"), 0o644); err != nil {
		return nil, "", fmt.Errorf("write gitignore: %w", err)
	}
	if err := vcs.Init(ctx, dir); err != nil {
		return nil, "", fmt.Errorf("init git repo: %w", err)
	}
	repo := vcs.Open(dir)
	if err := repo.AddAll(ctx); err != nil {
		return nil, "", fmt.Errorf("stage notes: %w", err)
	}
	commit, err := repo.Commit(ctx, message)
	if err != nil {
		return nil, "", fmt.Errorf("commit: %w", err)
	}
	return res, commit, nil
}

// refreshMirror replaces mirrorDir with a fresh local clone of root, so the
// internal mirror's tree and its git history both track the state just
// pushed — the mechanism behind "replace sidecar/internal_mirror/ with the
// staging repo's tree (preserves push history)".
func refreshMirror(ctx context.Context, root, mirrorDir string) error {
	if err := os.RemoveAll(mirrorDir); err != nil {
		return fmt.Errorf("clear mirror dir: %w", err)
	}
	return vcs.CloneLocal(ctx, root, mirrorDir)
}

// Push writes the working copy's edits into the collection.
func (d *Driver) Push(ctx context.Context, repoRoot string) (err error) {
	log := d.cfg.Logger.With("op", "push", "repo", repoRoot)

	r, err := kirepo.Load(repoRoot)
	if err != nil {
		return err
	}

	fl, err := d.lock(filepath.Join(string(r.KiDir), kirepo.LockFile))
	if err != nil {
		return err
	}
	defer fl.Unlock() //nolint:errcheck // best-effort release

	hash, err := kirepo.HashCollection(r.CollectionPath)
	if err != nil {
		return fmt.Errorf("sync: hash collection: %w", err)
	}
	inSync, err := kirepo.InSyncForPush(string(r.HashesFile), hash)
	if err != nil {
		return fmt.Errorf("sync: check sync state: %w", err)
	}
	if !inSync {
		last, _ := kirepo.LastHashLine(string(r.HashesFile))
		return &kierrors.UpdatesRejected{WorkingCopyHash: last, CollectionHash: hash}
	}

	lastPush, err := kirepo.LastPush(r)
	if err != nil {
		return fmt.Errorf("sync: read last_push: %w", err)
	}

	repo := vcs.Open(string(r.Root))

	// Step 1: stage and commit the working tree exactly as it stands before
	// anything is stashed, so the diff below sees the user's actual edits
	// rather than an empty tree stashed out from under it.
	if err := repo.AddAll(ctx); err != nil {
		return fmt.Errorf("sync: stage working tree: %w", err)
	}
	commit, err := repo.Commit(ctx, "ki push staging commit")
	if err != nil {
		return fmt.Errorf("sync: commit working tree: %w", err)
	}
	if commit == "" {
		commit, err = repo.Head(ctx)
		if err != nil {
			return err
		}
	}

	// Step 2: compute deltas between the last push and the staging commit.
	entries, err := repo.DiffNameStatus(ctx, lastPush, commit)
	if err != nil {
		return fmt.Errorf("sync: diff against last push: %w", err)
	}

	nidOf := func(path string) (int64, bool) {
		data, err := repo.ShowFile(ctx, commit, path)
		if err != nil {
			return 0, false
		}
		fn, err := noteparse.Parse(path, data)
		if err != nil {
			return 0, false
		}
		return fn.Nid, true
	}

	deltas, err := diffengine.Classify(entries, diffengine.DefaultIgnore, nidOf)
	if err != nil {
		return err
	}
	if len(deltas) == 0 {
		log.Info("push up to date")
		return nil
	}

	// Step 3: open the collection notes will be applied to.
	octx, cancel := context.WithTimeout(ctx, d.cfg.OpenTimeout)
	defer cancel()
	col, err := d.cfg.OpenCollection(octx, r.CollectionPath)
	if err != nil {
		return fmt.Errorf("sync: open collection: %w", err)
	}
	defer col.Close() //nolint:errcheck // propagated failures above already account for state

	// Step 4: stash anything left uncommitted and hard-reset to the staging
	// commit, so the on-disk tree matches exactly the state the deltas
	// describe before they're applied one by one. The stash pops only once
	// every mutation below — including the nid reassignment commit — has
	// completed, never before.
	stashed, err := repo.Stash(ctx)
	if err != nil {
		return fmt.Errorf("sync: stash working tree: %w", err)
	}
	if err := repo.HardResetToRef(ctx, commit); err != nil {
		return fmt.Errorf("sync: reset to staging commit: %w", err)
	}

	// Step 5: apply deltas in iteration order, deletions interleaved with
	// adds/modifies/renames rather than batched at the end.
	type reassignment struct{ oldNid, newNid int64 }
	var reassigned []reassignment
	applied, removedCount := 0, 0
	for _, delta := range deltas {
		switch delta.Kind {
		case diffengine.KindDeletedNote:
			fn, ferr := noteparse.Parse(delta.Path, mustShow(ctx, repo, lastPush, delta.Path))
			if ferr == nil {
				if err := col.RemoveNotes(ctx, []int64{fn.Nid}); err != nil {
					return fmt.Errorf("sync: remove note %d: %w", fn.Nid, err)
				}
				removedCount++
			}
		case diffengine.KindAddedNote, diffengine.KindModifiedNote, diffengine.KindRenamedNote:
			oldNid, newNid, err := d.applyNoteFile(ctx, col, string(r.Root), delta.Path)
			if err != nil {
				return fmt.Errorf("sync: apply %s: %w", delta.Path, err)
			}
			if newNid != 0 {
				reassigned = append(reassigned, reassignment{oldNid: oldNid, newNid: newNid})
			}
			applied++
		}
	}
	log.Info("push applied", "notes_changed", applied, "notes_removed", removedCount)

	// Step 6: commit any nid reassignments after all note mutations.
	if len(reassigned) > 0 {
		if err := repo.AddAll(ctx); err != nil {
			return fmt.Errorf("sync: stage nid reassignments: %w", err)
		}
		newCommit, err := repo.Commit(ctx, "Generated new nid(s).")
		if err != nil {
			return fmt.Errorf("sync: commit nid reassignments: %w", err)
		}
		if newCommit != "" {
			commit = newCommit
		}
		for _, ra := range reassigned {
			log.Info("reassigned nid", "old", ra.oldNid, "new", ra.newNid)
		}
	}

	if stashed {
		if err := repo.StashPop(ctx); err != nil {
			return fmt.Errorf("sync: restore stashed changes: %w", err)
		}
	}

	// Step 7: back up, append to the hashes log, refresh the mirror, and
	// record the new last_push pointer.
	newHash, err := kirepo.HashCollection(r.CollectionPath)
	if err != nil {
		return fmt.Errorf("sync: hash collection after push: %w", err)
	}
	if err := kirepo.BackupIfAbsent(string(r.BackupsDir), r.CollectionPath, newHash); err != nil {
		return fmt.Errorf("sync: backup collection: %w", err)
	}
	if err := kirepo.AppendHash(string(r.HashesFile), newHash, filepath.Base(r.CollectionPath)); err != nil {
		return fmt.Errorf("sync: append hash: %w", err)
	}
	if err := refreshMirror(ctx, string(r.Root), string(r.InternalMirror)); err != nil {
		return fmt.Errorf("sync: refresh internal mirror: %w", err)
	}
	return kirepo.WriteLastPush(r, commit)
}

func mustShow(ctx context.Context, repo *vcs.Repo, ref, path string) string {
	s, err := repo.ShowFile(ctx, ref, path)
	if err != nil {
		return ""
	}
	return s
}

// applyNoteFile parses one note file and writes it into the collection,
// either as an update to an existing note or, when the file's nid is a
// placeholder (0), as a brand new note. In the new-note case it
// assigns the fresh nid, regenerates the note at its slug-derived filename,
// and removes the placeholder file, returning the placeholder (old) and
// freshly assigned (new) nid so the caller can record the reassignment.
// oldNid and newNid are both 0 when the file updated an existing note.
func (d *Driver) applyNoteFile(ctx context.Context, col coladapter.Collection, root, relPath string) (oldNid, newNid int64, err error) {
	fullPath := filepath.Join(root, relPath)
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return 0, 0, err
	}
	fn, err := noteparse.Parse(relPath, string(data))
	if err != nil {
		return 0, 0, err
	}

	ntID, err := col.Notetypes().IDForName(ctx, fn.Model)
	if err != nil {
		return 0, 0, &kierrors.MissingNotetype{Name: fn.Model}
	}
	nt, err := col.Notetypes().ByID(ctx, ntID)
	if err != nil {
		return 0, 0, err
	}
	fieldMap, err := col.Notetypes().FieldMap(ctx, ntID)
	if err != nil {
		return 0, 0, err
	}

	fields := make([]string, len(nt.Fields))
	for _, name := range fn.FieldNames() {
		ord, ok := fieldMap[name]
		if !ok {
			return 0, 0, &kierrors.MissingFieldOrdinal{Field: name, Notetype: fn.Model}
		}
		val, _ := fn.Fields.Get(name)
		fields[ord] = val
	}

	if fn.Nid != 0 {
		existing, err := col.GetNote(ctx, fn.Nid)
		if err != nil {
			return 0, 0, err
		}
		existing.NotetypeID = ntID
		existing.NotetypeName = fn.Model
		existing.Deck = fn.Deck
		existing.Tags = fn.Tags
		existing.Fields = fields
		return 0, 0, col.UpdateNote(ctx, existing)
	}

	n := &coladapter.Note{
		NotetypeID: ntID, NotetypeName: fn.Model,
		Deck: fn.Deck, Tags: fn.Tags, Fields: fields,
	}
	if err := col.AddNote(ctx, n); err != nil {
		return 0, 0, err
	}

	deckDir := kirepo.DeckPath(root, fn.Deck)
	if err := os.MkdirAll(deckDir, 0o755); err != nil {
		return 0, 0, fmt.Errorf("regenerate new note: create deck dir: %w", err)
	}
	flat, err := writeout.BuildFlatNote(n, nt)
	if err != nil {
		return 0, 0, err
	}
	used := deckUsedStems(deckDir)
	filename := writeout.NoteFilename(flat.Title, used)
	newPath := filepath.Join(deckDir, filename)
	if err := os.WriteFile(newPath, []byte(noteparse.Emit(flat)), 0o644); err != nil {
		return 0, 0, fmt.Errorf("regenerate new note: write %s: %w", newPath, err)
	}
	if newPath != fullPath {
		if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
			return 0, 0, fmt.Errorf("regenerate new note: remove placeholder %s: %w", fullPath, err)
		}
	}
	return fn.Nid, n.Nid, nil
}

// deckUsedStems seeds NoteFilename's collision map from a deck directory's
// existing note files, so regenerating one new note's file never collides
// with a stem already on disk.
func deckUsedStems(deckDir string) map[string]int {
	used := make(map[string]int)
	entries, err := os.ReadDir(deckDir)
	if err != nil {
		return used
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".md") || name == "README.md" {
			continue
		}
		stem := strings.TrimSuffix(name, ".md")
		n := 1
		if idx := strings.LastIndex(stem, "-"); idx > 0 {
			if suffix, convErr := strconv.Atoi(stem[idx+1:]); convErr == nil && suffix > 1 {
				n = suffix
				stem = stem[:idx]
			}
		}
		if used[stem] < n {
			used[stem] = n
		}
	}
	return used
}

// Pull regenerates a note tree from the collection's current state and
// three-way merges it into the working copy through an ephemeral anchor
// repository that shares history with the working copy; the regenerated
// tree is merged into anchor as an unrelated history (§4.H).
func (d *Driver) Pull(ctx context.Context, repoRoot string) (err error) {
	log := d.cfg.Logger.With("op", "pull", "repo", repoRoot)

	r, err := kirepo.Load(repoRoot)
	if err != nil {
		return err
	}
	fl, err := d.lock(filepath.Join(string(r.KiDir), kirepo.LockFile))
	if err != nil {
		return err
	}
	defer fl.Unlock() //nolint:errcheck // best-effort release

	startHash, err := kirepo.HashCollection(r.CollectionPath)
	if err != nil {
		return fmt.Errorf("sync: hash collection: %w", err)
	}
	upToDate, err := kirepo.InSyncForPush(string(r.HashesFile), startHash)
	if err != nil {
		return fmt.Errorf("sync: check sync state: %w", err)
	}
	if upToDate {
		log.Info("pull up to date")
		return nil
	}

	lastPush, err := kirepo.LastPush(r)
	if err != nil {
		return fmt.Errorf("sync: read last_push: %w", err)
	}

	anchorDir := filepath.Join(os.TempDir(), "ki-pull-anchor-"+uuid.NewString())
	if err := os.MkdirAll(anchorDir, 0o755); err != nil {
		return fmt.Errorf("sync: create anchor dir: %w", err)
	}
	defer os.RemoveAll(anchorDir) //nolint:errcheck // best-effort cleanup of a temp dir
	remoteDir := filepath.Join(os.TempDir(), "ki-pull-remote-"+uuid.NewString())
	if err := os.MkdirAll(remoteDir, 0o755); err != nil {
		return fmt.Errorf("sync: create remote dir: %w", err)
	}
	defer os.RemoveAll(remoteDir) //nolint:errcheck // best-effort cleanup of a temp dir

	// Step 1: anchor is an ephemeral clone of the main repository hard-reset
	// to the commit last_push recorded — the common ancestor the merges
	// below need in order to see the true delta on each side (§4.H).
	if err := os.RemoveAll(anchorDir); err != nil {
		return fmt.Errorf("sync: clear anchor dir: %w", err)
	}
	if err := vcs.CloneLocal(ctx, string(r.Root), anchorDir); err != nil {
		return fmt.Errorf("sync: clone anchor: %w", err)
	}
	anchorRepo := vcs.Open(anchorDir)
	if err := anchorRepo.HardResetToRef(ctx, lastPush); err != nil {
		return fmt.Errorf("sync: reset anchor to last push: %w", err)
	}

	// Step 2: remote is a fresh write-out of the collection's current
	// state — an independent repository sharing no ancestry with anchor.
	octx, cancel := context.WithTimeout(ctx, d.cfg.OpenTimeout)
	defer cancel()
	col, err := d.cfg.OpenCollection(octx, r.CollectionPath)
	if err != nil {
		return fmt.Errorf("sync: open collection: %w", err)
	}
	_, _, writeErr := buildNoteTreeRepo(ctx, remoteDir, col, "ki pull snapshot")
	closeErr := col.Close()
	if writeErr != nil {
		return fmt.Errorf("sync: write out remote snapshot: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("sync: close collection: %w", closeErr)
	}
	remoteRepo := vcs.Open(remoteDir)
	remoteBranch, err := remoteRepo.CurrentBranch(ctx)
	if err != nil {
		return fmt.Errorf("sync: read remote branch: %w", err)
	}

	// Step 3: pull remote into anchor favoring the collection's side on
	// conflict — anchor..remote is exactly the edits made directly in the DB.
	if err := anchorRepo.RemoteAdd(ctx, "anki", remoteDir); err != nil {
		return fmt.Errorf("sync: add anki remote: %w", err)
	}
	if err := anchorRepo.FetchRemote(ctx, "anki"); err != nil {
		return fmt.Errorf("sync: fetch anki remote: %w", err)
	}
	if err := anchorRepo.MergeUnrelated(ctx, "anki/"+remoteBranch, "ki pull merge (anchor)", vcs.MergeFavorTheirs); err != nil {
		return fmt.Errorf("sync: merge collection edits into anchor: %w", err)
	}
	if err := anchorRepo.RemoteRemove(ctx, "anki"); err != nil {
		return fmt.Errorf("sync: remove anki remote: %w", err)
	}
	anchorBranch, err := anchorRepo.CurrentBranch(ctx)
	if err != nil {
		return fmt.Errorf("sync: read anchor branch: %w", err)
	}

	// Step 4: pull anchor into the main repository with the configured
	// conflict policy. The user's local edits are "ours"; the collection's
	// edits, already folded into anchor, are "theirs".
	mainRepo := vcs.Open(string(r.Root))
	if err := mainRepo.RemoteAdd(ctx, "anchor", anchorDir); err != nil {
		return fmt.Errorf("sync: add anchor remote: %w", err)
	}
	if err := mainRepo.FetchRemote(ctx, "anchor"); err != nil {
		return fmt.Errorf("sync: fetch anchor remote: %w", err)
	}
	mergeResult, mergeErr := merge.Merge(ctx, mainRepo, "anchor/"+anchorBranch, "ki pull merge", d.cfg.MergePolicy)
	if removeErr := mainRepo.RemoteRemove(ctx, "anchor"); removeErr != nil && mergeErr == nil {
		mergeErr = fmt.Errorf("sync: remove anchor remote: %w", removeErr)
	}
	if mergeErr != nil {
		return fmt.Errorf("sync: merge anchor into working copy: %w", mergeErr)
	}
	log.Info("pull merged", "commit", mergeResult.Commit, "had_conflicts", mergeResult.HadConflicts)

	// Step 5: refresh the hashes log, guarding against another process
	// mutating the collection underneath us while the merge was running.
	endHash, err := kirepo.HashCollection(r.CollectionPath)
	if err != nil {
		return fmt.Errorf("sync: hash collection after pull: %w", err)
	}
	if endHash != startHash {
		return &kierrors.CollectionChecksum{Expected: startHash, Actual: endHash}
	}
	if err := kirepo.AppendHash(string(r.HashesFile), endHash, filepath.Base(r.CollectionPath)); err != nil {
		return fmt.Errorf("sync: append hash: %w", err)
	}

	return kirepo.WriteLastPush(r, mergeResult.Commit)
}
