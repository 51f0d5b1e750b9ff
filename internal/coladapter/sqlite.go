package coladapter

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver, pure Go, no cgo
)

const fieldSep = "\x1f"

// legacyModel mirrors the subset of an .anki2 notetype ("model") JSON object
// ki needs: the full object carries template HTML, CSS, and review config
// that ki never touches and round-trips verbatim through rawModels.
type legacyModel struct {
	ID    json.Number      `json:"id"`
	Name  string           `json:"name"`
	Flds  []legacyModelFld `json:"flds"`
	SortF int              `json:"sortf"`
	Did   json.Number      `json:"did"`
	raw   json.RawMessage
}

type legacyModelFld struct {
	Name string `json:"name"`
	Ord  int    `json:"ord"`
}

type legacyDeck struct {
	ID   json.Number `json:"id"`
	Name string      `json:"name"`
	raw  json.RawMessage
}

// SQLiteCollection implements Collection against a real Anki .anki2 file:
// the legacy single-file schema where notetypes and decks live as a JSON
// blob in the col table's models/decks columns and notes/cards are regular
// rows. It wraps a database/sql handle behind the same Collection interface
// MockCollection implements, so the sync driver never has to know which one
// it's holding.
type SQLiteCollection struct {
	db *sql.DB

	mu         sync.Mutex
	colID      int64
	models     map[int64]*legacyModel
	modelsRaw  map[int64]json.RawMessage
	decks      map[int64]*legacyDeck
	decksRaw   map[int64]json.RawMessage
	dirty      bool
}

// OpenSQLite opens the collection file at path and loads its col-table
// metadata (notetypes, decks) into memory. The caller is expected to hold
// the sidecar lock (see internal/kirepo and the sync driver) before
// opening, since concurrent writers would otherwise corrupt the schema
// JSON blobs this adapter rewrites on Close.
func OpenSQLite(ctx context.Context, path string) (*SQLiteCollection, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open collection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck // best-effort cleanup on failed open
		return nil, fmt.Errorf("open collection: %w", err)
	}

	c := &SQLiteCollection{db: db}
	if err := c.loadColRow(ctx); err != nil {
		db.Close() //nolint:errcheck // best-effort cleanup on failed load
		return nil, err
	}
	return c, nil
}

func (c *SQLiteCollection) loadColRow(ctx context.Context) error {
	row := c.db.QueryRowContext(ctx, `SELECT id, models, decks FROM col LIMIT 1`)
	var modelsJSON, decksJSON string
	if err := row.Scan(&c.colID, &modelsJSON, &decksJSON); err != nil {
		return fmt.Errorf("read col row: %w", err)
	}

	var rawModels map[string]json.RawMessage
	if err := json.Unmarshal([]byte(modelsJSON), &rawModels); err != nil {
		return fmt.Errorf("parse models: %w", err)
	}
	c.models = make(map[int64]*legacyModel, len(rawModels))
	c.modelsRaw = make(map[int64]json.RawMessage, len(rawModels))
	for idStr, raw := range rawModels {
		var m legacyModel
		if err := json.Unmarshal(raw, &m); err != nil {
			return fmt.Errorf("parse model %s: %w", idStr, err)
		}
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return fmt.Errorf("parse model id %s: %w", idStr, err)
		}
		m.raw = raw
		c.models[id] = &m
		c.modelsRaw[id] = raw
	}

	var rawDecks map[string]json.RawMessage
	if err := json.Unmarshal([]byte(decksJSON), &rawDecks); err != nil {
		return fmt.Errorf("parse decks: %w", err)
	}
	c.decks = make(map[int64]*legacyDeck, len(rawDecks))
	c.decksRaw = make(map[int64]json.RawMessage, len(rawDecks))
	for idStr, raw := range rawDecks {
		var d legacyDeck
		if err := json.Unmarshal(raw, &d); err != nil {
			return fmt.Errorf("parse deck %s: %w", idStr, err)
		}
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return fmt.Errorf("parse deck id %s: %w", idStr, err)
		}
		d.raw = raw
		c.decks[id] = &d
		c.decksRaw[id] = raw
	}
	return nil
}

// Close flushes any pending models/decks mutation back to the col table and
// closes the underlying handle.
func (c *SQLiteCollection) Close() error {
	c.mu.Lock()
	dirty := c.dirty
	c.mu.Unlock()
	if dirty {
		if err := c.flushColRow(context.Background()); err != nil {
			c.db.Close() //nolint:errcheck // propagate the flush error, not the close error
			return err
		}
	}
	return c.db.Close()
}

func (c *SQLiteCollection) flushColRow(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	modelsOut := make(map[string]json.RawMessage, len(c.modelsRaw))
	for id, raw := range c.modelsRaw {
		modelsOut[strconv.FormatInt(id, 10)] = raw
	}
	decksOut := make(map[string]json.RawMessage, len(c.decksRaw))
	for id, raw := range c.decksRaw {
		decksOut[strconv.FormatInt(id, 10)] = raw
	}

	modelsJSON, err := json.Marshal(modelsOut)
	if err != nil {
		return err
	}
	decksJSON, err := json.Marshal(decksOut)
	if err != nil {
		return err
	}

	_, err = c.db.ExecContext(ctx, `UPDATE col SET models = ?, decks = ? WHERE id = ?`,
		string(modelsJSON), string(decksJSON), c.colID)
	return err
}

func (c *SQLiteCollection) Notetypes() Notetypes { return sqliteNotetypes{c} }
func (c *SQLiteCollection) Decks() Decks         { return sqliteDecks{c} }

func (c *SQLiteCollection) FindNotes(ctx context.Context, deck string) ([]*Note, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if deck == "" {
		rows, err = c.db.QueryContext(ctx, `
			SELECT DISTINCT n.id, n.guid, n.mid, n.tags, n.flds, c.did
			FROM notes n JOIN cards c ON c.nid = n.id`)
	} else {
		c.mu.Lock()
		var did int64 = -1
		for id, d := range c.decks {
			if d.Name == deck {
				did = id
				break
			}
		}
		c.mu.Unlock()
		if did == -1 {
			return nil, nil
		}
		rows, err = c.db.QueryContext(ctx, `
			SELECT DISTINCT n.id, n.guid, n.mid, n.tags, n.flds, c.did
			FROM notes n JOIN cards c ON c.nid = n.id
			WHERE c.did = ?`, did)
	}
	if err != nil {
		return nil, fmt.Errorf("find notes: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var out []*Note
	for rows.Next() {
		n, err := c.scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (c *SQLiteCollection) scanNote(rows *sql.Rows) (*Note, error) {
	var (
		nid, mid, did int64
		guid, tags    string
		flds          string
	)
	if err := rows.Scan(&nid, &guid, &mid, &tags, &flds, &did); err != nil {
		return nil, fmt.Errorf("scan note: %w", err)
	}
	return c.buildNote(nid, guid, mid, did, tags, flds), nil
}

func (c *SQLiteCollection) buildNote(nid int64, guid string, mid, did int64, tags, flds string) *Note {
	c.mu.Lock()
	modelName := ""
	if m, ok := c.models[mid]; ok {
		modelName = m.Name
	}
	deckName := ""
	if d, ok := c.decks[did]; ok {
		deckName = d.Name
	}
	c.mu.Unlock()

	return &Note{
		Nid:          nid,
		Guid:         guid,
		NotetypeID:   mid,
		NotetypeName: modelName,
		Deck:         deckName,
		Tags:         splitTags(tags),
		Fields:       strings.Split(flds, fieldSep),
	}
}

func (c *SQLiteCollection) GetNote(ctx context.Context, nid int64) (*Note, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT n.guid, n.mid, n.tags, n.flds, c.did
		FROM notes n JOIN cards c ON c.nid = n.id
		WHERE n.id = ? LIMIT 1`, nid)
	var (
		mid, did   int64
		guid, tags string
		flds       string
	)
	if err := row.Scan(&guid, &mid, &tags, &flds, &did); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNoteNotFound
		}
		return nil, fmt.Errorf("get note: %w", err)
	}
	return c.buildNote(nid, guid, mid, did, tags, flds), nil
}

func (c *SQLiteCollection) NewNote(ctx context.Context, notetypeID int64) (*Note, error) {
	nt, err := c.Notetypes().ByID(ctx, notetypeID)
	if err != nil {
		return nil, err
	}
	return &Note{
		NotetypeID:   nt.ID,
		NotetypeName: nt.Name,
		Fields:       make([]string, len(nt.Fields)),
	}, nil
}

func (c *SQLiteCollection) AddNote(ctx context.Context, n *Note) error {
	did, err := c.Decks().ID(ctx, n.Deck)
	if err != nil {
		return err
	}
	if n.Nid == 0 {
		n.Nid = time.Now().UnixMilli()
	}
	flds := strings.Join(n.Fields, fieldSep)
	tags := joinTags(n.Tags)
	sfld := ""
	if len(n.Fields) > 0 {
		sfld = n.Fields[0]
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO notes (id, guid, mid, mod, usn, tags, flds, sfld, csum, flags, data)
		VALUES (?, ?, ?, 0, -1, ?, ?, ?, 0, 0, '')`,
		n.Nid, n.Guid, n.NotetypeID, tags, flds, sfld)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO cards (id, nid, did, ord, mod, usn, type, queue, due, ivl, factor, reps, lapses, left, odue, odid, flags, data)
		VALUES (?, ?, ?, 0, 0, -1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, '')`,
		n.Nid, n.Nid, did)
	if err != nil {
		return fmt.Errorf("insert card: %w", err)
	}
	return tx.Commit()
}

func (c *SQLiteCollection) UpdateNote(ctx context.Context, n *Note) error {
	flds := strings.Join(n.Fields, fieldSep)
	tags := joinTags(n.Tags)
	sfld := ""
	if len(n.Fields) > 0 {
		sfld = n.Fields[0]
	}
	res, err := c.db.ExecContext(ctx, `
		UPDATE notes SET tags = ?, flds = ?, sfld = ?, mid = ? WHERE id = ?`,
		tags, flds, sfld, n.NotetypeID, n.Nid)
	if err != nil {
		return fmt.Errorf("update note: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNoteNotFound
	}

	if n.Deck != "" {
		did, err := c.Decks().ID(ctx, n.Deck)
		if err != nil {
			return err
		}
		if _, err := c.db.ExecContext(ctx, `UPDATE cards SET did = ? WHERE nid = ?`, did, n.Nid); err != nil {
			return fmt.Errorf("move card: %w", err)
		}
	}
	return nil
}

func (c *SQLiteCollection) RemoveNotes(ctx context.Context, nids []int64) error {
	if len(nids) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	for _, nid := range nids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cards WHERE nid = ?`, nid); err != nil {
			return fmt.Errorf("delete cards for note %d: %w", nid, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, nid); err != nil {
			return fmt.Errorf("delete note %d: %w", nid, err)
		}
	}
	return tx.Commit()
}

type sqliteNotetypes struct{ c *SQLiteCollection }

func (sn sqliteNotetypes) ByName(_ context.Context, name string) (*Notetype, error) {
	sn.c.mu.Lock()
	defer sn.c.mu.Unlock()
	for id, m := range sn.c.models {
		if m.Name == name {
			return legacyModelToNotetype(id, m), nil
		}
	}
	return nil, ErrNotetypeNotFound
}

func (sn sqliteNotetypes) ByID(_ context.Context, id int64) (*Notetype, error) {
	sn.c.mu.Lock()
	defer sn.c.mu.Unlock()
	m, ok := sn.c.models[id]
	if !ok {
		return nil, ErrNotetypeNotFound
	}
	return legacyModelToNotetype(id, m), nil
}

func (sn sqliteNotetypes) IDForName(ctx context.Context, name string) (int64, error) {
	nt, err := sn.ByName(ctx, name)
	if err != nil {
		return 0, err
	}
	return nt.ID, nil
}

func (sn sqliteNotetypes) EnsureNameUnique(ctx context.Context, name string) error {
	if _, err := sn.ByName(ctx, name); err == nil {
		return ErrNotetypeNameTaken
	}
	return nil
}

func (sn sqliteNotetypes) FieldMap(ctx context.Context, notetypeID int64) (map[string]int, error) {
	nt, err := sn.ByID(ctx, notetypeID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(nt.Fields))
	for _, f := range nt.Fields {
		out[f.Name] = f.Ord
	}
	return out, nil
}

func (sn sqliteNotetypes) SortIdx(ctx context.Context, notetypeID int64) (int, error) {
	nt, err := sn.ByID(ctx, notetypeID)
	if err != nil {
		return 0, err
	}
	return nt.SortOrd, nil
}

// Add inserts a new notetype, synthesizing the minimal legacy JSON shape
// Anki's desktop client also writes: templates, css, and review config are
// left at empty defaults, since ki never authors note appearance.
func (sn sqliteNotetypes) Add(_ context.Context, nt *Notetype) error {
	sn.c.mu.Lock()
	defer sn.c.mu.Unlock()

	flds := make([]legacyModelFld, len(nt.Fields))
	for i, f := range nt.Fields {
		flds[i] = legacyModelFld{Name: f.Name, Ord: f.Ord}
	}
	m := legacyModel{ID: json.Number(strconv.FormatInt(nt.ID, 10)), Name: nt.Name, Flds: flds, SortF: nt.SortOrd}
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	m.raw = raw
	sn.c.models[nt.ID] = &m
	sn.c.modelsRaw[nt.ID] = raw
	sn.c.dirty = true
	return nil
}

func (sn sqliteNotetypes) All(_ context.Context) ([]*Notetype, error) {
	sn.c.mu.Lock()
	defer sn.c.mu.Unlock()
	out := make([]*Notetype, 0, len(sn.c.models))
	for id, m := range sn.c.models {
		out = append(out, legacyModelToNotetype(id, m))
	}
	return out, nil
}

func legacyModelToNotetype(id int64, m *legacyModel) *Notetype {
	fields := make([]Field, len(m.Flds))
	for i, f := range m.Flds {
		fields[i] = Field{Name: f.Name, Ord: f.Ord}
	}
	return &Notetype{ID: id, Name: m.Name, Fields: fields, SortOrd: m.SortF}
}

type sqliteDecks struct{ c *SQLiteCollection }

func (sd sqliteDecks) ID(ctx context.Context, name string) (int64, error) {
	if i := strings.LastIndex(name, "::"); i > 0 {
		if _, err := sd.ID(ctx, name[:i]); err != nil {
			return 0, err
		}
	}
	sd.c.mu.Lock()
	defer sd.c.mu.Unlock()

	for id, d := range sd.c.decks {
		if d.Name == name {
			return id, nil
		}
	}

	maxID := int64(0)
	for id := range sd.c.decks {
		if id > maxID {
			maxID = id
		}
	}
	newID := maxID + 1
	d := legacyDeck{ID: json.Number(strconv.FormatInt(newID, 10)), Name: name}
	raw, err := json.Marshal(d)
	if err != nil {
		return 0, err
	}
	d.raw = raw
	sd.c.decks[newID] = &d
	sd.c.decksRaw[newID] = raw
	sd.c.dirty = true
	return newID, nil
}

func (sd sqliteDecks) NameByID(_ context.Context, id int64) (string, error) {
	sd.c.mu.Lock()
	defer sd.c.mu.Unlock()
	d, ok := sd.c.decks[id]
	if !ok {
		return "", ErrNotetypeNotFound
	}
	return d.Name, nil
}

func splitTags(s string) []string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func joinTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return " " + strings.Join(tags, " ") + " "
}

var _ Collection = (*SQLiteCollection)(nil)
