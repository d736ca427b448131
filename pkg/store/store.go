// Package store persists deduplicated building element geometry in
// SQLite and answers spatial range queries through an in-memory R-tree.
// Geometry payloads are content-addressed: identical meshes share one
// base_geometries row no matter how many instances reference them.
package store

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/dhconnelly/rtreego"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/chazu/tectum/pkg/kernel"
)

// ErrNotFound is returned when a guid has no element row.
var ErrNotFound = errors.New("store: element not found")

// HashCollisionError is a fatal integrity error: two different geometry
// payloads produced the same content hash. The run must abort.
type HashCollisionError struct {
	Hash string
}

func (e *HashCollisionError) Error() string {
	return fmt.Sprintf("store: hash collision: geometry %s already stored with different content", e.Hash)
}

// IndexInconsistentError is raised when a spatial index row cannot be
// reconciled with its instance after one recompute.
type IndexInconsistentError struct {
	GUID string
}

func (e *IndexInconsistentError) Error() string {
	return fmt.Sprintf("store: spatial index inconsistent for instance %s", e.GUID)
}

// Transform is an instance placement: uniform scale, Euler rotation in
// degrees (applied Z*Y*X), then translation.
type Transform struct {
	Position v3.Vec  `json:"position"`
	Rotation v3.Vec  `json:"rotation"`
	Scale    float64 `json:"scale"`
}

// Element is one placed building element.
type Element struct {
	GUID         string    `json:"guid"`
	GeometryHash string    `json:"geometry_hash"`
	Transform    Transform `json:"transform"`
	SourceID     string    `json:"source_id,omitempty"`
}

const schema = `
CREATE TABLE IF NOT EXISTS base_geometries (
	geometry_hash TEXT PRIMARY KEY,
	vertices      BLOB NOT NULL,
	faces         BLOB NOT NULL,
	normals       BLOB,
	vertex_count  INT NOT NULL,
	face_count    INT NOT NULL
);
CREATE TABLE IF NOT EXISTS element_instances (
	guid          TEXT PRIMARY KEY,
	geometry_hash TEXT NOT NULL REFERENCES base_geometries(geometry_hash),
	pos_x REAL, pos_y REAL, pos_z REAL,
	rot_x REAL, rot_y REAL, rot_z REAL,
	scale REAL,
	source_id TEXT
);
CREATE TABLE IF NOT EXISTS spatial_index (
	id    INT PRIMARY KEY,
	min_x REAL, max_x REAL,
	min_y REAL, max_y REAL,
	min_z REAL, max_z REAL
);
`

// Store is the building element store. All writes go through a single
// writer mutex so the hash-uniqueness invariant holds under concurrent
// callers; each geometry/instance pair is inserted in one transaction.
type Store struct {
	mu      sync.Mutex
	db      *sql.DB
	tree    *rtreego.Rtree
	entries map[string]*indexEntry // guid -> tree entry
}

// Open opens (or creates) a store at the given SQLite path and rebuilds
// the in-memory spatial index from the spatial_index table. Use ":memory:"
// for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	s := &Store{
		db:      db,
		tree:    rtreego.NewTree(3, 2, 16),
		entries: make(map[string]*indexEntry),
	}
	if err := s.loadIndex(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// loadIndex rebuilds the R-tree from the persisted spatial_index rows.
func (s *Store) loadIndex() error {
	rows, err := s.db.Query(`
		SELECT ei.guid, ei.rowid, si.min_x, si.max_x, si.min_y, si.max_y, si.min_z, si.max_z
		FROM element_instances ei
		JOIN spatial_index si ON si.id = ei.rowid`)
	if err != nil {
		return fmt.Errorf("store: load spatial index: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var guid string
		var id int64
		var b BBox
		if err := rows.Scan(&guid, &id, &b.Min[0], &b.Max[0], &b.Min[1], &b.Max[1], &b.Min[2], &b.Max[2]); err != nil {
			return fmt.Errorf("store: load spatial index: %w", err)
		}
		rect, err := rectOf(b)
		if err != nil {
			return fmt.Errorf("store: load spatial index: %w", err)
		}
		e := &indexEntry{id: id, guid: guid, rect: rect}
		s.entries[guid] = e
		s.tree.Insert(e)
	}
	return rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert stores a mesh and a placement. The mesh must be origin-local;
// its content hash keys the base_geometries row (insert-if-absent with a
// payload comparison on hash hit), and the placement goes on the new
// element_instances row. The spatial index entry is computed from the
// transformed geometry. Returns the new instance guid and whether the
// geometry payload was already present.
func (s *Store) Insert(m *kernel.Mesh, t Transform, sourceID string) (guid string, deduped bool, err error) {
	if err := m.Validate(); err != nil {
		return "", false, err
	}
	hash := kernel.Hash(m)
	vertBlob := kernel.EncodeVertices(m)
	faceBlob := kernel.EncodeFaces(m)
	normBlob := kernel.EncodeNormals(m)

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return "", false, fmt.Errorf("store: begin insert: %w", err)
	}
	defer tx.Rollback()

	var existingVerts, existingFaces []byte
	row := tx.QueryRow(`SELECT vertices, faces FROM base_geometries WHERE geometry_hash = ?`, hash)
	switch scanErr := row.Scan(&existingVerts, &existingFaces); {
	case scanErr == sql.ErrNoRows:
		_, err = tx.Exec(`
			INSERT INTO base_geometries (geometry_hash, vertices, faces, normals, vertex_count, face_count)
			VALUES (?, ?, ?, ?, ?, ?)`,
			hash, vertBlob, faceBlob, normBlob, m.VertexCount(), m.TriangleCount())
		if err != nil {
			return "", false, fmt.Errorf("store: insert geometry %s: %w", hash, err)
		}
	case scanErr != nil:
		return "", false, fmt.Errorf("store: lookup geometry %s: %w", hash, scanErr)
	default:
		if !bytes.Equal(existingVerts, vertBlob) || !bytes.Equal(existingFaces, faceBlob) {
			return "", false, &HashCollisionError{Hash: hash}
		}
		deduped = true
	}

	guid = uuid.NewString()
	res, err := tx.Exec(`
		INSERT INTO element_instances (guid, geometry_hash, pos_x, pos_y, pos_z, rot_x, rot_y, rot_z, scale, source_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		guid, hash,
		t.Position.X, t.Position.Y, t.Position.Z,
		t.Rotation.X, t.Rotation.Y, t.Rotation.Z,
		t.Scale, sourceID)
	if err != nil {
		return "", false, fmt.Errorf("store: insert instance %s: %w", guid, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", false, fmt.Errorf("store: insert instance %s: %w", guid, err)
	}

	bbox := computeBBox(m, t)
	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO spatial_index (id, min_x, max_x, min_y, max_y, min_z, max_z)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, bbox.Min[0], bbox.Max[0], bbox.Min[1], bbox.Max[1], bbox.Min[2], bbox.Max[2]); err != nil {
		return "", false, fmt.Errorf("store: insert spatial index for %s: %w", guid, err)
	}

	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("store: commit insert %s: %w", guid, err)
	}

	rect, err := rectOf(bbox)
	if err != nil {
		return "", false, fmt.Errorf("store: index rect for %s: %w", guid, err)
	}
	entry := &indexEntry{id: id, guid: guid, rect: rect}
	s.entries[guid] = entry
	s.tree.Insert(entry)
	return guid, deduped, nil
}

// Get returns the element and its decoded geometry.
func (s *Store) Get(guid string) (*Element, *kernel.Mesh, error) {
	var el Element
	var hash string
	el.GUID = guid
	err := s.db.QueryRow(`
		SELECT geometry_hash, pos_x, pos_y, pos_z, rot_x, rot_y, rot_z, scale, source_id
		FROM element_instances WHERE guid = ?`, guid).Scan(
		&hash,
		&el.Transform.Position.X, &el.Transform.Position.Y, &el.Transform.Position.Z,
		&el.Transform.Rotation.X, &el.Transform.Rotation.Y, &el.Transform.Rotation.Z,
		&el.Transform.Scale, &el.SourceID)
	if err == sql.ErrNoRows {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("store: get %s: %w", guid, err)
	}
	el.GeometryHash = hash

	mesh, err := s.Geometry(hash)
	if err != nil {
		return nil, nil, err
	}
	return &el, mesh, nil
}

// Geometry returns the decoded mesh for a geometry hash.
func (s *Store) Geometry(hash string) (*kernel.Mesh, error) {
	var verts, faces, norms []byte
	err := s.db.QueryRow(`SELECT vertices, faces, normals FROM base_geometries WHERE geometry_hash = ?`, hash).
		Scan(&verts, &faces, &norms)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: geometry %s: %w", hash, err)
	}
	return kernel.Decode(verts, faces, norms)
}

// BBoxOf returns the persisted spatial index entry for an instance.
func (s *Store) BBoxOf(guid string) (BBox, error) {
	var b BBox
	err := s.db.QueryRow(`
		SELECT si.min_x, si.max_x, si.min_y, si.max_y, si.min_z, si.max_z
		FROM spatial_index si
		JOIN element_instances ei ON ei.rowid = si.id
		WHERE ei.guid = ?`, guid).Scan(&b.Min[0], &b.Max[0], &b.Min[1], &b.Max[1], &b.Min[2], &b.Max[2])
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	if err != nil {
		return b, fmt.Errorf("store: bbox of %s: %w", guid, err)
	}
	return b, nil
}

// RangeQuery returns the guids of all instances whose bounding box
// intersects the query box. Conservative: the bbox test may over-report
// relative to exact geometry, never under-report.
func (s *Store) RangeQuery(min, max [3]float64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rect, err := rectOf(BBox{Min: min, Max: max})
	if err != nil {
		return nil, fmt.Errorf("store: range query: %w", err)
	}
	hits := s.tree.SearchIntersect(rect)
	guids := make([]string, 0, len(hits))
	for _, h := range hits {
		guids = append(guids, h.(*indexEntry).guid)
	}
	return guids, nil
}

// UpdateTransform corrects an instance placement and recomputes its
// spatial index entry from the transformed geometry. If the recomputed
// entry cannot be verified it is recomputed once more; a second failure
// is fatal (IndexInconsistentError).
func (s *Store) UpdateTransform(guid string, t Transform) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[guid]
	if !ok {
		return ErrNotFound
	}

	var hash string
	if err := s.db.QueryRow(`SELECT geometry_hash FROM element_instances WHERE guid = ?`, guid).Scan(&hash); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return fmt.Errorf("store: update %s: %w", guid, err)
	}
	mesh, err := s.Geometry(hash)
	if err != nil {
		return err
	}

	bbox := computeBBox(mesh, t)
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: update %s: %w", guid, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		UPDATE element_instances
		SET pos_x = ?, pos_y = ?, pos_z = ?, rot_x = ?, rot_y = ?, rot_z = ?, scale = ?
		WHERE guid = ?`,
		t.Position.X, t.Position.Y, t.Position.Z,
		t.Rotation.X, t.Rotation.Y, t.Rotation.Z,
		t.Scale, guid); err != nil {
		return fmt.Errorf("store: update %s: %w", guid, err)
	}
	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO spatial_index (id, min_x, max_x, min_y, max_y, min_z, max_z)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.id, bbox.Min[0], bbox.Max[0], bbox.Min[1], bbox.Max[1], bbox.Min[2], bbox.Max[2]); err != nil {
		return fmt.Errorf("store: update spatial index for %s: %w", guid, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: update %s: %w", guid, err)
	}

	if err := s.replaceEntry(entry, bbox); err != nil {
		// Recoverable once: recompute the box and retry the swap.
		bbox = computeBBox(mesh, t)
		if err := s.replaceEntry(entry, bbox); err != nil {
			return &IndexInconsistentError{GUID: guid}
		}
	}
	return nil
}

// replaceEntry swaps an instance's R-tree entry for a new bounding box.
func (s *Store) replaceEntry(entry *indexEntry, bbox BBox) error {
	rect, err := rectOf(bbox)
	if err != nil {
		return err
	}
	if !s.tree.Delete(entry) {
		return fmt.Errorf("store: stale index entry for %s", entry.guid)
	}
	next := &indexEntry{id: entry.id, guid: entry.guid, rect: rect}
	s.entries[entry.guid] = next
	s.tree.Insert(next)
	return nil
}

// InstanceCount returns the number of instances referencing a geometry.
func (s *Store) InstanceCount(hash string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM element_instances WHERE geometry_hash = ?`, hash).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: instance count %s: %w", hash, err)
	}
	return n, nil
}

// Counts returns the number of unique geometries and placed instances.
func (s *Store) Counts() (geometries, instances int, err error) {
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM base_geometries`).Scan(&geometries); err != nil {
		return 0, 0, fmt.Errorf("store: counts: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM element_instances`).Scan(&instances); err != nil {
		return 0, 0, fmt.Errorf("store: counts: %w", err)
	}
	return geometries, instances, nil
}

// GC deletes geometries no instance references and returns how many rows
// were removed.
func (s *Store) GC() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		DELETE FROM base_geometries
		WHERE geometry_hash NOT IN (SELECT geometry_hash FROM element_instances)`)
	if err != nil {
		return 0, fmt.Errorf("store: gc: %w", err)
	}
	return res.RowsAffected()
}
