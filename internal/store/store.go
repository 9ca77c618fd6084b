// Package store persists compilation profiles: the ordered folder list,
// per-folder conversion metadata, and the recorded disc image state.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"mixpress/internal/folders"
	"mixpress/internal/iso"
	"mixpress/internal/services"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped on incompatible schema changes. Old databases must
// be deleted rather than migrated.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by a different version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Store is a single-writer SQLite database guarded by a file lock so two
// processes cannot mutate the same profile database concurrently.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
	path string
}

// Open connects to (or creates) the profile database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire database lock: %w", err)
	}
	if !locked {
		return nil, services.Wrap(services.ErrConfiguration, "store", "open", "profile database is in use by another process", nil)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, lock: lock, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}
	return store, nil
}

// Close releases the database and its lock.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	var firstErr error
	if s.db != nil {
		firstErr = s.db.Close()
	}
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		return nil
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to start over)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

// Profile is a saved compilation.
type Profile struct {
	Name      string
	Folders   []*folders.MusicFolder
	Image     *iso.State
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Summary is one row of the profile listing.
type Summary struct {
	Name        string
	FolderCount int
	UpdatedAt   time.Time
}

// SaveProfile upserts a profile with its full folder list and image state.
func (s *Store) SaveProfile(ctx context.Context, name string, list []*folders.MusicFolder, image *iso.State) error {
	if name == "" {
		return services.Wrap(services.ErrValidation, "store", "save_profile", "profile name is required", nil)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var isoPath, isoHash string
	var isoSize int64
	var isoValid int
	if image != nil {
		isoPath, isoHash, isoSize = image.Path, image.ContentHash, image.SizeBytes
		if image.Valid {
			isoValid = 1
		}
	}

	if _, err := tx.ExecContext(ctx, `
        INSERT INTO profiles (name, created_at, updated_at, iso_path, iso_content_hash, iso_size_bytes, iso_valid)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(name) DO UPDATE SET
            updated_at = excluded.updated_at,
            iso_path = excluded.iso_path,
            iso_content_hash = excluded.iso_content_hash,
            iso_size_bytes = excluded.iso_size_bytes,
            iso_valid = excluded.iso_valid`,
		name, now, now, isoPath, isoHash, isoSize, isoValid,
	); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}

	var profileID int64
	if err := tx.QueryRowContext(ctx, "SELECT id FROM profiles WHERE name = ?", name).Scan(&profileID); err != nil {
		return fmt.Errorf("resolve profile id: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM profile_folders WHERE profile_id = ?", profileID); err != nil {
		return fmt.Errorf("clear profile folders: %w", err)
	}

	for position, folder := range list {
		trackOrder, err := json.Marshal(folder.TrackOrder)
		if err != nil {
			return fmt.Errorf("marshal track order: %w", err)
		}
		excluded := make([]string, 0, len(folder.ExcludedTracks))
		for path := range folder.ExcludedTracks {
			excluded = append(excluded, path)
		}
		excludedJSON, err := json.Marshal(excluded)
		if err != nil {
			return fmt.Errorf("marshal exclusions: %w", err)
		}

		status := folder.Status
		var bitrate sql.NullInt64
		if status.LosslessBitrate != nil {
			bitrate = sql.NullInt64{Int64: int64(*status.LosslessBitrate), Valid: true}
		}
		completedAt := ""
		if !status.CompletedAt.IsZero() {
			completedAt = status.CompletedAt.UTC().Format(time.RFC3339Nano)
		}

		if _, err := tx.ExecContext(ctx, `
            INSERT INTO profile_folders (
                profile_id, position, folder_id, path, kind, album_name, artist_name, year,
                state, output_dir, lossless_bitrate, output_size, completed_at,
                track_order, excluded_tracks
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			profileID, position, string(folder.ID), folder.Path, string(folder.Kind),
			folder.AlbumName, folder.ArtistName, folder.Year,
			string(status.State), status.OutputDir, bitrate, status.OutputSize, completedAt,
			string(trackOrder), string(excludedJSON),
		); err != nil {
			return fmt.Errorf("insert profile folder: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit profile: %w", err)
	}
	return nil
}

// LoadProfile reads a profile by name. Folder statuses other than Converted
// are reset to NotConverted: in-progress state is meaningless across runs
// and the engine rediscovers finished work on disk anyway.
func (s *Store) LoadProfile(ctx context.Context, name string) (*Profile, error) {
	var profileID int64
	var createdAt, updatedAt, isoPath, isoHash string
	var isoSize int64
	var isoValid int
	err := s.db.QueryRowContext(ctx, `
        SELECT id, created_at, updated_at, iso_path, iso_content_hash, iso_size_bytes, iso_valid
        FROM profiles WHERE name = ?`, name,
	).Scan(&profileID, &createdAt, &updatedAt, &isoPath, &isoHash, &isoSize, &isoValid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "store", "load_profile", fmt.Sprintf("no profile named %q", name), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	profile := &Profile{Name: name}
	profile.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	profile.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if isoPath != "" {
		profile.Image = &iso.State{Path: isoPath, ContentHash: isoHash, SizeBytes: isoSize, Valid: isoValid == 1}
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT folder_id, path, kind, album_name, artist_name, year,
               state, output_dir, lossless_bitrate, output_size, completed_at,
               track_order, excluded_tracks
        FROM profile_folders WHERE profile_id = ? ORDER BY position`, profileID)
	if err != nil {
		return nil, fmt.Errorf("load profile folders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var folderID, path, kind, albumName, artistName string
		var year int
		var state, outputDir, completedAt, trackOrderJSON, excludedJSON string
		var bitrate sql.NullInt64
		var outputSize int64
		if err := rows.Scan(&folderID, &path, &kind, &albumName, &artistName, &year,
			&state, &outputDir, &bitrate, &outputSize, &completedAt,
			&trackOrderJSON, &excludedJSON); err != nil {
			return nil, fmt.Errorf("scan profile folder: %w", err)
		}

		folder := &folders.MusicFolder{
			ID:             folders.ID(folderID),
			Path:           path,
			Kind:           folders.Kind(kind),
			AlbumName:      albumName,
			ArtistName:     artistName,
			Year:           year,
			Status:         folders.NotConverted(),
			ExcludedTracks: map[string]struct{}{},
		}
		if err := json.Unmarshal([]byte(trackOrderJSON), &folder.TrackOrder); err != nil {
			return nil, fmt.Errorf("decode track order: %w", err)
		}
		var excluded []string
		if err := json.Unmarshal([]byte(excludedJSON), &excluded); err != nil {
			return nil, fmt.Errorf("decode exclusions: %w", err)
		}
		for _, track := range excluded {
			folder.ExcludedTracks[track] = struct{}{}
		}

		if folders.State(state) == folders.StateConverted {
			var used *int
			if bitrate.Valid {
				value := int(bitrate.Int64)
				used = &value
			}
			when, _ := time.Parse(time.RFC3339Nano, completedAt)
			folder.Status = folders.Converted(outputDir, used, outputSize, when)
		}
		if path != "" {
			_, statErr := os.Stat(path)
			folder.SourceAvailable = statErr == nil
		}
		profile.Folders = append(profile.Folders, folder)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profile folders: %w", err)
	}
	return profile, nil
}

// ListProfiles returns summaries ordered by most recent update.
func (s *Store) ListProfiles(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT p.name, p.updated_at, COUNT(f.folder_id)
        FROM profiles p
        LEFT JOIN profile_folders f ON f.profile_id = p.id
        GROUP BY p.id
        ORDER BY p.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var name, updatedAt string
		var count int
		if err := rows.Scan(&name, &updatedAt, &count); err != nil {
			return nil, fmt.Errorf("scan profile summary: %w", err)
		}
		when, _ := time.Parse(time.RFC3339Nano, updatedAt)
		summaries = append(summaries, Summary{Name: name, FolderCount: count, UpdatedAt: when})
	}
	return summaries, rows.Err()
}

// DeleteProfile removes a profile and its folders.
func (s *Store) DeleteProfile(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM profiles WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "store", "delete_profile", fmt.Sprintf("no profile named %q", name), nil)
	}
	return nil
}
