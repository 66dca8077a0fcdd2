// Package archive keeps a local copy of status payloads: media files on disk
// under per-type folders and an index in SQLite.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/bigbes/status-engage-bot/internal/message"
	"github.com/bigbes/status-engage-bot/internal/metrics"
)

var (
	ErrNotFound  = errors.New("archive: entry not found")
	ErrNoContent = errors.New("archive: status has no content")
)

// Folders lists the media folders under the archive directory.
var Folders = []string{"images", "videos", "audio", "stickers", "documents"}

// Downloader fetches status media.
type Downloader interface {
	DownloadMedia(ctx context.Context, key message.Key) (*message.Media, error)
}

type mediaInfo struct {
	typ    string
	ext    string
	folder string
}

var mediaByKind = map[message.ContentKind]mediaInfo{
	message.KindImage:    {"image", "jpg", "images"},
	message.KindVideo:    {"video", "mp4", "videos"},
	message.KindAudio:    {"audio", "mp3", "audio"},
	message.KindSticker:  {"sticker", "webp", "stickers"},
	message.KindDocument: {"document", "bin", "documents"},
}

// Store is the status archive.
type Store struct {
	db     *sql.DB
	dir    string
	dl     Downloader
	logger *slog.Logger
	now    func() time.Time
}

// Open opens (or creates) the index at dbPath. Media files live under dir.
// dl may be nil for read-only use.
func Open(dbPath, dir string, dl Downloader, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("archive: create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("archive: open %q: %w", dbPath, err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("archive: %s: %w", pragma, err)
		}
	}

	s := &Store{db: db, dir: dir, dl: dl, logger: logger, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the index.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dir returns the media root.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) initSchema() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS entries (
  id TEXT PRIMARY KEY,
  type TEXT NOT NULL,
  filename TEXT NOT NULL DEFAULT '',
  folder TEXT NOT NULL DEFAULT '',
  size_bytes INTEGER NOT NULL DEFAULT 0,
  caption TEXT NOT NULL DEFAULT '',
  content TEXT NOT NULL DEFAULT '',
  sender TEXT NOT NULL DEFAULT '',
  sender_number TEXT NOT NULL DEFAULT '',
  created_ms INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS entries_created ON entries (created_ms);`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("archive: init schema: %w", err)
	}
	return nil
}

// Archive stores the payload of ev. Media is downloaded through the
// Downloader; text statuses are stored inline.
func (s *Store) Archive(ctx context.Context, ev *message.Event) (*Entry, error) {
	now := s.now()
	id := uuid.NewString()
	e := Entry{
		ID:           id,
		Caption:      ev.Caption,
		Sender:       ev.SenderName(),
		SenderNumber: ev.SenderNumber(),
		Timestamp:    now,
	}

	info, isMedia := mediaByKind[ev.Kind]
	if !isMedia {
		if ev.Text == "" {
			return nil, ErrNoContent
		}
		e.Type = "text"
		e.Content = ev.Text
	} else {
		if s.dl == nil {
			return nil, fmt.Errorf("archive: no downloader configured")
		}
		media, err := s.dl.DownloadMedia(ctx, ev.Key)
		if err != nil {
			return nil, fmt.Errorf("archive: download %s: %w", ev.Key.ID, err)
		}
		if media == nil || len(media.Data) == 0 {
			return nil, fmt.Errorf("archive: download %s: empty payload", ev.Key.ID)
		}

		ext := info.ext
		if info.typ == "document" {
			ext = documentExt(ev.FileName, media.FileName)
		}
		e.Type = info.typ
		e.Folder = info.folder
		e.FileName = fmt.Sprintf("%s_%d_%s.%s", e.SenderNumber, now.UnixMilli(), id[:8], ext)
		e.SizeBytes = int64(len(media.Data))

		folder := filepath.Join(s.dir, info.folder)
		if err := os.MkdirAll(folder, 0o755); err != nil {
			return nil, fmt.Errorf("archive: create folder: %w", err)
		}
		if err := os.WriteFile(filepath.Join(folder, e.FileName), media.Data, 0o644); err != nil {
			return nil, fmt.Errorf("archive: write %s: %w", e.FileName, err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entries
		 (id, type, filename, folder, size_bytes, caption, content, sender, sender_number, created_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Type, e.FileName, e.Folder, e.SizeBytes,
		e.Caption, e.Content, e.Sender, e.SenderNumber, now.UnixMilli(),
	)
	if err != nil {
		if e.FileName != "" {
			os.Remove(s.filePath(&e))
		}
		return nil, fmt.Errorf("archive: insert %s: %w", e.ID, err)
	}

	metrics.ArchivedTotal.WithLabelValues(e.Type).Inc()
	metrics.ArchivedBytes.Add(float64(e.SizeBytes))
	e.fill()
	s.logger.Info("archive: stored status", "type", e.Type, "sender", e.Sender, "size", e.Size)
	return &e, nil
}

func documentExt(names ...string) string {
	for _, n := range names {
		if ext := strings.TrimPrefix(filepath.Ext(n), "."); ext != "" {
			return strings.ToLower(ext)
		}
	}
	return "bin"
}

func (s *Store) filePath(e *Entry) string {
	return filepath.Join(s.dir, e.Folder, e.FileName)
}

// FilePath returns the on-disk location of a media entry.
func (s *Store) FilePath(e *Entry) string {
	if e.FileName == "" {
		return ""
	}
	return s.filePath(e)
}

const entryColumns = `id, type, filename, folder, size_bytes, caption, content, sender, sender_number, created_ms`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var e Entry
	var createdMs int64
	if err := row.Scan(&e.ID, &e.Type, &e.FileName, &e.Folder, &e.SizeBytes,
		&e.Caption, &e.Content, &e.Sender, &e.SenderNumber, &createdMs); err != nil {
		return Entry{}, err
	}
	e.Timestamp = time.UnixMilli(createdMs)
	e.fill()
	return e, nil
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// List returns one page of entries, newest first.
func (s *Store) List(ctx context.Context, f Filter) (*Page, error) {
	var (
		where []string
		args  []any
	)
	if f.Type != "" && f.Type != "all" {
		where = append(where, "type = ?")
		args = append(args, f.Type)
	}
	if f.Sender != "" {
		p := likePattern(f.Sender)
		where = append(where, `(sender_number LIKE ? ESCAPE '\' OR sender LIKE ? ESCAPE '\')`)
		args = append(args, p, p)
	}
	if f.Search != "" {
		p := likePattern(f.Search)
		where = append(where, `(caption LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\' OR sender LIKE ? ESCAPE '\')`)
		args = append(args, p, p, p)
	}
	if !f.Date.IsZero() {
		day := time.Date(f.Date.Year(), f.Date.Month(), f.Date.Day(), 0, 0, 0, 0, f.Date.Location())
		where = append(where, "created_ms >= ? AND created_ms < ?")
		args = append(args, day.UnixMilli(), day.AddDate(0, 0, 1).UnixMilli())
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries"+cond, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("archive: count entries: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM entries"+cond+" ORDER BY created_ms DESC, rowid DESC LIMIT ? OFFSET ?",
		append(args, limit, (page-1)*limit)...)
	if err != nil {
		return nil, fmt.Errorf("archive: query entries: %w", err)
	}
	defer rows.Close()

	out := &Page{Data: []Entry{}, Total: total, Page: page, Limit: limit}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("archive: scan entry: %w", err)
		}
		out.Data = append(out.Data, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: iterate entries: %w", err)
	}

	out.TotalPages = (total + limit - 1) / limit
	if out.TotalPages == 0 {
		out.TotalPages = 1
	}
	out.HasMore = page*limit < total
	return out, nil
}

// Get returns the entry with the given id.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM entries WHERE id = ?", id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("archive: get %s: %w", id, err)
	}
	return &e, nil
}

// Stats counts entries per type.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT type, COUNT(*), COALESCE(SUM(size_bytes), 0) FROM entries GROUP BY type")
	if err != nil {
		return nil, fmt.Errorf("archive: query stats: %w", err)
	}
	defer rows.Close()

	st := &Stats{}
	for rows.Next() {
		var (
			typ   string
			n     int
			bytes int64
		)
		if err := rows.Scan(&typ, &n, &bytes); err != nil {
			return nil, fmt.Errorf("archive: scan stats: %w", err)
		}
		st.Total += n
		st.TotalSizeBytes += bytes
		switch typ {
		case "image":
			st.Images = n
		case "video":
			st.Videos = n
		case "audio":
			st.Audio = n
		case "text":
			st.Text = n
		case "sticker":
			st.Stickers = n
		case "document":
			st.Documents = n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: iterate stats: %w", err)
	}
	st.TotalSize = humanize.IBytes(uint64(st.TotalSizeBytes))
	return st, nil
}

// Delete removes one entry and its file.
func (s *Store) Delete(ctx context.Context, id string) error {
	e, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if e.FileName != "" {
		if err := os.Remove(s.filePath(e)); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("archive: failed to remove file", "path", s.filePath(e), "err", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", id); err != nil {
		return fmt.Errorf("archive: delete %s: %w", id, err)
	}
	return nil
}

// ClearAll removes every media file and empties the index.
func (s *Store) ClearAll(ctx context.Context) error {
	for _, folder := range Folders {
		dir := filepath.Join(s.dir, folder)
		files, err := os.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("archive: read %s: %w", dir, err)
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			if err := os.Remove(filepath.Join(dir, f.Name())); err != nil {
				s.logger.Warn("archive: failed to remove file", "path", filepath.Join(dir, f.Name()), "err", err)
			}
		}
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM entries"); err != nil {
		return fmt.Errorf("archive: clear: %w", err)
	}
	s.logger.Info("archive: cleared all downloads")
	return nil
}
