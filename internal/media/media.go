// Package media saves inbound media files to a local directory and, when
// configured, mirrors them to an S3-compatible bucket.
package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/zulandar/mailslot/internal/telegraph"
)

// Fetcher downloads files from the chat platform.
type Fetcher interface {
	FetchFile(ctx context.Context, fileID string) (telegraph.RemoteFile, error)
}

// Mirror stores a copy of a saved file under key.
type Mirror interface {
	Upload(ctx context.Context, key string, data []byte) error
}

var defaultExt = map[telegraph.Kind]string{
	telegraph.KindPhoto: ".jpg",
	telegraph.KindVideo: ".mp4",
	telegraph.KindAudio: ".mp3",
}

// Store saves media files as <kind>_<userID>_<YYYYmmddHHMMSS><ext> in Dir,
// adding "_N" before the extension when that name is taken.
type Store struct {
	dir     string
	fetcher Fetcher
	mirror  Mirror
	now     func() time.Time
}

// StoreOpts holds parameters for creating a Store.
type StoreOpts struct {
	Dir     string
	Fetcher Fetcher
	Mirror  Mirror // optional
	Now     func() time.Time
}

// NewStore creates a Store, creating Dir if needed.
func NewStore(opts StoreOpts) (*Store, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("media: dir is required")
	}
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("media: fetcher is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("media: create %s: %w", opts.Dir, err)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{dir: opts.Dir, fetcher: opts.Fetcher, mirror: opts.Mirror, now: now}, nil
}

// maxNameAttempts bounds the "_N" suffixes tried for one second's files.
const maxNameAttempts = 100

// writeNew creates base+ext in the media directory, or base_N+ext when files
// from the same second already exist. An existing file is never overwritten.
func (s *Store) writeNew(base, ext string, data []byte) (string, error) {
	for i := 0; i < maxNameAttempts; i++ {
		name := base + ext
		if i > 0 {
			name = fmt.Sprintf("%s_%d%s", base, i, ext)
		}
		dest := filepath.Join(s.dir, name)
		file, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("media: create %s: %w", dest, err)
		}
		if _, err := file.Write(data); err != nil {
			file.Close()
			return "", fmt.Errorf("media: write %s: %w", dest, err)
		}
		if err := file.Close(); err != nil {
			return "", fmt.Errorf("media: write %s: %w", dest, err)
		}
		return name, nil
	}
	return "", fmt.Errorf("media: no free name for %s%s", base, ext)
}

// Save downloads fileID and writes it to the media directory, returning the
// local path. A mirror upload failure is logged and does not fail Save.
func (s *Store) Save(ctx context.Context, kind telegraph.Kind, userID int64, fileID string) (string, error) {
	def, ok := defaultExt[kind]
	if !ok {
		return "", fmt.Errorf("media: unsupported kind %q", kind)
	}
	f, err := s.fetcher.FetchFile(ctx, fileID)
	if err != nil {
		return "", fmt.Errorf("media: fetch %s: %w", fileID, err)
	}
	ext := filepath.Ext(f.Path)
	if ext == "" {
		ext = def
	}
	base := fmt.Sprintf("%s_%d_%s", kind, userID, s.now().UTC().Format("20060102150405"))
	name, err := s.writeNew(base, ext, f.Data)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(s.dir, name)
	log.Printf("media: saved %s (%d bytes)", dest, len(f.Data))

	if s.mirror != nil {
		if err := s.mirror.Upload(ctx, name, f.Data); err != nil {
			log.Printf("media: mirror %s: %v", name, err)
		}
	}
	return dest, nil
}
