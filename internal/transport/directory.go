package transport

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/shellhist/internal/store"
)

// snapshotExt is the suffix of snapshot files in a sync directory.
const snapshotExt = ".db"

// Directory synchronizes through a folder shared between machines, for example
// one kept in sync by a file-sync service. Every machine keeps exactly one
// snapshot file there and merges everyone else's.
type Directory struct {
	Store    *store.Store
	Dir      string
	Hostname string
	Logger   *slog.Logger
}

// PeerResult reports the handling of one file found in the directory.
type PeerResult struct {
	Path    string `json:"path"`
	Skipped bool   `json:"skipped,omitempty"`
	// Removed marks an older snapshot of this store, published under a
	// previous name, that was deleted after the current one was written.
	Removed bool              `json:"removed,omitempty"`
	Merge   store.MergeResult `json:"merge"`
	Err     error             `json:"-"`
	Error   string            `json:"error,omitempty"`
}

// DirectoryResult reports a whole directory sync.
type DirectoryResult struct {
	Peers   []PeerResult       `json:"peers"`
	Written store.SnapshotInfo `json:"written"`
}

// Failed returns the number of peer files that could not be merged.
func (r DirectoryResult) Failed() int {
	n := 0
	for _, p := range r.Peers {
		if p.Err != nil {
			n++
		}
	}
	return n
}

// Totals sums considered and added rows over all merged peers.
func (r DirectoryResult) Totals() (considered, added int) {
	for _, p := range r.Peers {
		considered += p.Merge.Considered
		added += p.Merge.Added
	}
	return considered, added
}

// Sync merges every foreign snapshot in the directory, then replaces this
// machine's own snapshot with a fresh full one. Snapshots this store wrote
// under an earlier name, for example before a hostname change, are removed
// once the new one is in place, so each store keeps exactly one file.
//
// A peer file that cannot be read or merged is recorded in its PeerResult and
// the scan continues. Sync returns an error only when the directory itself
// cannot be used or the local snapshot cannot be written.
func (d *Directory) Sync(ctx context.Context) (DirectoryResult, error) {
	var result DirectoryResult
	log := d.logger()

	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return result, &TransportError{Op: "create directory", Peer: d.Dir, Err: err}
	}

	origin, err := d.Store.OriginID(ctx)
	if err != nil {
		return result, err
	}
	ownName := SnapshotName(d.Hostname, origin)

	peers, err := d.scan()
	if err != nil {
		return result, err
	}

	localPath, _ := filepath.Abs(d.Store.Path())
	var stale []int
	for _, path := range peers {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		pr, own := d.mergePeer(ctx, path, origin, localPath)
		if own && filepath.Base(path) != ownName {
			stale = append(stale, len(result.Peers))
		}
		switch {
		case pr.Err != nil:
			log.Warn("peer snapshot failed", "path", path, "error", pr.Err)
		case pr.Skipped:
			log.Debug("skipping own snapshot", "path", path)
		default:
			log.Debug("peer snapshot merged", "path", path, "considered", pr.Merge.Considered, "added", pr.Merge.Added)
		}
		result.Peers = append(result.Peers, pr)
	}

	written, err := d.writeOwn(ctx, ownName)
	if err != nil {
		return result, err
	}
	result.Written = written
	log.Debug("own snapshot written", "path", written.Path, "rows", written.Rows)

	for _, i := range stale {
		p := &result.Peers[i]
		if err := os.Remove(p.Path); err != nil && !os.IsNotExist(err) {
			log.Warn("could not remove old snapshot", "path", p.Path, "error", err)
			continue
		}
		p.Removed = true
		log.Debug("old snapshot removed", "path", p.Path)
	}
	return result, nil
}

// scan lists candidate snapshot files in name order. Hidden files are in-flight
// writes and are ignored.
func (d *Directory) scan() ([]string, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return nil, &TransportError{Op: "read directory", Peer: d.Dir, Err: err}
	}

	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, snapshotExt) {
			continue
		}
		paths = append(paths, filepath.Join(d.Dir, name))
	}
	sort.Strings(paths)
	return paths, nil
}

// mergePeer merges one file. own reports a snapshot this store published
// earlier; the live database itself is skipped but never reported as own.
func (d *Directory) mergePeer(ctx context.Context, path, origin, localPath string) (pr PeerResult, own bool) {
	pr = PeerResult{Path: path}

	if abs, err := filepath.Abs(path); err == nil && abs == localPath {
		pr.Skipped = true
		return pr, false
	}

	peerOrigin, err := d.Store.SnapshotOrigin(ctx, path)
	if err != nil {
		pr.Err = err
		pr.Error = err.Error()
		return pr, false
	}
	if peerOrigin != "" && peerOrigin == origin {
		pr.Skipped = true
		return pr, true
	}

	merged, err := d.Store.Merge(ctx, path)
	if err != nil {
		pr.Err = err
		pr.Error = err.Error()
		return pr, false
	}
	pr.Merge = merged
	return pr, false
}

// writeOwn builds a full snapshot beside the target and renames it into place
// so readers never see a partial file.
func (d *Directory) writeOwn(ctx context.Context, name string) (store.SnapshotInfo, error) {
	final := filepath.Join(d.Dir, name)
	tmp := filepath.Join(d.Dir, fmt.Sprintf(".%s.%s.tmp", name, uuid.NewString()))

	info, err := d.Store.Snapshot(ctx, tmp, store.SnapshotOptions{})
	if err != nil {
		os.Remove(tmp)
		return store.SnapshotInfo{}, err
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return store.SnapshotInfo{}, &TransportError{Op: "publish snapshot", Peer: d.Dir, Err: err}
	}
	info.Path = final
	return info, nil
}

func (d *Directory) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// SnapshotName returns the stable file name of a machine's snapshot: its
// hostname plus the random tail of its origin id.
func SnapshotName(hostname, origin string) string {
	host := sanitizeName(hostname)
	if host == "" {
		host = "host"
	}
	tail := strings.ReplaceAll(origin, "-", "")
	if len(tail) > 12 {
		tail = tail[len(tail)-12:]
	}
	if tail == "" {
		return host + snapshotExt
	}
	return host + "-" + tail + snapshotExt
}

func sanitizeName(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		case r == '.':
			if sb.Len() > 0 {
				sb.WriteRune(r)
			}
		default:
			sb.WriteRune('_')
		}
	}
	return strings.TrimRight(sb.String(), ".")
}
