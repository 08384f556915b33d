package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/newthinker/pushrelay/internal/core"
)

// Root is the top-level directory of archived delivery records.
const Root = "deliveries"

const dayLayout = "2006/01/02"

func errUnknownType(t string) error {
	return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown archive type %q", t))
}

// PathFor returns deliveries/YYYY/MM/DD/<id>.json for the result, using
// the UTC date of the result.
func PathFor(result core.Result) string {
	return path.Join(DayPrefix(result.At), result.ID+".json")
}

// DayPrefix returns the directory holding records of the given day.
func DayPrefix(day time.Time) string {
	return path.Join(Root, day.UTC().Format(dayLayout))
}

// ArchiveResult writes the result as JSON under its dated path. A result
// never carries credentials, so nothing secret reaches the archive.
func ArchiveResult(ctx context.Context, s Storage, result core.Result) error {
	if result.ID == "" {
		return core.WrapError(core.ErrArchiveFailed, fmt.Errorf("result has no id"))
	}
	if err := checkRecordID(result.ID); err != nil {
		return core.WrapError(core.ErrArchiveFailed, err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return core.WrapError(core.ErrArchiveFailed, err)
	}
	if err := s.Write(ctx, PathFor(result), data); err != nil {
		return core.WrapError(core.ErrArchiveFailed, err)
	}
	return nil
}

// LoadResult reads back an archived result of the given day. The id must be
// a single path element.
func LoadResult(ctx context.Context, s Storage, day time.Time, id string) (*core.Result, error) {
	if err := checkRecordID(id); err != nil {
		return nil, err
	}

	p := path.Join(DayPrefix(day), id+".json")
	ok, err := s.Exists(ctx, p)
	if err != nil {
		return nil, core.WrapError(core.ErrArchiveFailed, err)
	}
	if !ok {
		return nil, core.ErrDeliveryNotFound
	}

	data, err := s.Read(ctx, p)
	if err != nil {
		return nil, core.WrapError(core.ErrArchiveFailed, err)
	}
	var result core.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, core.WrapError(core.ErrArchiveFailed, fmt.Errorf("decoding %s: %w", p, err))
	}
	return &result, nil
}

func checkRecordID(id string) error {
	if id == "" || id == "." || strings.Contains(id, "..") || strings.ContainsAny(id, "/\\") {
		return core.WrapError(core.ErrBadRequest, fmt.Errorf("invalid record id %q", id))
	}
	return nil
}

// ListDay returns the IDs archived on the given day in sorted order.
func ListDay(ctx context.Context, s Storage, day time.Time) ([]string, error) {
	paths, err := s.List(ctx, DayPrefix(day))
	if err != nil {
		return nil, core.WrapError(core.ErrArchiveFailed, err)
	}

	ids := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.ReplaceAll(p, "\\", "/")
		if id, ok := strings.CutSuffix(path.Base(p), ".json"); ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Prune deletes records of days strictly before cutoff and returns how
// many were removed.
func Prune(ctx context.Context, s Storage, cutoff time.Time) (int, error) {
	paths, err := s.List(ctx, Root)
	if err != nil {
		return 0, core.WrapError(core.ErrArchiveFailed, err)
	}

	limit := cutoff.UTC().Truncate(24 * time.Hour)
	removed := 0
	for _, p := range paths {
		day, ok := recordDay(p)
		if !ok || !day.Before(limit) {
			continue
		}
		if err := s.Delete(ctx, p); err != nil {
			return removed, core.WrapError(core.ErrArchiveFailed, err)
		}
		removed++
	}
	return removed, nil
}

// recordDay parses the date out of deliveries/YYYY/MM/DD/<id>.json.
func recordDay(p string) (time.Time, bool) {
	parts := strings.Split(strings.ReplaceAll(p, "\\", "/"), "/")
	if len(parts) != 5 || parts[0] != Root {
		return time.Time{}, false
	}
	day, err := time.Parse(dayLayout, strings.Join(parts[1:4], "/"))
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}
