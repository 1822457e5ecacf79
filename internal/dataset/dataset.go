// Package dataset pairs videos with their annotations according to a
// convention's on-disk layout.
package dataset

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/forPelevin/phasesplit/internal/domain/convention"
	"github.com/forPelevin/phasesplit/internal/ports"
	"github.com/forPelevin/phasesplit/internal/types"
)

var caseNumber = regexp.MustCompile(`(?i)case_(\d+)`)

// VideoExts are the container extensions considered videos.
var VideoExts = []string{".mp4", ".avi", ".mov", ".mkv", ".m4v"}

type Options struct {
	VideoDir       string
	AnnotationDir  string
	AnnotationFile string
}

// Case is one video with its annotation. Rows is set for master-table
// conventions, where the annotation file holds every case.
type Case struct {
	ID         string
	Video      string
	Annotation string
	Rows       []types.Row
}

// Skip is a file that could not become a case.
type Skip struct {
	CaseID string
	Path   string
	Err    error
}

type Result struct {
	Cases   []Case
	Skipped []Skip
}

// CaseID extracts the case identifier of a file name: the number after
// "case_" with leading zeros dropped, or the stem when fromStem is set.
func CaseID(name string, fromStem bool) (string, error) {
	base := filepath.Base(name)
	if fromStem {
		stem := strings.TrimSuffix(base, filepath.Ext(base))
		if stem == "" {
			return "", fmt.Errorf("%w: %s", types.ErrCaseIDUnparseable, base)
		}
		return stem, nil
	}
	m := caseNumber.FindStringSubmatch(base)
	if m == nil {
		return "", fmt.Errorf("%w: %s", types.ErrCaseIDUnparseable, base)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", types.ErrCaseIDUnparseable, base, err)
	}
	return strconv.Itoa(n), nil
}

// Discover lists the cases of a dataset. Files that cannot be paired or
// identified are reported in Skipped, never as an error.
func Discover(conv *convention.Convention, opts Options, tables ports.TableReader) (Result, error) {
	var res Result
	videos, err := listVideos(opts.VideoDir, conv.CaseFromStem, &res)
	if err != nil {
		return Result{}, err
	}

	annotations := make(map[string]string)
	var master map[string][]types.Row
	switch conv.Layout {
	case convention.Master:
		tab, err := tables.ReadTable(opts.AnnotationFile, conv.Comma(), conv.Header)
		if err != nil {
			return Result{}, fmt.Errorf("read master table %s: %w", opts.AnnotationFile, err)
		}
		groups, keys, err := conv.GroupByCase(tab.Rows)
		if err != nil {
			return Result{}, fmt.Errorf("master table %s: %w", opts.AnnotationFile, err)
		}
		// Canonical keys ("4") win over zero-padded spellings ("004").
		canonical := func(k string) bool { return k == normalizeID(k, conv.CaseFromStem) }
		sort.SliceStable(keys, func(i, j int) bool {
			ci, cj := canonical(keys[i]), canonical(keys[j])
			if ci != cj {
				return ci
			}
			return keys[i] < keys[j]
		})
		master = make(map[string][]types.Row, len(groups))
		owner := make(map[string]string, len(groups))
		for _, k := range keys {
			id := normalizeID(k, conv.CaseFromStem)
			if prev, dup := owner[id]; dup {
				res.Skipped = append(res.Skipped, Skip{CaseID: id, Path: opts.AnnotationFile,
					Err: fmt.Errorf("%w: rows for case %s listed as both %q and %q, using %q", types.ErrMissingPair, id, prev, k, prev)})
				continue
			}
			owner[id] = k
			annotations[id] = opts.AnnotationFile
			master[id] = groups[k]
		}
	case convention.PerCase:
		err := filepath.WalkDir(opts.AnnotationDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(d.Name(), conv.AnnotationSuffix) {
				return nil
			}
			id, err := CaseID(strings.TrimSuffix(d.Name(), conv.AnnotationSuffix), conv.CaseFromStem)
			if err != nil {
				res.Skipped = append(res.Skipped, Skip{Path: path, Err: err})
				return nil
			}
			if prev, dup := annotations[id]; dup {
				res.Skipped = append(res.Skipped, Skip{CaseID: id, Path: path,
					Err: fmt.Errorf("%w: second annotation for case %s (already using %s)", types.ErrMissingPair, id, prev)})
				return nil
			}
			annotations[id] = path
			return nil
		})
		if err != nil {
			return Result{}, fmt.Errorf("walk annotations %s: %w", opts.AnnotationDir, err)
		}
	case convention.Sidecar:
		dir := opts.AnnotationDir
		if dir == "" {
			dir = opts.VideoDir
		}
		for id, video := range videos {
			stem := strings.TrimSuffix(filepath.Base(video), filepath.Ext(video))
			path := filepath.Join(dir, stem+conv.AnnotationSuffix)
			if _, err := os.Stat(path); err == nil {
				annotations[id] = path
			}
		}
		orphans, err := orphanSidecars(dir, conv, annotations)
		if err != nil {
			return Result{}, err
		}
		res.Skipped = append(res.Skipped, orphans...)
	default:
		return Result{}, fmt.Errorf("convention %s: unknown layout %q", conv.Name, conv.Layout)
	}

	for id, video := range videos {
		ann, ok := annotations[id]
		if !ok {
			res.Skipped = append(res.Skipped, Skip{CaseID: id, Path: video,
				Err: fmt.Errorf("%w: no annotation for video %s", types.ErrMissingPair, filepath.Base(video))})
			continue
		}
		c := Case{ID: id, Video: video, Annotation: ann}
		if master != nil {
			c.Rows = master[id]
		}
		res.Cases = append(res.Cases, c)
	}
	for id, ann := range annotations {
		if _, ok := videos[id]; !ok {
			res.Skipped = append(res.Skipped, Skip{CaseID: id, Path: ann,
				Err: fmt.Errorf("%w: no video for case %s", types.ErrMissingPair, id)})
		}
	}

	sort.Slice(res.Cases, func(i, j int) bool { return lessID(res.Cases[i].ID, res.Cases[j].ID) })
	sort.SliceStable(res.Skipped, func(i, j int) bool { return res.Skipped[i].Path < res.Skipped[j].Path })
	return res, nil
}

// orphanSidecars reports annotation files in dir that no video claimed.
func orphanSidecars(dir string, conv *convention.Convention, paired map[string]string) ([]Skip, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read annotation dir: %w", err)
	}
	used := make(map[string]bool, len(paired))
	for _, p := range paired {
		used[filepath.Base(p)] = true
	}
	var out []Skip
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, conv.AnnotationSuffix) || used[name] {
			continue
		}
		path := filepath.Join(dir, name)
		id, err := CaseID(strings.TrimSuffix(name, conv.AnnotationSuffix), conv.CaseFromStem)
		if err != nil {
			out = append(out, Skip{Path: path, Err: err})
			continue
		}
		out = append(out, Skip{CaseID: id, Path: path,
			Err: fmt.Errorf("%w: no video for annotation %s", types.ErrMissingPair, name)})
	}
	return out, nil
}

func listVideos(dir string, fromStem bool, res *Result) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read video dir: %w", err)
	}
	videos := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() || !isVideo(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		id, err := CaseID(e.Name(), fromStem)
		if err != nil {
			res.Skipped = append(res.Skipped, Skip{Path: path, Err: err})
			continue
		}
		if prev, dup := videos[id]; dup {
			res.Skipped = append(res.Skipped, Skip{CaseID: id, Path: path,
				Err: fmt.Errorf("%w: second video for case %s (already using %s)", types.ErrMissingPair, id, filepath.Base(prev))})
			continue
		}
		videos[id] = path
	}
	return videos, nil
}

func isVideo(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, v := range VideoExts {
		if ext == v {
			return true
		}
	}
	return false
}

// normalizeID maps a master-table case value onto the id of its video:
// "004" and "case_004" both pair with case_4.mp4.
func normalizeID(id string, fromStem bool) string {
	if n, err := strconv.Atoi(id); err == nil {
		return strconv.Itoa(n)
	}
	if !fromStem {
		if n, err := CaseID(id, false); err == nil {
			return n
		}
	}
	return id
}

func lessID(a, b string) bool {
	x, errA := strconv.Atoi(a)
	y, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return x < y
	}
	return a < b
}
