package pipeline

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"panoforge/internal/fsutil"
)

// ScanResult captures detected candidate image sets.
type ScanResult struct {
	Images []string
	Sets   []CandidateSet
}

// CandidateSet represents a directory of images that looks stitchable.
type CandidateSet struct {
	BasePath  string
	Count     int
	Detection string
}

// Scan walks the directory tree and groups images into candidate
// panorama sets. A directory needs at least two images to qualify.
func Scan(input string) (ScanResult, error) {
	files, err := fsutil.ListImages(input)
	if err != nil {
		return ScanResult{}, err
	}
	sort.Strings(files)
	return ScanResult{Images: files, Sets: groupFiles(files)}, nil
}

func groupFiles(files []string) []CandidateSet {
	if len(files) == 0 {
		return nil
	}
	dirMap := map[string][]string{}
	for _, f := range files {
		dirMap[filepath.Dir(f)] = append(dirMap[filepath.Dir(f)], f)
	}
	var sets []CandidateSet
	for dir, fs := range dirMap {
		if len(fs) < 2 {
			continue
		}
		sort.Strings(fs)
		sets = append(sets, CandidateSet{
			BasePath:  dir,
			Count:     len(fs),
			Detection: "directory",
		})
		sets = append(sets, clusterByTimestamp(dir, fs)...)
	}
	seen := map[string]bool{}
	var uniq []CandidateSet
	for _, s := range sets {
		key := s.BasePath + "|" + s.Detection
		if seen[key] {
			continue
		}
		seen[key] = true
		uniq = append(uniq, s)
	}
	sort.Slice(uniq, func(i, j int) bool {
		if uniq[i].BasePath == uniq[j].BasePath {
			return uniq[i].Detection < uniq[j].Detection
		}
		return uniq[i].BasePath < uniq[j].BasePath
	})
	return uniq
}

// clusterByTimestamp finds bursts of images shot close together, the
// usual signature of a handheld panorama sweep.
func clusterByTimestamp(dir string, files []string) []CandidateSet {
	type fileInfo struct {
		path string
		t    time.Time
	}
	var infos []fileInfo
	for _, f := range files {
		st, err := os.Stat(f)
		if err != nil {
			continue
		}
		infos = append(infos, fileInfo{path: f, t: st.ModTime()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].t.Before(infos[j].t) })
	const gap = 60 * time.Second
	var sets []CandidateSet
	start := 0
	for i := 1; i <= len(infos); i++ {
		if i == len(infos) || infos[i].t.Sub(infos[i-1].t) > gap {
			count := i - start
			if count >= 2 && count < len(files) {
				sets = append(sets, CandidateSet{
					BasePath:  dir,
					Count:     count,
					Detection: "timestamp_cluster",
				})
			}
			start = i
		}
	}
	return sets
}
