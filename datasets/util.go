package datasets

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// parseFrameNumber reads the base-10 frame number from a file name's stem:
// "001.tif" is 1, "0150.tif" is 150.
func parseFrameNumber(name string) (int, error) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if stem == "" {
		return 0, errors.Errorf("empty stem in %q", name)
	}
	n, err := strconv.ParseUint(stem, 10, 31)
	if err != nil {
		return 0, errors.Errorf("file name %q has no numeric stem", name)
	}
	return int(n), nil
}

// listClipDirs returns the sorted names of the subdirectories of dir,
// skipping hidden ones and those ending with skipSuffix.
func listClipDirs(dir, skipSuffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if skipSuffix != "" && strings.HasSuffix(name, skipSuffix) {
			continue
		}
		if !e.IsDir() {
			// follow symlinked clip directories
			fi, err := os.Stat(filepath.Join(dir, name))
			if err != nil || !fi.IsDir() {
				continue
			}
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// listFrames returns the sorted regular files in dir whose extension matches
// ext case-insensitively.
func listFrames(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func isDir(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return errors.Errorf("%s is not a directory", path)
	}
	return nil
}

// Auto-discovery helpers

// FindDatasetRoot returns the first candidate directory that holds both a
// Train and a Test subdirectory.
func FindDatasetRoot(candidates ...string) (string, error) {
	for _, c := range candidates {
		if isDir(filepath.Join(c, TrainDir)) == nil && isDir(filepath.Join(c, TestDir)) == nil {
			return c, nil
		}
	}
	return "", errors.Errorf("no UCSD dataset root among %v", candidates)
}

// DefaultRoots are the locations FindDatasetRoot is usually pointed at.
var DefaultRoots = []string{
	"UCSD_Anomaly_Dataset.v1p2/UCSDped1",
	"UCSD_Anomaly_Dataset.v1p2/UCSDped2",
	"../UCSD_Anomaly_Dataset.v1p2/UCSDped1",
	"../UCSD_Anomaly_Dataset.v1p2/UCSDped2",
}
