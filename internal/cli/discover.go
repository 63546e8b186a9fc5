package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// latestFile returns the most recently modified file in dir with extension
// ext, ignoring the names in exclude
func latestFile(dir, ext string, exclude ...string) (string, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read dir: %w", err)
	}

	var (
		newest  string
		newestT time.Time
	)
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.EqualFold(filepath.Ext(name), ext) || isExcluded(name, exclude) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestT) {
			newest = name
			newestT = info.ModTime()
		}
	}

	if newest == "" {
		return "", fmt.Errorf("no %s file found in %s", ext, dir)
	}
	return filepath.Join(dir, newest), nil
}

func isExcluded(name string, exclude []string) bool {
	// Office lock file
	if strings.HasPrefix(name, "~$") {
		return true
	}
	for _, e := range exclude {
		if strings.EqualFold(name, e) {
			return true
		}
	}
	return false
}
