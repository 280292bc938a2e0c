package meshio

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// target is a resolved export destination.
type target struct {
	abs string // absolute or OutputDir-joined path
	rel string // slash-separated path relative to OutputDir
}

// splitPrefix separates "3D/mesh" into subfolder "3D" and name "mesh". The
// subfolder must stay inside the output directory.
func splitPrefix(prefix string) (subfolder, name string, err error) {
	clean := path.Clean(filepath.ToSlash(prefix))
	if prefix == "" || clean == "." || strings.HasSuffix(prefix, "/") {
		return "", "", fmt.Errorf("empty file name in prefix %q", prefix)
	}
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", "", fmt.Errorf("prefix %q leaves the output directory", prefix)
	}
	subfolder, name = path.Split(clean)
	return strings.TrimSuffix(subfolder, "/"), name, nil
}

// nextCounter returns one past the highest counter used by files named
// "{name}_{counter}_.*" in dir, or 1 when there are none.
func nextCounter(dir, name string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	re := regexp.MustCompile(`^` + regexp.QuoteMeta(name) + `_(\d+)_\.`)
	counters := lo.FilterMap(entries, func(e os.DirEntry, _ int) (int, bool) {
		m := re.FindStringSubmatch(e.Name())
		if m == nil {
			return 0, false
		}
		n, err := strconv.Atoi(m[1])
		return n, err == nil
	})
	if len(counters) == 0 {
		return 1, nil
	}
	return lo.Max(counters) + 1, nil
}

// resolve computes where an export of prefix in format f goes.
func (c Config) resolve(prefix string, f Format, preview bool) (target, error) {
	subfolder, name, err := splitPrefix(prefix)
	if err != nil {
		return target{}, err
	}
	dir := filepath.Join(c.OutputDir, filepath.FromSlash(subfolder))

	var file string
	switch {
	case preview:
		file = fmt.Sprintf("%s_preview_.%s", name, f)
	case c.AutoIncrement:
		n, err := nextCounter(dir, name)
		if err != nil {
			return target{}, err
		}
		file = fmt.Sprintf("%s_%05d_.%s", name, n, f)
	default:
		file = fmt.Sprintf("%s.%s", name, f)
	}
	return target{
		abs: filepath.Join(dir, file),
		rel: path.Join(subfolder, file),
	}, nil
}
