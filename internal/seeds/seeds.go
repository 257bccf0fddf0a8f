// Package seeds reads seed URL lists.
package seeds

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrNoSeeds reports an empty seed list.
var ErrNoSeeds = errors.New("no seed urls provided")

// maxLine bounds a single seed line.
const maxLine = 1 << 20

// Read returns the seeds in r, one per line. Surrounding whitespace is
// trimmed; blank lines and lines starting with '#' are skipped. Order and
// duplicates are kept.
func Read(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read seeds: %w", err)
	}
	return out, nil
}

// Gather collects seeds from files and inline URLs, in that order. A path of
// "-" reads stdin. It returns ErrNoSeeds when nothing was found.
func Gather(stdin io.Reader, paths, urls []string) ([]string, error) {
	var out []string
	for _, path := range paths {
		list, err := readPath(stdin, path)
		if err != nil {
			return nil, err
		}
		out = append(out, list...)
	}
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoSeeds
	}
	return out, nil
}

func readPath(stdin io.Reader, path string) ([]string, error) {
	if path == "-" {
		return Read(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer func() { _ = f.Close() }()
	list, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return list, nil
}
