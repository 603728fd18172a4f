package referral

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadPuntFile reads the punt file: one referral URL per
// non-blank, non-comment line (spec.md §4.4/§6). Per the resolved
// open question (SPEC_FULL.md §10.1), a syntactically invalid line is
// fatal at load time rather than silently skipped.
func LoadPuntFile(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open punt file %s: %w", path, err)
	}
	defer f.Close()
	var urls []string
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.HasPrefix(line, "rwhois://") {
			return nil, fmt.Errorf("punt file %s line %d: invalid referral URL %q", path, lineNo, line)
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return urls, nil
}
