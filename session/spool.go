package session

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// spoolFile is the uniquely-named file a `-register on` directive
// opens under the spool directory; every subsequent non-directive
// line is appended verbatim until `-register off` closes it (spec.md
// §4.5).
type spoolFile struct {
	path   string
	action string
	email  string
	f      *os.File
}

func openSpool(spoolDir, action, email string) (*spoolFile, error) {
	if err := os.MkdirAll(spoolDir, 0755); err != nil {
		return nil, fmt.Errorf("create spool dir %s: %w", spoolDir, err)
	}
	path := filepath.Join(spoolDir, uuid.NewString()+".spool")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create spool file %s: %w", path, err)
	}
	return &spoolFile{path: path, action: action, email: email, f: f}, nil
}

func (sp *spoolFile) appendLine(line string) error {
	_, err := fmt.Fprintln(sp.f, line)
	return err
}

func (sp *spoolFile) close() error {
	return sp.f.Close()
}
