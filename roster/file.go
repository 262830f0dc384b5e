package roster

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/Seednode/partydisplay/catalog"
)

// Persister is the durable home of a Roster.
type Persister interface {
	Load() (Roster, error)
	Save(Roster) error
}

// FileStore persists a Roster as an indented JSON array of six
// null-or-character records.
type FileStore struct {
	path    string
	catalog *catalog.Catalog
	logger  *zap.Logger
}

func NewFileStore(path string, c *catalog.Catalog, logger *zap.Logger) *FileStore {
	return &FileStore{
		path:    path,
		catalog: c,
		logger:  logger,
	}
}

func (f *FileStore) Path() string {
	return f.path
}

// Load reads the party file. Entries that no longer match a catalog
// character are loaded as empty slots.
func (f *FileStore) Load() (Roster, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return Roster{}, err
	}

	return f.decode(data)
}

func (f *FileStore) decode(data []byte) (Roster, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return Roster{}, fmt.Errorf("decode %s: %w", f.path, err)
	}
	if len(entries) != Size {
		return Roster{}, fmt.Errorf("decode %s: %w (got %d)", f.path, ErrInvalidLength, len(entries))
	}

	var r Roster
	for i, raw := range entries {
		name, err := ParseEntry(raw)
		if err != nil {
			return Roster{}, fmt.Errorf("decode %s: slot %d: %w", f.path, i, err)
		}
		if name == "" {
			continue
		}

		e, err := f.catalog.Find(name)
		if err != nil {
			f.logger.Warn("dropping unknown party member",
				zap.String("file", f.path),
				zap.Int("slot", i),
				zap.String("character", name))

			continue
		}
		r[i] = e.ID()
	}

	return r, nil
}

// ParseEntry reads the character name out of one party entry. It accepts
// null (an empty slot), a bare name, or a record with a name field.
func ParseEntry(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}

	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return strings.TrimSpace(name), nil
	}

	var rec struct {
		Name *string `json:"name"`
	}
	if err := json.Unmarshal(raw, &rec); err != nil || rec.Name == nil {
		return "", errors.New("expected null, a name or a character record")
	}

	return strings.TrimSpace(*rec.Name), nil
}

// Save overwrites the party file. The new content is written to a temporary
// file in the same directory and renamed into place, so readers never see a
// partial document.
func (f *FileStore) Save(r Roster) error {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r.Records(f.catalog)); err != nil {
		return err
	}
	data := buf.Bytes()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()

		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()

		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), f.path)
}
