package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.yaml.in/yaml/v3"
)

const (
	DefaultRecruitmentInfo = "Recruitment information not available."

	imagePrefix = "/static/img/"
)

// Sources names the files a Catalog may be built from, in order of preference.
type Sources struct {
	// Processed is a list of entity records, as written by WriteFile.
	Processed string
	// Characters maps character name to image file.
	Characters string
	// Recruitment maps character name to recruitment text, or to
	// {"recruitment": ..., "image": ...}.
	Recruitment string
}

// Load builds the Catalog from the first usable source. It never fails:
// when every source is missing or broken the Fallback catalog is returned.
func Load(src Sources, logger *zap.Logger) *Catalog {
	if src.Processed != "" {
		entities, err := LoadFile(src.Processed)
		if err == nil {
			c, err := New(entities)
			if err == nil {
				logger.Info("loaded catalog", zap.String("file", src.Processed), zap.Int("characters", c.Len()))

				return c
			}
			logger.Warn("invalid catalog", zap.String("file", src.Processed), zap.Error(err))
		} else if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("unable to read catalog", zap.String("file", src.Processed), zap.Error(err))
		}
	}

	if src.Characters != "" {
		entities, err := MergeFiles(src.Characters, src.Recruitment, logger)
		if err == nil {
			c, err := New(entities)
			if err == nil {
				logger.Info("merged catalog",
					zap.String("characters", src.Characters),
					zap.String("recruitment", src.Recruitment),
					zap.Int("count", c.Len()))

				return c
			}
			logger.Warn("invalid merged catalog", zap.Error(err))
		} else {
			logger.Warn("unable to merge catalog", zap.String("file", src.Characters), zap.Error(err))
		}
	}

	c := Fallback()
	logger.Warn("using fallback catalog", zap.Int("characters", c.Len()))

	return c
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}

	return false
}

// LoadFile reads a list of entity records, as JSON or YAML depending on the
// file extension.
func LoadFile(path string) ([]Entity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var entities []Entity
	if isYAML(path) {
		err = yaml.Unmarshal(data, &entities)
	} else {
		err = json.Unmarshal(data, &entities)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	for i, e := range entities {
		if e.Name == "" || e.ImageURL == "" {
			return nil, fmt.Errorf("decode %s: entry %d is missing name or image_url", path, i)
		}
	}

	return entities, nil
}

// WriteFile writes entities as an indented JSON or YAML list.
func WriteFile(path string, entities []Entity) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(entities)
	} else {
		data, err = json.MarshalIndent(entities, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	return os.WriteFile(path, data, 0o644)
}

type pair struct {
	key   string
	value json.RawMessage
}

// readMapping decodes a JSON object, keeping key order.
func readMapping(data []byte) ([]pair, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("expected a JSON object")
	}

	var pairs []pair
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected key %v", tok)
		}

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("value for %q: %w", key, err)
		}

		pairs = append(pairs, pair{key: key, value: value})
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	return pairs, nil
}

type recruitmentRecord struct {
	Recruitment *string `json:"recruitment"`
	Image       *string `json:"image"`
}

// Merge combines the image mapping and the recruitment mapping into entity
// records, numbered from 1 in image mapping order.
func Merge(characters, recruitment []byte) ([]Entity, error) {
	images, err := readMapping(characters)
	if err != nil {
		return nil, fmt.Errorf("characters: %w", err)
	}

	info := make(map[string]json.RawMessage)
	if len(recruitment) > 0 {
		pairs, err := readMapping(recruitment)
		if err != nil {
			return nil, fmt.Errorf("recruitment: %w", err)
		}
		for _, p := range pairs {
			info[p.key] = p.value
		}
	}

	entities := make([]Entity, 0, len(images))
	for i, p := range images {
		var image string
		if err := json.Unmarshal(p.value, &image); err != nil || image == "" {
			image = p.key + ".png"
		}

		text := DefaultRecruitmentInfo
		if raw, ok := info[p.key]; ok {
			var s string
			var rec recruitmentRecord
			switch {
			case json.Unmarshal(raw, &s) == nil:
				text = s
			case json.Unmarshal(raw, &rec) == nil:
				if rec.Recruitment != nil {
					text = *rec.Recruitment
				}
				if rec.Image != nil && *rec.Image != "" {
					image = *rec.Image
				}
			}
		}

		entities = append(entities, Entity{
			Number:          i + 1,
			Name:            p.key,
			ImageURL:        imagePrefix + image,
			RecruitmentInfo: text,
		})
	}

	return entities, nil
}

// MergeFiles runs Merge over files on disk. A missing or unreadable
// recruitment file only costs the recruitment text.
func MergeFiles(characters, recruitment string, logger *zap.Logger) ([]Entity, error) {
	images, err := os.ReadFile(characters)
	if err != nil {
		return nil, err
	}

	var info []byte
	if recruitment != "" {
		info, err = os.ReadFile(recruitment)
		if err != nil {
			logger.Warn("unable to read recruitment data", zap.String("file", recruitment), zap.Error(err))
			info = nil
		}
	}

	entities, err := Merge(images, info)
	if err != nil && info != nil {
		logger.Warn("ignoring recruitment data", zap.String("file", recruitment), zap.Error(err))
		entities, err = Merge(images, nil)
	}

	return entities, err
}
