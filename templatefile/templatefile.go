// Package templatefile persists match templates as YAML files with one file
// per template.
package templatefile

import (
	"fmt"
	"github.com/lefinal/minigame-host/errors"
	"github.com/lefinal/minigame-host/games"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// fileExt is the extension of template files.
const fileExt = ".yaml"

// Store loads and saves templates in a directory.
type Store struct {
	logger *zap.Logger
	dir    string
	// m locks writes to dir.
	m sync.Mutex
}

// NewStore creates a new Store for the given directory.
func NewStore(logger *zap.Logger, dir string) *Store {
	return &Store{
		logger: logger,
		dir:    dir,
	}
}

// filename returns the file for the template with the given name.
func (s *Store) filename(templateName string) (string, error) {
	if templateName == "" || strings.ContainsAny(templateName, `/\`) || templateName == "." || templateName == ".." {
		return "", errors.Error{
			Code:    errors.ErrBadRequest,
			Kind:    errors.KindIncompleteTemplate,
			Message: "invalid template name",
			Details: errors.Details{"template": templateName},
		}
	}
	return filepath.Join(s.dir, templateName+fileExt), nil
}

// Load reads all templates in the directory, sorted by name. Files that cannot
// be decoded or hold incomplete templates are logged and skipped. A missing
// directory yields no templates.
func (s *Store) Load() ([]games.Template, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []games.Template{}, nil
		}
		return nil, errors.NewInternalErrorFromErr(err, "read template dir", errors.Details{"dir": s.dir})
	}
	templates := make([]games.Template, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != fileExt {
			continue
		}
		template, err := s.loadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			errors.Log(s.logger, errors.Wrap(err, "load template file", errors.Details{"file": entry.Name()}))
			continue
		}
		templates = append(templates, template)
	}
	sort.Slice(templates, func(i, j int) bool {
		return templates[i].Name < templates[j].Name
	})
	return templates, nil
}

// loadFile reads and validates the template in the given file. If the template
// has no name, the filename is used.
func (s *Store) loadFile(filename string) (games.Template, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return games.Template{}, errors.NewInternalErrorFromErr(err, "read file", nil)
	}
	var template games.Template
	err = yaml.Unmarshal(raw, &template)
	if err != nil {
		return games.Template{}, errors.Error{
			Code:    errors.ErrBadRequest,
			Kind:    errors.KindDecodeYAML,
			Err:     err,
			Message: "decode template",
		}
	}
	if template.Name == "" {
		template.Name = strings.TrimSuffix(filepath.Base(filename), fileExt)
	}
	err = template.Validate()
	if err != nil {
		return games.Template{}, errors.Wrap(err, "validate template", nil)
	}
	return template, nil
}

// Save writes the template to its file. Existing ones are replaced. Incomplete
// templates are rejected.
func (s *Store) Save(template games.Template) error {
	err := template.Validate()
	if err != nil {
		return errors.Wrap(err, "validate template", nil)
	}
	filename, err := s.filename(template.Name)
	if err != nil {
		return errors.Wrap(err, "template filename", nil)
	}
	raw, err := yaml.Marshal(template)
	if err != nil {
		return errors.Error{
			Code:    errors.ErrInternal,
			Kind:    errors.KindEncodeYAML,
			Err:     err,
			Message: "encode template",
			Details: errors.Details{"template": template.Name},
		}
	}
	s.m.Lock()
	defer s.m.Unlock()
	err = os.MkdirAll(s.dir, 0o755)
	if err != nil {
		return errors.NewInternalErrorFromErr(err, "create template dir", errors.Details{"dir": s.dir})
	}
	// Write to a temporary file first so that readers never see partial files.
	tmp := filename + ".tmp"
	err = os.WriteFile(tmp, raw, 0o644)
	if err != nil {
		return errors.NewInternalErrorFromErr(err, "write template file", errors.Details{"file": tmp})
	}
	err = os.Rename(tmp, filename)
	if err != nil {
		_ = os.Remove(tmp)
		return errors.NewInternalErrorFromErr(err, "rename template file", errors.Details{"file": filename})
	}
	s.logger.Debug(fmt.Sprintf("saved template %s", template.Name), zap.String("file", filename))
	return nil
}

// Delete removes the file of the template with the given name.
func (s *Store) Delete(templateName string) error {
	filename, err := s.filename(templateName)
	if err != nil {
		return errors.Wrap(err, "template filename", nil)
	}
	s.m.Lock()
	defer s.m.Unlock()
	err = os.Remove(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NewUnknownTemplateError(templateName)
		}
		return errors.NewInternalErrorFromErr(err, "remove template file", errors.Details{"file": filename})
	}
	return nil
}
