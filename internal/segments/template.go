package segments

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"podforge/internal/blob"
	"podforge/internal/ducking"
	"podforge/internal/services"
)

// Kind is the structural role of a segment.
type Kind string

const (
	KindIntro       Kind = "intro"
	KindMainContent Kind = "main_content"
	KindOutro       Kind = "outro"
	KindAd          Kind = "ad"
	KindTransition  Kind = "transition"
)

// Source says where a segment's audio comes from.
type Source string

const (
	SourceUploadedFile      Source = "uploaded_file"
	SourceSynthesizedSpeech Source = "synthesized_speech"
	SourceUserProvided      Source = "user_provided_per_episode"
)

// Segment is one structural slot of a template.
type Segment struct {
	Kind       Kind     `yaml:"kind" json:"kind"`
	Source     Source   `yaml:"source" json:"source"`
	AudioRef   blob.Ref `yaml:"audio_ref" json:"audio_ref"`
	OrderIndex int      `yaml:"order_index" json:"order_index"`
	Script     string   `yaml:"script" json:"script,omitempty"`
	Voice      string   `yaml:"voice" json:"voice,omitempty"`
}

// Template is a reusable episode structure.
type Template struct {
	ID         string         `yaml:"id" json:"id"`
	Name       string         `yaml:"name" json:"name"`
	Segments   []Segment      `yaml:"segments" json:"segments"`
	MusicRules []ducking.Rule `yaml:"music_rules" json:"music_rules"`
}

// Validate checks kinds, sources, and order indices. Segments are sorted by
// order index in place.
func (t *Template) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return invalidTemplate(t.ID, "id is required")
	}
	if len(t.Segments) == 0 {
		return invalidTemplate(t.ID, "at least one segment is required")
	}
	seen := make(map[int]struct{}, len(t.Segments))
	hasMain := false
	for _, seg := range t.Segments {
		switch seg.Kind {
		case KindIntro, KindOutro, KindAd, KindTransition:
		case KindMainContent:
			hasMain = true
		default:
			return invalidTemplate(t.ID, fmt.Sprintf("segment %d: unknown kind %q", seg.OrderIndex, seg.Kind))
		}
		switch seg.Source {
		case SourceUploadedFile, SourceUserProvided:
		case SourceSynthesizedSpeech:
			if strings.TrimSpace(seg.Script) == "" && seg.AudioRef.IsZero() {
				return invalidTemplate(t.ID, fmt.Sprintf("segment %d: synthesized speech needs a script", seg.OrderIndex))
			}
		default:
			return invalidTemplate(t.ID, fmt.Sprintf("segment %d: unknown source %q", seg.OrderIndex, seg.Source))
		}
		if !seg.AudioRef.IsZero() {
			if err := seg.AudioRef.Validate(); err != nil {
				return invalidTemplate(t.ID, fmt.Sprintf("segment %d: %v", seg.OrderIndex, err))
			}
		}
		if _, dup := seen[seg.OrderIndex]; dup {
			return invalidTemplate(t.ID, fmt.Sprintf("duplicate order_index %d", seg.OrderIndex))
		}
		seen[seg.OrderIndex] = struct{}{}
	}
	if !hasMain {
		return invalidTemplate(t.ID, "a main_content segment is required")
	}
	for i, rule := range t.MusicRules {
		if err := rule.Validate(); err != nil {
			return invalidTemplate(t.ID, fmt.Sprintf("music rule %d: %v", i, err))
		}
	}
	sort.SliceStable(t.Segments, func(i, j int) bool {
		return t.Segments[i].OrderIndex < t.Segments[j].OrderIndex
	})
	return nil
}

// MainContentIndex returns the order index of the first main_content segment.
func (t *Template) MainContentIndex() (int, bool) {
	for _, seg := range t.Segments {
		if seg.Kind == KindMainContent {
			return seg.OrderIndex, true
		}
	}
	return 0, false
}

func invalidTemplate(id, msg string) error {
	return services.Wrap(services.ErrValidation, "segments", "template "+id, msg, nil)
}

// Library loads templates from <dir>/<id>.yaml.
type Library struct {
	dir string
}

// NewLibrary returns a library rooted at dir.
func NewLibrary(dir string) *Library {
	return &Library{dir: dir}
}

// Load reads and validates the template with the given id.
func (l *Library) Load(id string) (*Template, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return nil, services.Wrap(services.ErrValidation, "segments", "load template", fmt.Sprintf("invalid template id %q", id), nil)
	}
	path := filepath.Join(l.dir, id+".yaml")
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, services.Wrap(services.ErrNotFound, "segments", "load template", fmt.Sprintf("template %q not found", id), err)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrTransientIO, "segments", "load template", path, err)
	}
	tmpl, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if tmpl.ID != id {
		return nil, invalidTemplate(tmpl.ID, fmt.Sprintf("id does not match file name %q", id))
	}
	return tmpl, nil
}

// List returns every valid template in the library sorted by id. Invalid
// files are reported through the returned error slice and skipped.
func (l *Library) List() ([]*Template, []error) {
	matches, err := filepath.Glob(filepath.Join(l.dir, "*.yaml"))
	if err != nil {
		return nil, []error{err}
	}
	sort.Strings(matches)
	var (
		templates []*Template
		problems  []error
	)
	for _, path := range matches {
		id := strings.TrimSuffix(filepath.Base(path), ".yaml")
		tmpl, err := l.Load(id)
		if err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", filepath.Base(path), err))
			continue
		}
		templates = append(templates, tmpl)
	}
	return templates, problems
}

// Parse decodes and validates a template document.
func Parse(data []byte) (*Template, error) {
	var tmpl Template
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return nil, services.Wrap(services.ErrValidation, "segments", "parse template", "malformed yaml", err)
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	return &tmpl, nil
}
