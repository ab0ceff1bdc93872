package blob

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// RefVersion is the current structured reference layout.
const RefVersion = 1

// Scheme identifies where a blob lives.
type Scheme string

const (
	SchemeFile Scheme = "file"
	SchemeS3   Scheme = "s3"
)

// Ref is a structured, versioned pointer to an audio or transcript blob.
// Identifiers travel as fields; nothing is recovered by parsing filenames.
type Ref struct {
	Version int    `json:"version"`
	Scheme  Scheme `json:"scheme"`
	Bucket  string `json:"bucket,omitempty"`
	Key     string `json:"key,omitempty"`
	Path    string `json:"path,omitempty"`
}

// LocalRef points at a file on local disk.
func LocalRef(path string) Ref {
	return Ref{Version: RefVersion, Scheme: SchemeFile, Path: filepath.Clean(path)}
}

// ObjectRef points at an object in a bucket.
func ObjectRef(bucket, key string) Ref {
	return Ref{Version: RefVersion, Scheme: SchemeS3, Bucket: bucket, Key: strings.TrimPrefix(key, "/")}
}

// ParseRef accepts the textual forms operators type: an absolute or relative
// path, file:///abs/path, or s3://bucket/key.
func ParseRef(value string) (Ref, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Ref{}, errors.New("blob ref is empty")
	}
	switch {
	case strings.HasPrefix(value, "s3://"):
		rest := strings.TrimPrefix(value, "s3://")
		bucket, key, ok := strings.Cut(rest, "/")
		if !ok || bucket == "" || strings.Trim(key, "/") == "" {
			return Ref{}, fmt.Errorf("blob ref %q: expected s3://bucket/key", value)
		}
		return ObjectRef(bucket, key), nil
	case strings.HasPrefix(value, "file://"):
		path := strings.TrimPrefix(value, "file://")
		if path == "" {
			return Ref{}, fmt.Errorf("blob ref %q: missing path", value)
		}
		return LocalRef(path), nil
	case strings.Contains(value, "://"):
		return Ref{}, fmt.Errorf("blob ref %q: unsupported scheme", value)
	default:
		return LocalRef(value), nil
	}
}

// MustParseRef is ParseRef for literals in tests and defaults.
func MustParseRef(value string) Ref {
	ref, err := ParseRef(value)
	if err != nil {
		panic(err)
	}
	return ref
}

// IsZero reports whether the reference is unset.
func (r Ref) IsZero() bool {
	return r.Scheme == "" && r.Path == "" && r.Key == ""
}

// IsRemote reports whether the blob lives in an object store.
func (r Ref) IsRemote() bool {
	return r.Scheme == SchemeS3
}

// Validate checks that the fields required by the scheme are present.
func (r Ref) Validate() error {
	if r.Version != RefVersion {
		return fmt.Errorf("blob ref: unsupported version %d", r.Version)
	}
	switch r.Scheme {
	case SchemeFile:
		if strings.TrimSpace(r.Path) == "" {
			return errors.New("blob ref: file scheme requires path")
		}
	case SchemeS3:
		if r.Bucket == "" || r.Key == "" {
			return errors.New("blob ref: s3 scheme requires bucket and key")
		}
	default:
		return fmt.Errorf("blob ref: unsupported scheme %q", r.Scheme)
	}
	return nil
}

// Ext returns the file extension of the referenced blob, including the dot.
func (r Ref) Ext() string {
	if r.IsRemote() {
		return filepath.Ext(r.Key)
	}
	return filepath.Ext(r.Path)
}

func (r Ref) String() string {
	switch r.Scheme {
	case SchemeS3:
		return "s3://" + r.Bucket + "/" + r.Key
	case SchemeFile:
		return r.Path
	default:
		return ""
	}
}

// UnmarshalJSON accepts either the structured object or a plain string.
func (r *Ref) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*r = Ref{}
		return nil
	}
	if strings.HasPrefix(trimmed, "\"") {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		if text == "" {
			*r = Ref{}
			return nil
		}
		parsed, err := ParseRef(text)
		if err != nil {
			return err
		}
		*r = parsed
		return nil
	}
	type plain Ref
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	if decoded.Version == 0 {
		decoded.Version = RefVersion
	}
	*r = Ref(decoded)
	return nil
}

// MarshalYAML writes the compact string form.
func (r Ref) MarshalYAML() (any, error) {
	if r.IsZero() {
		return nil, nil
	}
	return r.String(), nil
}

// UnmarshalYAML accepts the same forms as UnmarshalJSON so template files can
// write music_ref: s3://bucket/key.
func (r *Ref) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		text := strings.TrimSpace(value.Value)
		if text == "" || value.Tag == "!!null" {
			*r = Ref{}
			return nil
		}
		parsed, err := ParseRef(text)
		if err != nil {
			return err
		}
		*r = parsed
		return nil
	}
	type plain Ref
	var decoded plain
	if err := value.Decode(&decoded); err != nil {
		return err
	}
	if decoded.Version == 0 {
		decoded.Version = RefVersion
	}
	*r = Ref(decoded)
	return nil
}
