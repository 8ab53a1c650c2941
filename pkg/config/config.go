// Package config provides the section-based configuration system for fathom.
// Configuration files are YAML documents parsed into ordered Sections that
// expose typed getters with defaulting and deep-merge semantics. Key order is
// preserved so that entities registered from configuration keep their
// declaration order.
//
// Environment variables referenced as ${VAR_NAME} are substituted before
// parsing, so credentials can be kept out of configuration files.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fathom-io/fathom/pkg/errors"
)

// Suffix is the file name suffix recognized for configuration files.
const Suffix = ".conf"

// DefaultsName is the reserved file name holding shared defaults. Files with
// this name are excluded from type-prefix discovery.
const DefaultsName = "default" + Suffix

// Section is an ordered mapping of configuration keys to scalar values,
// nested sections or lists. A Section remembers the file it was loaded from.
type Section struct {
	name   string
	path   string
	keys   []string
	values map[string]interface{}
}

// New creates an empty section with the given name.
func New(name string) *Section {
	return &Section{
		name:   name,
		values: make(map[string]interface{}),
	}
}

// Load reads a YAML configuration file into a Section. The section name is
// derived from the file name without its suffix. Environment variables in
// ${VAR_NAME} form are substituted before parsing.
func Load(path string) (*Section, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is controlled by the caller
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file")
	}

	content := substituteEnvVars(string(data))

	var root yaml.Node
	if err := yaml.Unmarshal([]byte(content), &root); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse YAML")
	}

	name := strings.TrimSuffix(filepath.Base(path), Suffix)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	section := New(name)
	section.path = path
	if len(root.Content) > 0 {
		if err := section.decodeMapping(root.Content[0]); err != nil {
			return nil, err
		}
	}
	return section, nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}

func (s *Section) decodeMapping(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return errors.Newf(errors.ErrorTypeConfig, "expected mapping in section %q", s.name)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		value, err := decodeNode(key, node.Content[i+1])
		if err != nil {
			return err
		}
		s.Set(key, value)
	}
	return nil
}

func decodeNode(key string, node *yaml.Node) (interface{}, error) {
	switch node.Kind {
	case yaml.MappingNode:
		child := New(key)
		if err := child.decodeMapping(node); err != nil {
			return nil, err
		}
		return child, nil
	case yaml.SequenceNode:
		list := make([]interface{}, 0, len(node.Content))
		for _, item := range node.Content {
			value, err := decodeNode(key, item)
			if err != nil {
				return nil, err
			}
			list = append(list, value)
		}
		return list, nil
	case yaml.ScalarNode:
		var value interface{}
		if err := node.Decode(&value); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to decode scalar "+key)
		}
		return value, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported YAML node for key %q", key)
	}
}

// Name returns the section name, derived from the file name for loaded files.
func (s *Section) Name() string { return s.name }

// Path returns the file the section was loaded from, if any.
func (s *Section) Path() string { return s.path }

// SetName overrides the section name.
func (s *Section) SetName(name string) { s.name = name }

// Keys returns the keys in declaration order.
func (s *Section) Keys() []string {
	keys := make([]string, len(s.keys))
	copy(keys, s.keys)
	return keys
}

// Has reports whether the key is present.
func (s *Section) Has(key string) bool {
	_, ok := s.values[key]
	return ok
}

// Get returns the raw value for the key.
func (s *Section) Get(key string) (interface{}, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Set stores a value under the key, preserving first-insertion order.
func (s *Section) Set(key string, value interface{}) {
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

// MoveToFront moves the key to the front of the declaration order.
func (s *Section) MoveToFront(key string) {
	for i, k := range s.keys {
		if k == key {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			s.keys = append([]string{key}, s.keys...)
			return
		}
	}
}

// Remove deletes the key from the section.
func (s *Section) Remove(key string) {
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	for i, k := range s.keys {
		if k == key {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
}

// GetString returns the value as a string, failing with a configuration
// error when the key is missing.
func (s *Section) GetString(key string) (string, error) {
	v, ok := s.values[key]
	if !ok {
		return "", errors.Newf(errors.ErrorTypeConfig, "missing required key %q in section %q", key, s.name)
	}
	return toString(v), nil
}

// StringOr returns the value as a string or the default when missing.
func (s *Section) StringOr(key, def string) string {
	v, ok := s.values[key]
	if !ok {
		return def
	}
	return toString(v)
}

// GetInt returns the value as an int, failing with a configuration error
// when the key is missing or not numeric.
func (s *Section) GetInt(key string) (int, error) {
	v, ok := s.values[key]
	if !ok {
		return 0, errors.Newf(errors.ErrorTypeConfig, "missing required key %q in section %q", key, s.name)
	}
	return toInt(key, v)
}

// IntOr returns the value as an int or the default when missing or invalid.
func (s *Section) IntOr(key string, def int) int {
	v, ok := s.values[key]
	if !ok {
		return def
	}
	if i, err := toInt(key, v); err == nil {
		return i
	}
	return def
}

// GetFloat returns the value as a float64.
func (s *Section) GetFloat(key string) (float64, error) {
	v, ok := s.values[key]
	if !ok {
		return 0, errors.Newf(errors.ErrorTypeConfig, "missing required key %q in section %q", key, s.name)
	}
	return toFloat(key, v)
}

// FloatOr returns the value as a float64 or the default when missing or invalid.
func (s *Section) FloatOr(key string, def float64) float64 {
	v, ok := s.values[key]
	if !ok {
		return def
	}
	if f, err := toFloat(key, v); err == nil {
		return f
	}
	return def
}

// GetBool returns the value as a bool.
func (s *Section) GetBool(key string) (bool, error) {
	v, ok := s.values[key]
	if !ok {
		return false, errors.Newf(errors.ErrorTypeConfig, "missing required key %q in section %q", key, s.name)
	}
	return toBool(key, v)
}

// BoolOr returns the value as a bool or the default when missing or invalid.
func (s *Section) BoolOr(key string, def bool) bool {
	v, ok := s.values[key]
	if !ok {
		return def
	}
	if b, err := toBool(key, v); err == nil {
		return b
	}
	return def
}

// DurationOr returns the value parsed as a duration or the default. Bare
// numbers are interpreted as seconds.
func (s *Section) DurationOr(key string, def time.Duration) time.Duration {
	v, ok := s.values[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case int:
		return time.Duration(t) * time.Second
	case float64:
		return time.Duration(t * float64(time.Second))
	case string:
		if d, err := time.ParseDuration(t); err == nil {
			return d
		}
		if i, err := strconv.Atoi(t); err == nil {
			return time.Duration(i) * time.Second
		}
	}
	return def
}

// GetSection returns the nested section for the key, failing with a
// configuration error when absent or not a section.
func (s *Section) GetSection(key string) (*Section, error) {
	v, ok := s.values[key]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeConfig, "missing required section %q in %q", key, s.name)
	}
	child, ok := v.(*Section)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeConfig, "key %q in %q is not a section", key, s.name)
	}
	return child, nil
}

// SectionOr returns the nested section for the key, or an empty section
// when absent.
func (s *Section) SectionOr(key string) *Section {
	if child, err := s.GetSection(key); err == nil {
		return child
	}
	return New(key)
}

// HasSection reports whether the key holds a nested section.
func (s *Section) HasSection(key string) bool {
	v, ok := s.values[key]
	if !ok {
		return false
	}
	_, ok = v.(*Section)
	return ok
}

// Sections returns all nested sections in declaration order.
func (s *Section) Sections() []*Section {
	var sections []*Section
	for _, key := range s.keys {
		if child, ok := s.values[key].(*Section); ok {
			sections = append(sections, child)
		}
	}
	return sections
}

// Scalars returns a section holding only the non-section values, used to
// derive defaults that cascade into nested entity sections.
func (s *Section) Scalars() *Section {
	scalars := New(s.name)
	for _, key := range s.keys {
		if _, ok := s.values[key].(*Section); ok {
			continue
		}
		scalars.Set(key, s.values[key])
	}
	return scalars
}

// Merge deep-merges the other section into this one. Scalar values from
// other override existing values; nested sections merge recursively.
func (s *Section) Merge(other *Section) {
	if other == nil {
		return
	}
	for _, key := range other.keys {
		value := other.values[key]
		if child, ok := value.(*Section); ok {
			if existing, ok := s.values[key].(*Section); ok {
				existing.Merge(child)
				continue
			}
			s.Set(key, child.Copy())
			continue
		}
		s.Set(key, value)
	}
}

// MergeDefaults merges the other section into this one without overriding
// keys that are already present.
func (s *Section) MergeDefaults(other *Section) {
	if other == nil {
		return
	}
	for _, key := range other.keys {
		value := other.values[key]
		if child, ok := value.(*Section); ok {
			if existing, ok := s.values[key].(*Section); ok {
				existing.MergeDefaults(child)
				continue
			}
			s.Set(key, child.Copy())
			continue
		}
		if !s.Has(key) {
			s.Set(key, value)
		}
	}
}

// Copy returns a deep copy of the section.
func (s *Section) Copy() *Section {
	cp := New(s.name)
	cp.path = s.path
	for _, key := range s.keys {
		if child, ok := s.values[key].(*Section); ok {
			cp.Set(key, child.Copy())
			continue
		}
		cp.Set(key, s.values[key])
	}
	return cp
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func toInt(key string, v interface{}) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case float64:
		return int(t), nil
	case string:
		if i, err := strconv.Atoi(t); err == nil {
			return i, nil
		}
	}
	return 0, errors.Newf(errors.ErrorTypeConfig, "key %q is not an integer: %v", key, v)
}

func toFloat(key string, v interface{}) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f, nil
		}
	}
	return 0, errors.Newf(errors.ErrorTypeConfig, "key %q is not a number: %v", key, v)
}

func toBool(key string, v interface{}) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		if b, err := strconv.ParseBool(t); err == nil {
			return b, nil
		}
	}
	return false, errors.Newf(errors.ErrorTypeConfig, "key %q is not a boolean: %v", key, v)
}
