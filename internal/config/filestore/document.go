package filestore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"gopkg.in/ini.v1"
)

// loadOptions are shared by every parsed document.
var loadOptions = ini.LoadOptions{
	// Values such as colors ("#ff0000") must survive unchanged.
	IgnoreInlineComment: true,
	// Windows paths end in a backslash.
	IgnoreContinuation: true,
}

// tripleQuote wraps values the ini reader would otherwise alter. Its reader
// returns everything between the first and last """ verbatim.
const tripleQuote = `"""`

func emptyDocument() *ini.File {
	return ini.Empty(loadOptions)
}

// readDocument parses the INI file at path. A missing file yields an empty
// document and found == false.
func readDocument(path string) (doc *ini.File, found bool, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return emptyDocument(), false, nil
		}
		return nil, false, &StorageError{Op: "read", Path: path, Err: err}
	}

	// Editors on Windows like to save INI files as UTF-16 or with a BOM.
	data, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), raw)
	if err != nil {
		return nil, true, &StorageError{Op: "decode", Path: path, Err: err}
	}

	doc, err = ini.LoadSources(loadOptions, data)
	if err != nil {
		return nil, true, &StorageError{Op: "parse", Path: path, Err: err}
	}
	return doc, true, nil
}

// writeDocument atomically replaces the file at path with doc.
func writeDocument(path string, doc *ini.File) error {
	tmp := fmt.Sprintf("%s.%s.tmp", path, uuid.NewString())

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return &StorageError{Op: "write", Path: path, Err: err}
	}

	out, err := fileDocument(doc)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	if _, err := out.WriteTo(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// fileDocument returns a copy of doc with every value encoded by fileValue.
// Section and key comments are kept.
func fileDocument(doc *ini.File) (*ini.File, error) {
	out := emptyDocument()
	for _, src := range doc.Sections() {
		dst, err := out.NewSection(src.Name())
		if err != nil {
			return nil, err
		}
		dst.Comment = src.Comment
		for _, k := range src.Keys() {
			key, err := dst.NewKey(k.Name(), fileValue(k.Value()))
			if err != nil {
				return nil, fmt.Errorf("writing [%s] %s: %w", src.Name(), k.Name(), err)
			}
			key.Comment = k.Comment
		}
	}
	return out, nil
}

// fileValue encodes v so that reading it back yields v unchanged. On read
// the ini parser strips one pair of surrounding quotes and trims outer
// whitespace; values that would be affected are triple quoted.
func fileValue(v string) string {
	if strings.ContainsAny(v, "\n`") {
		// The writer triple quotes these itself.
		return v
	}
	if v != strings.TrimSpace(v) || strings.HasPrefix(v, `"`) || strings.HasSuffix(v, `"`) ||
		strings.HasPrefix(v, "'") || strings.HasSuffix(v, "'") {
		return tripleQuote + v + tripleQuote
	}
	return v
}

// lookup returns an option's value from a section. Only the section's own
// keys are consulted; ini's dotted-name parent fallback is bypassed.
func lookup(doc *ini.File, section, option string) (string, bool) {
	sec, err := doc.GetSection(section)
	if err != nil {
		return "", false
	}
	v, ok := sec.KeysHash()[option]
	return v, ok
}

// setValue writes an option, creating the section if needed.
func setValue(doc *ini.File, section, option, value string) error {
	if _, err := doc.Section(section).NewKey(option, value); err != nil {
		return fmt.Errorf("setting [%s] %s: %w", section, option, err)
	}
	return nil
}

// sectionValues returns a copy of a section's own options.
func sectionValues(doc *ini.File, section string) (map[string]string, bool) {
	sec, err := doc.GetSection(section)
	if err != nil {
		return nil, false
	}
	return sec.KeysHash(), true
}

// copySection replaces section in dst with the one in src. If src has no
// such section it is removed from dst.
func copySection(dst, src *ini.File, section string) error {
	dst.DeleteSection(section)

	values, ok := sectionValues(src, section)
	if !ok {
		return nil
	}

	// Keep the source's option order.
	sec := dst.Section(section)
	for _, key := range src.Section(section).KeyStrings() {
		if _, err := sec.NewKey(key, values[key]); err != nil {
			return err
		}
	}
	return nil
}

// cloneDocument returns a deep copy of doc.
func cloneDocument(doc *ini.File) (*ini.File, error) {
	out := emptyDocument()
	for _, name := range doc.SectionStrings() {
		if err := copySection(out, doc, name); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// documentValues flattens doc into section -> option -> value.
// The implicit empty DEFAULT section is omitted.
func documentValues(doc *ini.File) map[string]map[string]string {
	out := make(map[string]map[string]string)
	for _, sec := range doc.Sections() {
		values := sec.KeysHash()
		if sec.Name() == ini.DefaultSection && len(values) == 0 {
			continue
		}
		out[sec.Name()] = values
	}
	return out
}

// populate fills doc from a nested map in sorted order so files written from
// it are stable.
func populate(doc *ini.File, values map[string]map[string]string) error {
	sections := make([]string, 0, len(values))
	for s := range values {
		sections = append(sections, s)
	}
	sort.Strings(sections)

	for _, section := range sections {
		opts := values[section]
		keys := make([]string, 0, len(opts))
		for k := range opts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := setValue(doc, section, k, opts[k]); err != nil {
				return err
			}
		}
	}
	return nil
}

// ensureDir creates the configuration directory if needed.
func ensureDir(dir string) error {
	if err := os.MkdirAll(filepath.Clean(dir), 0o755); err != nil {
		return &StorageError{Op: "mkdir", Path: dir, Err: err}
	}
	return nil
}
