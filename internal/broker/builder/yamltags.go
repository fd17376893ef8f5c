package builder

import (
	"bytes"
	"os"

	"gopkg.in/yaml.v3"
)

// includeSentinel stands in for a bare "!include <path>" YAML tag during
// marshalling: the include path is marshalled as this sentinel string and
// the sentinel is textually replaced with the real tag afterwards
// (spec.md §4.6). The cluster's own YAML loader expects the literal
// "!include <path>" tag. (File below emits its "!file" tag through a
// tagged yaml.Node instead.)
const includeSentinel = "0tag::include "

// includeTag marshals as the sentinel-prefixed path, to be rewritten by
// rewriteIncludeTags after serialisation.
type includeTag string

func (t includeTag) asSentinel() string {
	return includeSentinel + string(t)
}

// File is a scalar reference to an input/output file within a test
// (spec.md §4.6, "File references").
type File struct {
	Path string
}

// MarshalYAML emits File as a "!file"-tagged scalar, matching the
// cluster's own file_representer/file_constructor pair rather than a
// plain string (spec.md §4.6 "File references").
func (f File) MarshalYAML() (any, error) {
	return &yaml.Node{
		Kind:  yaml.ScalarNode,
		Tag:   "!file",
		Value: f.Path,
	}, nil
}

// rewriteIncludeTags replaces every sentinel-prefixed line with the real
// "!include <path>" tag and writes the result to path.
func rewriteIncludeTags(path string, content []byte) error {
	rewritten := bytes.ReplaceAll(content, []byte(includeSentinel), []byte("!include "))
	return os.WriteFile(path, rewritten, 0o644)
}
