package trace

import (
	"bytes"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/pinbridge/errors"
)

// Op names a script step.
type Op string

const (
	OpAlloc         Op = "alloc"          // name, type: allocate a foreign object
	OpBind          Op = "bind"           // name, id: name an existing identity
	OpNil           Op = "nil"            // name: name the foreign null
	OpNew           Op = "new"            // name, object: open a handle
	OpShare         Op = "share"          // name, handle: second handle on the same object
	OpReseat        Op = "reseat"         // handle, object
	OpClose         Op = "close"          // handle
	OpExternal      Op = "external"       // name: open an external resource
	OpShareExternal Op = "share-external" // name, handle
	OpCloseExternal Op = "close-external" // handle
	OpCollect       Op = "collect"        // run the foreign collector
	OpCheck         Op = "check"          // object, count: assert the pin count
)

// Script is a named list of bookkeeping steps.
type Script struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Step is one operation. Which fields apply depends on Op.
type Step struct {
	Op     Op     `yaml:"op"`
	Name   string `yaml:"name,omitempty"`
	Handle string `yaml:"handle,omitempty"`
	Object string `yaml:"object,omitempty"`
	Type   string `yaml:"type,omitempty"`
	ID     uint64 `yaml:"id,omitempty"`
	Count  *int   `yaml:"count,omitempty"`

	// Expect is the error kind the step must fail with, e.g.
	// "type_mismatch". Empty means the step must succeed.
	Expect string `yaml:"expect,omitempty"`
}

// Parse decodes a YAML script. Unknown fields are rejected.
func Parse(data []byte) (*Script, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads a YAML script from r.
func Decode(r io.Reader) (*Script, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var s Script
	if err := dec.Decode(&s); err != nil {
		return nil, errors.Wrap(errors.PhaseTrace, errors.KindInvalidData, err, "decode script")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadFile reads and validates the script at path.
func LoadFile(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseTrace, errors.KindNotFound, err, path)
	}
	defer f.Close()
	return Decode(f)
}

// Encode writes the script as YAML.
func (s *Script) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return err
	}
	return enc.Close()
}

// Validate checks that every step carries the fields its op needs.
func (s *Script) Validate() error {
	for i, st := range s.Steps {
		var missing string
		switch st.Op {
		case OpAlloc:
			if st.Name == "" {
				missing = "name"
			} else if st.Type == "" {
				missing = "type"
			}
		case OpBind, OpNil, OpExternal:
			if st.Name == "" {
				missing = "name"
			}
		case OpNew:
			if st.Name == "" {
				missing = "name"
			} else if st.Object == "" {
				missing = "object"
			}
		case OpShare, OpShareExternal:
			if st.Name == "" {
				missing = "name"
			} else if st.Handle == "" {
				missing = "handle"
			}
		case OpReseat:
			if st.Handle == "" {
				missing = "handle"
			} else if st.Object == "" {
				missing = "object"
			}
		case OpClose, OpCloseExternal:
			if st.Handle == "" {
				missing = "handle"
			}
		case OpCheck:
			if st.Object == "" {
				missing = "object"
			} else if st.Count == nil {
				missing = "count"
			}
		case OpCollect:
		default:
			return errors.New(errors.PhaseTrace, errors.KindInvalidInput).
				Detail("step %d: unknown op %q", i, st.Op).
				Build()
		}
		if missing != "" {
			return errors.New(errors.PhaseTrace, errors.KindInvalidInput).
				Detail("step %d (%s): missing %s", i, st.Op, missing).
				Build()
		}
	}
	return nil
}
