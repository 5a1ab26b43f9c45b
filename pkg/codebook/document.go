package codebook

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"merfishdecode/pkg/errs"
)

// Document is the serialized form of a codebook. JSON documents are accepted
// as well since yaml.v3 reads JSON.
//
// Each mapping lists either sparse (r, c, v) components under "codeword" or a
// dense vector, ordered by axisOrder, under "vector". Rounds and channels may
// be omitted when every mapping is sparse; they are then inferred from the
// largest indices used.
type Document struct {
	Rounds    int               `yaml:"rounds,omitempty"`
	Channels  int               `yaml:"channels,omitempty"`
	AxisOrder string            `yaml:"axisOrder,omitempty"`
	Mappings  []DocumentMapping `yaml:"mappings"`
}

// DocumentMapping is one target and its codeword.
type DocumentMapping struct {
	Target   string        `yaml:"target"`
	Codeword []DocumentBit `yaml:"codeword,omitempty"`
	Vector   []float64     `yaml:"vector,omitempty"`
}

// DocumentBit is one non-zero codeword component.
type DocumentBit struct {
	R int     `yaml:"r"`
	C int     `yaml:"c"`
	V float64 `yaml:"v"`
}

// Decode reads a codebook document from r.
func Decode(r io.Reader) (*Codebook, error) {
	var doc Document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errs.Configurationf("error parsing codebook: %v", err)
	}
	return doc.Build()
}

// LoadFile reads a codebook document from path.
func LoadFile(path string) (*Codebook, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "error opening codebook")
	}
	defer f.Close()

	cb, err := Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "codebook %s", path)
	}
	return cb, nil
}

// Build converts the document into a Codebook.
func (d Document) Build() (*Codebook, error) {
	order, err := ParseAxisOrder(d.AxisOrder)
	if err != nil {
		return nil, err
	}

	layout := Layout{Rounds: d.Rounds, Channels: d.Channels, Order: order}
	if layout.Rounds == 0 || layout.Channels == 0 {
		for _, m := range d.Mappings {
			if len(m.Vector) > 0 {
				return nil, errs.Configurationf("dense vector for %q needs explicit rounds and channels", m.Target)
			}
			for _, b := range m.Codeword {
				if b.R+1 > layout.Rounds && d.Rounds == 0 {
					layout.Rounds = b.R + 1
				}
				if b.C+1 > layout.Channels && d.Channels == 0 {
					layout.Channels = b.C + 1
				}
			}
		}
	}
	if err := layout.Validate(); err != nil {
		return nil, err
	}

	entries := make([]SparseEntry, len(d.Mappings))
	for i, m := range d.Mappings {
		if len(m.Vector) > 0 && len(m.Codeword) > 0 {
			return nil, errs.Configurationf("mapping for %q sets both codeword and vector", m.Target)
		}
		if len(m.Vector) > 0 {
			if len(m.Vector) != layout.Len() {
				return nil, errs.Configurationf("vector for %q has length %d, layout needs %d",
					m.Target, len(m.Vector), layout.Len())
			}
			for r := 0; r < layout.Rounds; r++ {
				for c := 0; c < layout.Channels; c++ {
					if v := m.Vector[layout.Index(r, c)]; v != 0 {
						entries[i].Bits = append(entries[i].Bits, Bit{Round: r, Channel: c, Value: v})
					}
				}
			}
		}
		for _, b := range m.Codeword {
			entries[i].Bits = append(entries[i].Bits, Bit{Round: b.R, Channel: b.C, Value: b.V})
		}
		entries[i].Target = m.Target
	}

	return FromSparse(layout, entries)
}

// Document returns the sparse serialized form of the codebook.
func (cb *Codebook) Document() Document {
	doc := Document{
		Rounds:    cb.layout.Rounds,
		Channels:  cb.layout.Channels,
		AxisOrder: cb.layout.Order.String(),
		Mappings:  make([]DocumentMapping, len(cb.codewords)),
	}
	for i, cw := range cb.codewords {
		m := DocumentMapping{Target: cb.targets[cb.targetIDs[i]]}
		for r := 0; r < cb.layout.Rounds; r++ {
			for c := 0; c < cb.layout.Channels; c++ {
				if v := cw[cb.layout.Index(r, c)]; v != 0 {
					m.Codeword = append(m.Codeword, DocumentBit{R: r, C: c, V: v})
				}
			}
		}
		doc.Mappings[i] = m
	}
	return doc
}

// Encode writes the codebook document as YAML.
func (cb *Codebook) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cb.Document()); err != nil {
		return errors.Wrap(err, "error encoding codebook")
	}
	return enc.Close()
}
