// Package codebook holds the immutable set of barcodes (codewords) of an
// experiment and finds the codeword nearest to a pixel vector.
//
// Codewords are flat vectors of length rounds×channels. Their component order
// is fixed by a Layout that is declared when the codebook is built; pixel
// vectors must be extracted with the same Layout (see tensor.NewExtractor).
package codebook

import (
	"fmt"
	"math"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"merfishdecode/pkg/errs"
)

// BackgroundTarget is the target id of pixels that were not decoded.
const BackgroundTarget = -1

// BackgroundName is reported for BackgroundTarget.
const BackgroundName = "background"

// matcherCacheSize bounds the number of prepared matchers kept per codebook.
const matcherCacheSize = 16

// AxisOrder selects how (round, channel) pairs are flattened into a vector.
type AxisOrder int

const (
	// RoundMajor puts rounds outer and channels inner: index = r*channels + c.
	RoundMajor AxisOrder = iota

	// ChannelMajor puts channels outer and rounds inner: index = c*rounds + r.
	ChannelMajor
)

func (o AxisOrder) String() string {
	switch o {
	case RoundMajor:
		return "round-major"
	case ChannelMajor:
		return "channel-major"
	default:
		return fmt.Sprintf("AxisOrder(%d)", int(o))
	}
}

// ParseAxisOrder parses "round-major" or "channel-major". The empty string
// selects RoundMajor.
func ParseAxisOrder(s string) (AxisOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "round-major", "roundmajor", "rc":
		return RoundMajor, nil
	case "channel-major", "channelmajor", "cr":
		return ChannelMajor, nil
	}
	return RoundMajor, errs.Configurationf("unknown axis order %q", s)
}

// Layout is the (round, channel) shape a codebook was built for, together
// with the order in which those axes are flattened.
type Layout struct {
	Rounds   int
	Channels int
	Order    AxisOrder
}

// Len is the length of every codeword and pixel vector under this layout.
func (l Layout) Len() int {
	return l.Rounds * l.Channels
}

// Index returns the flat position of (round, channel).
func (l Layout) Index(round, channel int) int {
	if l.Order == ChannelMajor {
		return channel*l.Rounds + round
	}
	return round*l.Channels + channel
}

// Validate checks that the layout describes at least one round and channel.
func (l Layout) Validate() error {
	if l.Rounds < 1 || l.Channels < 1 {
		return errs.Configurationf("layout needs at least one round and channel, got %dx%d", l.Rounds, l.Channels)
	}
	if l.Order != RoundMajor && l.Order != ChannelMajor {
		return errs.Configurationf("invalid axis order %v", l.Order)
	}
	return nil
}

// Entry is one dense (target, codeword) pair, the codeword ordered by the
// codebook Layout.
type Entry struct {
	Target   string
	Codeword []float64
}

// Bit is one non-zero component of a sparse codeword.
type Bit struct {
	Round   int
	Channel int
	Value   float64
}

// SparseEntry is a (target, codeword) pair listing only non-zero components.
type SparseEntry struct {
	Target string
	Bits   []Bit
}

// Codebook maps codewords to targets. It is immutable once built and safe
// for concurrent use.
type Codebook struct {
	layout Layout

	// codewords are kept in construction order; that order breaks ties
	codewords [][]float64
	targetIDs []int

	// targets holds distinct target names, indexed by target id
	targets  []string
	targetID map[string]int

	matchers *lru.Cache[matcherKey, *Matcher]
}

// New builds a codebook from dense entries.
func New(layout Layout, entries []Entry) (*Codebook, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errs.Configurationf("codebook has no codewords")
	}

	cb := &Codebook{
		layout:    layout,
		codewords: make([][]float64, 0, len(entries)),
		targetIDs: make([]int, 0, len(entries)),
		targetID:  make(map[string]int),
	}

	seen := make(map[string]string, len(entries))
	for i, e := range entries {
		if strings.TrimSpace(e.Target) == "" {
			return nil, errs.Configurationf("codeword %d has no target", i)
		}
		if len(e.Codeword) != layout.Len() {
			return nil, errs.Configurationf("codeword for %q has length %d, layout %dx%d needs %d",
				e.Target, len(e.Codeword), layout.Rounds, layout.Channels, layout.Len())
		}

		nonZero := false
		for _, v := range e.Codeword {
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return nil, errs.Configurationf("codeword for %q has invalid component %v", e.Target, v)
			}
			if v != 0 {
				nonZero = true
			}
		}
		if !nonZero {
			return nil, errs.Configurationf("codeword for %q is the zero vector", e.Target)
		}

		key := codewordKey(e.Codeword)
		if other, ok := seen[key]; ok {
			return nil, errs.Configurationf("targets %q and %q share the same codeword", other, e.Target)
		}
		seen[key] = e.Target

		id, ok := cb.targetID[e.Target]
		if !ok {
			id = len(cb.targets)
			cb.targets = append(cb.targets, e.Target)
			cb.targetID[e.Target] = id
		}

		cw := make([]float64, len(e.Codeword))
		copy(cw, e.Codeword)
		cb.codewords = append(cb.codewords, cw)
		cb.targetIDs = append(cb.targetIDs, id)
	}

	cache, err := lru.New[matcherKey, *Matcher](matcherCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create matcher cache: %w", err)
	}
	cb.matchers = cache

	return cb, nil
}

// FromSparse builds a codebook from entries that list their non-zero
// (round, channel) components.
func FromSparse(layout Layout, entries []SparseEntry) (*Codebook, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}

	dense := make([]Entry, len(entries))
	for i, e := range entries {
		cw := make([]float64, layout.Len())
		set := make([]bool, layout.Len())
		for _, b := range e.Bits {
			if b.Round < 0 || b.Round >= layout.Rounds || b.Channel < 0 || b.Channel >= layout.Channels {
				return nil, errs.Configurationf("codeword for %q references (r=%d, c=%d) outside %dx%d",
					e.Target, b.Round, b.Channel, layout.Rounds, layout.Channels)
			}
			idx := layout.Index(b.Round, b.Channel)
			if set[idx] {
				return nil, errs.Configurationf("codeword for %q sets (r=%d, c=%d) twice", e.Target, b.Round, b.Channel)
			}
			set[idx] = true
			cw[idx] = b.Value
		}
		dense[i] = Entry{Target: e.Target, Codeword: cw}
	}

	return New(layout, dense)
}

func codewordKey(cw []float64) string {
	var sb strings.Builder
	for _, v := range cw {
		fmt.Fprintf(&sb, "%x,", math.Float64bits(v))
	}
	return sb.String()
}

// Layout returns the (round, channel) layout of the codebook.
func (cb *Codebook) Layout() Layout { return cb.layout }

// Len returns the number of codewords.
func (cb *Codebook) Len() int { return len(cb.codewords) }

// Codeword returns a copy of codeword i.
func (cb *Codebook) Codeword(i int) []float64 {
	out := make([]float64, len(cb.codewords[i]))
	copy(out, cb.codewords[i])
	return out
}

// CodewordTarget returns the target id of codeword i.
func (cb *Codebook) CodewordTarget(i int) int { return cb.targetIDs[i] }

// NumTargets returns the number of distinct targets.
func (cb *Codebook) NumTargets() int { return len(cb.targets) }

// TargetName returns the name of a target id, or BackgroundName.
func (cb *Codebook) TargetName(id int) string {
	if id < 0 || id >= len(cb.targets) {
		return BackgroundName
	}
	return cb.targets[id]
}

// TargetID looks up the id of a target name.
func (cb *Codebook) TargetID(name string) (int, bool) {
	id, ok := cb.targetID[name]
	return id, ok
}

// Targets returns the distinct target names in id order.
func (cb *Codebook) Targets() []string {
	out := make([]string, len(cb.targets))
	copy(out, cb.targets)
	return out
}

// IsBlankTarget reports whether a target id names a blank control barcode.
func (cb *Codebook) IsBlankTarget(id int) bool {
	if id < 0 || id >= len(cb.targets) {
		return false
	}
	return IsBlank(cb.targets[id])
}

// IsBlank reports whether a target name denotes a blank control barcode.
func IsBlank(target string) bool {
	return strings.HasPrefix(strings.ToLower(target), "blank")
}
