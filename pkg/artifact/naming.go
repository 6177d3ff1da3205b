// Package artifact encodes the processing history of reduction products.
//
// Every derived file is keyed by a base identifier and a chain of
// single-letter stage tags. Tags are prepended as stages run, so the chain
// doubles as a provenance log: "stxeqxbrgN20240609S0067" is the sky
// subtracted (s), rectified (t), carried-forward (x), re-extracted (e),
// QE corrected (q), cosmic-ray cleaned (x), scatter removed (b), reduced
// (r), prepared (g) exposure N20240609S0067.
package artifact

import (
	"fmt"
	"strings"
)

// Tag is a single stage marker in a prefix chain.
type Tag byte

const (
	TagPrepared    Tag = 'g'
	TagReduced     Tag = 'r'
	TagExtracted   Tag = 'e'
	TagScatter     Tag = 'b'
	TagQE          Tag = 'q'
	TagCosmicRay   Tag = 'x'
	TagTransformed Tag = 't'
	TagSky         Tag = 's'
	TagApSum       Tag = 'a'
	TagFluxCal     Tag = 'c'
)

var tagNames = map[Tag]string{
	TagPrepared:    "prepared",
	TagReduced:     "reduced",
	TagExtracted:   "extracted",
	TagScatter:     "scatter-removed",
	TagQE:          "qe-corrected",
	TagCosmicRay:   "cr-cleaned",
	TagTransformed: "rectified",
	TagSky:         "sky-subtracted",
	TagApSum:       "aperture-summed",
	TagFluxCal:     "flux-calibrated",
}

const (
	Extension      = ".fits"
	BlockMaskStem  = "blkmask_"
	ResponseSuffix = "_resp"
	CubeSuffix     = "_3D"
)

var knownSuffixes = []string{ResponseSuffix, CubeSuffix}

func (t Tag) String() string {
	return string(rune(t))
}

// Describe returns the human-readable stage name for the tag.
func (t Tag) Describe() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return "unknown"
}

func (t Tag) Valid() bool {
	_, ok := tagNames[t]
	return ok
}

// Chain is an ordered list of tags, most recently applied first.
type Chain []Tag

// ParseChain converts the on-disk prefix form ("erg") into a Chain.
func ParseChain(s string) (Chain, error) {
	chain := make(Chain, 0, len(s))
	for i := 0; i < len(s); i++ {
		tag := Tag(s[i])
		if !tag.Valid() {
			return nil, fmt.Errorf("artifact: unknown stage tag %q in chain %q", s[i], s)
		}
		chain = append(chain, tag)
	}
	return chain, nil
}

// MustChain is ParseChain for package-level literals.
func MustChain(s string) Chain {
	chain, err := ParseChain(s)
	if err != nil {
		panic(err)
	}
	return chain
}

func (c Chain) String() string {
	var b strings.Builder
	b.Grow(len(c))
	for _, tag := range c {
		b.WriteByte(byte(tag))
	}
	return b.String()
}

// Head is the tag of the stage that produced an artifact with this chain.
func (c Chain) Head() (Tag, bool) {
	if len(c) == 0 {
		return 0, false
	}
	return c[0], true
}

// Tail is the chain of the artifact the producing stage consumed.
func (c Chain) Tail() Chain {
	if len(c) == 0 {
		return nil
	}
	return append(Chain{}, c[1:]...)
}

// Push returns a new chain with tag applied on top.
func (c Chain) Push(tag Tag) Chain {
	out := make(Chain, 0, len(c)+1)
	out = append(out, tag)
	return append(out, c...)
}

func (c Chain) Equal(other Chain) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if c[i] != other[i] {
			return false
		}
	}
	return true
}

// Chains produced by the reduction stages.
var (
	Raw            = Chain(nil)
	Prepared       = MustChain("g")
	Reduced        = MustChain("rg")
	Extracted      = MustChain("erg")
	ScatterRemoved = MustChain("brg")
	QECorrected    = MustChain("qbrg")
	FlatExtracted  = MustChain("eqbrg")
	CRCleaned      = MustChain("xbrg")
	SciQECorrected = MustChain("qxbrg")
	SciExtracted   = MustChain("eqxbrg")
	CarriedForward = MustChain("xeqxbrg")
	Rectified      = MustChain("txeqxbrg")
	SkySubtracted  = MustChain("stxeqxbrg")
	ApertureSummed = MustChain("astxeqxbrg")
	FluxCalibrated = MustChain("cstxeqxbrg")
)

// Key identifies one artifact: stem + chain + base + suffix.
type Key struct {
	Stem   string
	Chain  Chain
	Base   string
	Suffix string
}

// Compose builds the key for base after the stages in chain.
func Compose(base string, chain Chain) Key {
	return Key{Chain: append(Chain{}, chain...), Base: base}
}

// Name formats the on-disk name without extension, as the engine expects it.
func (k Key) Name() string {
	return k.Stem + k.Chain.String() + k.Base + k.Suffix
}

func (k Key) FileName() string {
	return k.Name() + Extension
}

func (k Key) String() string {
	return k.Name()
}

func (k Key) Push(tag Tag) Key {
	next := k
	next.Chain = k.Chain.Push(tag)
	return next
}

func (k Key) WithSuffix(suffix string) Key {
	next := k
	next.Chain = append(Chain{}, k.Chain...)
	next.Suffix = suffix
	return next
}

// Decompose parses an on-disk name back into a Key. The tag run is read
// greedily, so a base identifier starting with a lowercase tag letter is
// ambiguous; observatory identifiers start with an upper-case site letter.
func Decompose(name string) Key {
	rest := strings.TrimSuffix(name, Extension)

	var key Key
	if strings.HasPrefix(rest, BlockMaskStem) {
		key.Stem = BlockMaskStem
		rest = strings.TrimPrefix(rest, BlockMaskStem)
	}

	for _, suffix := range knownSuffixes {
		if strings.HasSuffix(rest, suffix) && len(rest) > len(suffix) {
			key.Suffix = suffix
			rest = strings.TrimSuffix(rest, suffix)
			break
		}
	}

	i := 0
	for i < len(rest) && Tag(rest[i]).Valid() {
		i++
	}
	if i > 0 {
		key.Chain = MustChain(rest[:i])
	}
	key.Base = rest[i:]

	return key
}

// Names expands bases under one chain, keeping order and duplicates.
func Names(bases []string, chain Chain) []string {
	out := make([]string, 0, len(bases))
	for _, base := range bases {
		out = append(out, Compose(base, chain).Name())
	}
	return out
}

// List is the comma-joined reference list the engine accepts for batch tasks.
func List(bases []string, chain Chain) string {
	return strings.Join(Names(bases, chain), ",")
}

func Keys(bases []string, chain Chain) []Key {
	out := make([]Key, 0, len(bases))
	for _, base := range bases {
		out = append(out, Compose(base, chain))
	}
	return out
}

func BlockMaskOf(flat string) Key {
	return Key{Stem: BlockMaskStem, Base: flat}
}

func ResponseOf(flat string) Key {
	return Key{Base: flat, Suffix: ResponseSuffix}
}

func CubeOf(base string) Key {
	return Compose(base, FluxCalibrated).WithSuffix(CubeSuffix)
}
