package engine

import (
	"strconv"
)

// Flag is a tri-state engine switch. The zero value leaves the task default.
type Flag int8

const (
	Unset Flag = iota
	Yes
	No
)

func Bool(v bool) Flag {
	if v {
		return Yes
	}
	return No
}

func (f Flag) String() string {
	switch f {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return ""
	}
}

func Int(v int) *int {
	return &v
}

func Float(v float64) *float64 {
	return &v
}

// Params enumerates every option ifured ever passes to the engine. Each call
// carries its own Params; nothing is inherited from a previous call.
type Params struct {
	// input/output locations
	RawPath   string
	OutImage  string
	Prefix    string `validate:"omitempty,alpha"`
	Reference string
	Response  string
	RefImage  string
	QERefIm   string
	WavTran   string
	SFunction string
	LogFile   string

	// reduction switches
	Extract  Flag
	FlBias   Flag
	Bias     string
	Overscan Flag
	Trim     Flag
	MDFFile  string
	MDFDir   string
	AddMDF   Flag
	Slits    string `validate:"omitempty,oneof=red blue both"`
	FluxCal  Flag
	CRReject Flag
	WavTrans Flag
	SkySub   Flag
	QECorr   Flag
	Correct  Flag
	Interact Flag
	VarDQ    Flag
	Var      Flag
	DQ       Flag
	AtmDisp  Flag
	Extinct  Flag
	Fit      Flag
	Cross    Flag
	Paste    Flag
	Verbose  Flag
	Recenter Flag
	Trace    Flag
	BPM      string
	Weights  string `validate:"omitempty,oneof=none variance"`
	Sky      *string
	Sample   string
	Combine  string `validate:"omitempty,oneof=sum average"`
	Version  string
	Linterp  string

	// fit parameters
	XOrder     string
	YOrder     string
	Function   string   `validate:"omitempty,oneof=spline3 spline1 legendre chebyshev"`
	Order      *int     `validate:"omitempty,min=1"`
	NLost      *int     `validate:"omitempty,min=0"`
	NTarget    *int     `validate:"omitempty,min=1"`
	Threshold  *float64 `validate:"omitempty,gt=0"`
	CoordList  string
	Dispersion *float64 `validate:"omitempty,gt=0"`
	NIter      *int     `validate:"omitempty,min=1"`
	SigClip    *float64 `validate:"omitempty,gt=0"`
	SigFrac    *float64 `validate:"omitempty,gt=0"`
	ObjLim     *float64 `validate:"omitempty,gt=0"`
	KeyGain    string
	KeyRON     string

	// flux calibration
	StarName    string
	Observatory string
	CalDir      string
	Extinction  string
}

// Pair is one rendered key=value option.
type Pair struct {
	Key   string
	Value string
}

func (p Pair) String() string {
	return p.Key + "=" + p.Value
}

// Pairs renders the set options in a fixed order using engine parameter names.
func (p Params) Pairs() []Pair {
	var out []Pair
	str := func(key, value string) {
		if value != "" {
			out = append(out, Pair{key, value})
		}
	}
	flag := func(key string, value Flag) {
		if value != Unset {
			out = append(out, Pair{key, value.String()})
		}
	}
	integer := func(key string, value *int) {
		if value != nil {
			out = append(out, Pair{key, strconv.Itoa(*value)})
		}
	}
	float := func(key string, value *float64) {
		if value != nil {
			out = append(out, Pair{key, strconv.FormatFloat(*value, 'g', -1, 64)})
		}
	}

	str("rawpath", p.RawPath)
	str("outimage", p.OutImage)
	str("prefix", p.Prefix)
	str("reference", p.Reference)
	str("response", p.Response)
	str("refimage", p.RefImage)
	str("qe_refim", p.QERefIm)
	str("wavtraname", p.WavTran)
	str("sfunction", p.SFunction)
	str("logfile", p.LogFile)

	flag("fl_extract", p.Extract)
	flag("fl_bias", p.FlBias)
	str("bias", p.Bias)
	flag("fl_over", p.Overscan)
	flag("fl_trim", p.Trim)
	str("mdffile", p.MDFFile)
	str("mdfdir", p.MDFDir)
	flag("fl_addmdf", p.AddMDF)
	str("slits", p.Slits)
	flag("fl_fluxcal", p.FluxCal)
	flag("fl_gscrrej", p.CRReject)
	flag("fl_wavtran", p.WavTrans)
	flag("fl_skysub", p.SkySub)
	flag("fl_qecorr", p.QECorr)
	flag("fl_correct", p.Correct)
	flag("fl_inter", p.Interact)
	flag("fl_vardq", p.VarDQ)
	flag("fl_var", p.Var)
	flag("fl_dq", p.DQ)
	flag("fl_atmdisp", p.AtmDisp)
	flag("fl_ext", p.Extinct)
	flag("fl_fit", p.Fit)
	flag("cross", p.Cross)
	flag("fl_paste", p.Paste)
	flag("verbose", p.Verbose)
	flag("recenter", p.Recenter)
	flag("trace", p.Trace)
	str("bpm", p.BPM)
	str("weights", p.Weights)
	if p.Sky != nil {
		out = append(out, Pair{"sky", *p.Sky})
	}
	str("sample", p.Sample)
	str("combine", p.Combine)
	str("version", p.Version)
	str("linterp", p.Linterp)

	str("xorder", p.XOrder)
	str("yorder", p.YOrder)
	str("function", p.Function)
	integer("order", p.Order)
	integer("nlost", p.NLost)
	integer("ntarget", p.NTarget)
	float("threshold", p.Threshold)
	str("coordlist", p.CoordList)
	float("dw", p.Dispersion)
	integer("niter", p.NIter)
	float("sigclip", p.SigClip)
	float("sigfrac", p.SigFrac)
	float("objlim", p.ObjLim)
	str("key_gain", p.KeyGain)
	str("key_ron", p.KeyRON)

	str("starname", p.StarName)
	str("observatory", p.Observatory)
	str("caldir", p.CalDir)
	str("extinction", p.Extinction)

	return out
}

// Strings renders Pairs as key=value arguments.
func (p Params) Strings() []string {
	pairs := p.Pairs()
	out := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		out = append(out, pair.String())
	}
	return out
}

// Get returns the rendered value of one option, for assertions and logging.
func (p Params) Get(key string) (string, bool) {
	for _, pair := range p.Pairs() {
		if pair.Key == key {
			return pair.Value, true
		}
	}
	return "", false
}
