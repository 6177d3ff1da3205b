package config

import "github.com/dukex/ifured/pkg/artifact"

// DefaultLayout is the directory convention shared with the engine scripts.
func DefaultLayout() artifact.Layout {
	return artifact.Layout{
		WorkDir: ".",
		RawDir:  "../data/",
		BiasDir: "../data/biases/",
		CalDir:  "../calibrations/",
	}
}

func baseProfile() Profile {
	return Profile{
		Slits:          "red",
		FlatScatter:    Orders{X: []int{5}, Y: []int{6}},
		SubjectScatter: Orders{X: []int{5}, Y: []int{6}},
		Alias:          AliasCopy,
		Wavelength: Wavelength{
			NLost:       10,
			NTarget:     15,
			Threshold:   25,
			CoordList:   "gmos$data/GCALcuar.dat",
			Interactive: true,
		},
		Response: Response{
			Order:       45,
			Function:    "spline3",
			Sample:      "*",
			Interactive: true,
		},
		CosmicRays: CosmicRays{
			LogFile: "crrej.log",
			KeyGain: "GAIN",
			KeyRON:  "RDNOISE",
			XOrder:  9,
			YOrder:  -1,
			SigClip: 4.5,
			SigFrac: 0.5,
			ObjLim:  1,
			NIter:   4,
		},
		Sensitivity: Sensitivity{
			Function:    "spline3",
			Order:       7,
			Interactive: true,
		},
	}
}

// DefaultProfiles reproduce the settings of the reference reduction.
func DefaultProfiles() Profiles {
	std := baseProfile()
	std.Show.Response = true

	cal := baseProfile()

	sci := baseProfile()
	sci.SubjectScatter = Orders{X: []int{4}, Y: []int{3}}

	return Profiles{StandardStar: std, Calibrations: cal, Science: sci}
}

// Default is the configuration every run file is decoded on top of.
func Default() Config {
	return Config{
		Observatory: "Gemini-North",
		MDF:         "gnifu_slitr_mdf.fits",
		Layout:      DefaultLayout(),
		StandardStar: StandardStar{
			CalDir:     "onedstds$spec50cal/",
			Extinction: "gmos$calib/mkoextinct.dat",
		},
		Profiles: DefaultProfiles(),
	}
}
