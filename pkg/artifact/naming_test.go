package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeDecompose_RoundTrip(t *testing.T) {
	chains := []Chain{
		Prepared, Reduced, Extracted, ScatterRemoved, QECorrected, FlatExtracted,
		CRCleaned, SciQECorrected, SciExtracted, CarriedForward, Rectified,
		SkySubtracted, ApertureSummed, FluxCalibrated,
	}
	ids := []string{"N20240609S0067", "S20060327S0043", "Nonsense-id"}

	for _, id := range ids {
		for _, chain := range chains {
			t.Run(chain.String()+id, func(t *testing.T) {
				key := Compose(id, chain)
				back := Decompose(key.Name())

				assert.Equal(t, id, back.Base)
				assert.True(t, chain.Equal(back.Chain), "chain %s != %s", chain, back.Chain)
				assert.Equal(t, key.Name(), back.Name())
			})
		}
	}
}

func TestKey_Name(t *testing.T) {
	assert.Equal(t, "stxeqxbrgN20240609S0067", Compose("N20240609S0067", SkySubtracted).Name())
	assert.Equal(t, "ergN1.fits", Compose("N1", Extracted).FileName())
	assert.Equal(t, "blkmask_N1", BlockMaskOf("N1").Name())
	assert.Equal(t, "N1_resp", ResponseOf("N1").Name())
	assert.Equal(t, "cstxeqxbrgN1_3D", CubeOf("N1").Name())
}

func TestDecompose_StemAndSuffix(t *testing.T) {
	mask := Decompose("blkmask_N20240609S0066.fits")
	assert.Equal(t, BlockMaskStem, mask.Stem)
	assert.Equal(t, "N20240609S0066", mask.Base)
	assert.Empty(t, mask.Chain)

	cube := Decompose("cstxeqxbrgN20240609S0067_3D")
	assert.Equal(t, CubeSuffix, cube.Suffix)
	assert.True(t, FluxCalibrated.Equal(cube.Chain))
	assert.Equal(t, "N20240609S0067", cube.Base)

	resp := Decompose("N20240609S0066_resp")
	assert.Equal(t, ResponseSuffix, resp.Suffix)
	assert.Equal(t, "N20240609S0066", resp.Base)
}

func TestChain_HeadTailPush(t *testing.T) {
	head, ok := Rectified.Head()
	require.True(t, ok)
	assert.Equal(t, TagTransformed, head)
	assert.True(t, CarriedForward.Equal(Rectified.Tail()))
	assert.True(t, Rectified.Equal(CarriedForward.Push(TagTransformed)))

	_, ok = Raw.Head()
	assert.False(t, ok)
	assert.Empty(t, Raw.Tail())

	key := Compose("N1", SciExtracted).Push(TagCosmicRay)
	assert.Equal(t, "xeqxbrgN1", key.Name())
	assert.Equal(t, "eqxbrg", SciExtracted.String(), "push must not mutate the source chain")
}

func TestParseChain_RejectsUnknownTags(t *testing.T) {
	_, err := ParseChain("ezg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown stage tag")

	assert.Panics(t, func() { MustChain("Q") })
}

func TestList_PreservesOrderAndDuplicates(t *testing.T) {
	assert.Equal(t, "ergB,ergA,ergB", List([]string{"B", "A", "B"}, Extracted))
	assert.Equal(t, "A,B", List([]string{"A", "B"}, Raw))
	assert.Equal(t, "", List(nil, Extracted))
}

func TestList_NoNormalization(t *testing.T) {
	assert.Equal(t, "rg bad id ", List([]string{" bad id "}, Reduced))
}

func TestTag_Describe(t *testing.T) {
	assert.Equal(t, "rectified", TagTransformed.Describe())
	assert.Equal(t, "unknown", Tag('z').Describe())
	assert.Equal(t, "x", TagCosmicRay.String())
}

func TestParseExposure(t *testing.T) {
	exp, err := ParseExposure("N20240609S0158", RoleBias)
	require.NoError(t, err)
	assert.Equal(t, "N", exp.Site)
	assert.Equal(t, 2024, exp.Date.Year())
	assert.Equal(t, 158, exp.Sequence)
	assert.Equal(t, RoleBias, exp.Role)

	bad, err := ParseExposure("bd284211_", RoleStandard)
	require.Error(t, err)
	assert.Equal(t, "bd284211_", bad.ID)
}
