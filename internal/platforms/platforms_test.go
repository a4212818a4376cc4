package platforms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantedhq/venuescout/internal/models"
)

func TestDetect(t *testing.T) {
	cases := map[string]models.PlatformTag{
		"https://wolt.com/en/che/zurich/restaurant/hiltl":     models.PlatformWolt,
		"https://www.wolt.com/en/deu/berlin/restaurant/x":     models.PlatformWolt,
		"https://www.ubereats.com/ch/store/hiltl/abc":         models.PlatformUberEats,
		"https://www.lieferando.de/speisekarte/gruener":       models.PlatformLieferando,
		"https://www.lieferando.at/speisekarte/gruener":       models.PlatformLieferando,
		"https://smood.ch/restaurant/hiltl":                   models.PlatformSmood,
		"https://www.eat.ch/menu/hiltl":                       models.PlatformEatCh,
	}
	for raw, want := range cases {
		a, ok := Detect(raw)
		require.True(t, ok, raw)
		assert.Equal(t, want, a.Tag, raw)
	}

	_, ok := Detect("https://doordash.com/store/x")
	assert.False(t, ok, "unknown platforms are not detected")
	_, ok = Detect("not a url")
	assert.False(t, ok)
}

func TestCountry(t *testing.T) {
	wolt, _ := Lookup(models.PlatformWolt)
	assert.Equal(t, "CH", wolt.Country("https://wolt.com/en/che/zurich/restaurant/x"))
	assert.Equal(t, "DE", wolt.Country("https://wolt.com/en/deu/berlin/restaurant/x"))

	uber, _ := Lookup(models.PlatformUberEats)
	assert.Equal(t, "CH", uber.Country("https://www.ubereats.com/ch/store/x/abc"))

	lieferando, _ := Lookup(models.PlatformLieferando)
	assert.Equal(t, "AT", lieferando.Country("https://www.lieferando.at/speisekarte/x"))
	assert.Equal(t, "DE", lieferando.Country("https://www.lieferando.de/speisekarte/x"))

	smood, _ := Lookup(models.PlatformSmood)
	assert.Equal(t, "CH", smood.Country("https://smood.ch/restaurant/x"))
}

func TestIsVenuePage(t *testing.T) {
	wolt, _ := Lookup(models.PlatformWolt)
	assert.True(t, wolt.IsVenuePage("https://wolt.com/en/che/zurich/restaurant/hiltl"))
	assert.False(t, wolt.IsVenuePage("https://wolt.com/en/che/zurich/search?q=planted"))
	assert.False(t, wolt.IsVenuePage("https://wolt.com/en/che/zurich/category/vegan"))

	uber, _ := Lookup(models.PlatformUberEats)
	assert.True(t, uber.IsVenuePage("https://www.ubereats.com/ch/store/hiltl/abc"))
	assert.False(t, uber.IsVenuePage("https://www.ubereats.com/ch/category/zurich/vegan"))
}

func TestNonVenueURL(t *testing.T) {
	for _, raw := range []string{
		"https://wolt.com/en/che/zurich/search?q=planted",
		"https://www.ubereats.com/ch/category/zurich/vegan",
		"https://www.lieferando.de/hilfe/help/faq",
		"https://smood.ch/city/zurich",
	} {
		assert.True(t, NonVenueURL(raw), raw)
	}
	assert.False(t, NonVenueURL("https://wolt.com/en/che/zurich/restaurant/hiltl"))
}

func TestLookupCoversAllPlatforms(t *testing.T) {
	for _, tag := range models.AllPlatforms() {
		a, ok := Lookup(tag)
		require.True(t, ok, tag)
		assert.NotEmpty(t, a.Domain, tag)
		assert.NotEmpty(t, a.PathHint, tag)
		assert.NotEmpty(t, a.StateKeys, tag)
	}
}
