package cache

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).Level(zerolog.Disabled)
}

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint("get_weather", map[string]interface{}{"city": "Tokyo", "units": "metric"})
	b := Fingerprint("get_weather", map[string]interface{}{"units": "metric", "city": "Tokyo"})

	assert.Equal(t, a, b, "argument order must not change the fingerprint")
	assert.Len(t, a, 64)
}

func TestFingerprintDistinguishesCapability(t *testing.T) {
	args := map[string]interface{}{"query": "ai"}

	a := Fingerprint("github_search", args)
	b := Fingerprint("search_news", args)
	assert.NotEqual(t, a, b)
}

func TestFingerprintDistinguishesArguments(t *testing.T) {
	a := Fingerprint("get_weather", map[string]interface{}{"city": "Tokyo"})
	b := Fingerprint("get_weather", map[string]interface{}{"city": "Osaka"})
	assert.NotEqual(t, a, b)
}

func TestFingerprintNestedArguments(t *testing.T) {
	a := Fingerprint("tool", map[string]interface{}{"filter": map[string]interface{}{"lang": "go", "stars": 100}})
	b := Fingerprint("tool", map[string]interface{}{"filter": map[string]interface{}{"stars": 100, "lang": "go"}})
	assert.Equal(t, a, b)
}

func TestFingerprintEmptyArgs(t *testing.T) {
	a := Fingerprint("tool", nil)
	b := Fingerprint("tool", map[string]interface{}{})
	// nil and empty maps normalize differently; both are stable with themselves.
	assert.Equal(t, a, Fingerprint("tool", nil))
	assert.Equal(t, b, Fingerprint("tool", map[string]interface{}{}))
}
