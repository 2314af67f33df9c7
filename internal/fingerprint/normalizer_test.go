package fingerprint

import (
	"context"
	"encoding/json"
	"testing"

	"altguard/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	replaced    int
	fingerprint *database.Fingerprint
	sets        *database.AttributeSets
}

func (f *fakeStore) ReplaceFingerprint(_ context.Context, fp *database.Fingerprint, sets *database.AttributeSets) error {
	f.replaced++
	f.fingerprint = fp
	f.sets = sets
	return nil
}

const samplePayload = `{
	"userAgent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0.0.0 Safari/537.36",
	"language": "en-US",
	"platform": "Win32",
	"cookieEnabled": true,
	"hardwareConcurrency": 8,
	"deviceMemory": 16,
	"maxTouchPoints": 0,
	"screen": {"width": 1920, "height": 1080, "colorDepth": 24},
	"timezone": {"name": "Europe/Berlin", "offset": -60},
	"webgl": {
		"vendor": "WebKit",
		"renderer": "WebKit WebGL",
		"unmaskedVendor": "NVIDIA Corporation",
		"unmaskedRenderer": "NVIDIA GeForce RTX 3070",
		"extensions": ["EXT_color_buffer_float", "OES_texture_float_linear"]
	},
	"audio": {"fingerprint": "af-1234"},
	"network": {"downlink": 10, "effectiveType": "4g"},
	"languages": ["en-US", "en"],
	"fonts": ["Arial", "Verdana"],
	"plugins": [
		{"name": "PDF Viewer", "filename": "internal-pdf-viewer", "description": "Portable Document Format"},
		{"name": "", "filename": "ignored", "description": "nameless, skipped"}
	],
	"storage": {"localStorage": true, "indexedDB": false},
	"protocols": ["http/1.1", "h2"],
	"timestamp": 1714000000000
}`

func TestNormalizeObjectPayload(t *testing.T) {
	n := NewNormalizer(&fakeStore{})

	fp, sets, err := n.Normalize([]byte(samplePayload))
	require.NoError(t, err)

	assert.Equal(t, "Win32", fp.Platform)
	assert.Equal(t, 8, fp.HardwareConcurrency)
	assert.Equal(t, 16.0, fp.DeviceMemory)
	assert.Equal(t, 1920, fp.ScreenWidth)
	assert.Equal(t, 1080, fp.ScreenHeight)
	assert.Equal(t, 24, fp.ScreenColorDepth)
	assert.Equal(t, "Europe/Berlin", fp.TimezoneName)
	assert.Equal(t, -60, fp.TimezoneOffset)
	assert.Equal(t, "NVIDIA Corporation", fp.WebGLUnmaskedVendor)
	assert.Equal(t, "af-1234", fp.AudioFingerprint)
	assert.Equal(t, 10.0, fp.NetworkDownlink)
	assert.Equal(t, "4g", fp.NetworkEffectiveType)
	assert.True(t, fp.CookieEnabled)
	assert.Equal(t, int64(1714000000000), fp.CapturedAt)

	assert.Equal(t, []string{"en-US", "en"}, sets.Languages)
	assert.Equal(t, []string{"Arial", "Verdana"}, sets.Fonts)
	assert.Equal(t, []string{"EXT_color_buffer_float", "OES_texture_float_linear"}, sets.WebGLExtensions)
	assert.Equal(t, []string{"http/1.1", "h2"}, sets.Protocols)

	require.Len(t, sets.Plugins, 1)
	assert.Equal(t, "PDF Viewer", sets.Plugins[0].Name)
	assert.Equal(t, "internal-pdf-viewer", sets.Plugins[0].Filename)

	assert.Len(t, sets.Storage, 2)
}

func TestNormalizeDoubleEncodedPayload(t *testing.T) {
	n := NewNormalizer(&fakeStore{})

	// The whole payload serialized once more: a JSON string of JSON.
	encoded, err := json.Marshal(samplePayload)
	require.NoError(t, err)

	fp, _, err := n.Normalize(encoded)
	require.NoError(t, err)
	assert.Equal(t, "Win32", fp.Platform)
	assert.Equal(t, 8, fp.HardwareConcurrency)
}

func TestNormalizeMalformedPayloads(t *testing.T) {
	n := NewNormalizer(&fakeStore{})

	tests := []struct {
		name    string
		payload string
	}{
		{"garbage", `not json at all`},
		{"truncated", `{"userAgent": "Mo`},
		{"array", `[1, 2, 3]`},
		{"number", `42`},
		{"triple encoded", `"\"\\\"still a string\\\"\""`},
		{"string of garbage", `"plain text, not JSON"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := n.Normalize([]byte(tt.payload))
			assert.ErrorIs(t, err, ErrMalformedPayload)
		})
	}
}

func TestNormalizeDefensiveDefaults(t *testing.T) {
	n := NewNormalizer(&fakeStore{})

	fp, sets, err := n.Normalize([]byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, "", fp.UserAgent)
	assert.Equal(t, 0, fp.HardwareConcurrency)
	assert.Equal(t, 0.0, fp.DeviceMemory)
	assert.Equal(t, 0, fp.ScreenWidth)
	assert.Equal(t, "", fp.TimezoneName)
	assert.Equal(t, "", fp.AudioFingerprint)
	assert.False(t, fp.CookieEnabled)

	assert.Empty(t, sets.Languages)
	assert.Empty(t, sets.Fonts)
	assert.Empty(t, sets.Plugins)
}

func TestNormalizeDeduplicatesSets(t *testing.T) {
	n := NewNormalizer(&fakeStore{})

	_, sets, err := n.Normalize([]byte(`{
		"languages": ["en", "en", "de"],
		"fonts": ["Arial", "Arial"],
		"protocols": ["h2", "h2"],
		"plugins": [
			{"name": "PDF Viewer", "filename": "viewer-a"},
			{"name": "PDF Viewer", "filename": "viewer-b"}
		]
	}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"en", "de"}, sets.Languages)
	assert.Equal(t, []string{"Arial"}, sets.Fonts)
	assert.Equal(t, []string{"h2"}, sets.Protocols)
	require.Len(t, sets.Plugins, 1)
	assert.Equal(t, "viewer-a", sets.Plugins[0].Filename)
}

func TestNormalizeTimezoneAsBareString(t *testing.T) {
	n := NewNormalizer(&fakeStore{})

	fp, _, err := n.Normalize([]byte(`{"timezone": "America/New_York"}`))
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", fp.TimezoneName)
	assert.Equal(t, 0, fp.TimezoneOffset)
}

func TestCaptureWritesThroughStore(t *testing.T) {
	store := &fakeStore{}
	n := NewNormalizer(store)

	fp, err := n.Capture(context.Background(), "acct-1", []byte(samplePayload))
	require.NoError(t, err)

	assert.Equal(t, 1, store.replaced)
	assert.Equal(t, "acct-1", fp.AccountID)
	assert.NotEmpty(t, fp.PayloadHash)
	assert.Same(t, fp, store.fingerprint)
}

func TestCaptureMalformedPerformsNoWrites(t *testing.T) {
	store := &fakeStore{}
	n := NewNormalizer(store)

	_, err := n.Capture(context.Background(), "acct-1", []byte(`broken`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
	assert.Equal(t, 0, store.replaced)
}
