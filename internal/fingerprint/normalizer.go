package fingerprint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"altguard/internal/crypto"
	"altguard/internal/database"

	"github.com/rs/zerolog/log"
)

// ErrMalformedPayload means the raw payload was not a JSON object after at
// most two decode attempts. Nothing is written in that case.
var ErrMalformedPayload = errors.New("malformed fingerprint payload")

// Store is the persistence surface the normalizer writes through.
type Store interface {
	ReplaceFingerprint(ctx context.Context, fp *database.Fingerprint, sets *database.AttributeSets) error
}

// Normalizer decodes raw client-reported fingerprint payloads into the
// canonical record plus attribute sets and replaces the stored copy.
type Normalizer struct {
	store Store
}

func NewNormalizer(store Store) *Normalizer {
	return &Normalizer{store: store}
}

// Capture normalizes the payload and replaces the account's stored
// fingerprint. The replace is delete-then-insert inside one transaction, so
// a decode failure performs no writes and a store failure leaves the previous
// capture intact.
func (n *Normalizer) Capture(ctx context.Context, accountID string, payload []byte) (*database.Fingerprint, error) {
	fp, sets, err := n.Normalize(payload)
	if err != nil {
		return nil, err
	}
	fp.AccountID = accountID
	fp.PayloadHash = crypto.HashPayload(payload)

	if err := n.store.ReplaceFingerprint(ctx, fp, sets); err != nil {
		return nil, fmt.Errorf("failed to store fingerprint: %w", err)
	}

	log.Info().Str("account_id", accountID).
		Int("languages", len(sets.Languages)).
		Int("fonts", len(sets.Fonts)).
		Int("plugins", len(sets.Plugins)).
		Msg("Fingerprint captured")

	return fp, nil
}

// Normalize decodes the payload without touching the store. Client-side bugs
// ship payloads as plain objects, JSON strings, or double-encoded strings;
// anything still not an object after two decodes is malformed.
func (n *Normalizer) Normalize(payload []byte) (*database.Fingerprint, *database.AttributeSets, error) {
	data, err := decodePayload(payload)
	if err != nil {
		return nil, nil, err
	}

	fp := &database.Fingerprint{
		UserAgent:           getString(data, "userAgent"),
		Language:            getString(data, "language"),
		Platform:            getString(data, "platform"),
		CookieEnabled:       getBool(data, "cookieEnabled"),
		HardwareConcurrency: getInt(data, "hardwareConcurrency"),
		DeviceMemory:        getFloat(data, "deviceMemory"),
		MaxTouchPoints:      getInt(data, "maxTouchPoints"),
		CapturedAt:          int64(getFloat(data, "timestamp")),
	}

	screen := getObject(data, "screen")
	fp.ScreenWidth = getInt(screen, "width")
	fp.ScreenHeight = getInt(screen, "height")
	fp.ScreenColorDepth = getInt(screen, "colorDepth")

	// Timezone arrives either as {name, offset} or as a bare name string.
	switch tz := data["timezone"].(type) {
	case map[string]any:
		fp.TimezoneName = getString(tz, "name")
		fp.TimezoneOffset = getInt(tz, "offset")
	case string:
		fp.TimezoneName = tz
	}

	webgl := getObject(data, "webgl")
	fp.WebGLVendor = getString(webgl, "vendor")
	fp.WebGLRenderer = getString(webgl, "renderer")
	fp.WebGLUnmaskedVendor = getString(webgl, "unmaskedVendor")
	fp.WebGLUnmaskedRenderer = getString(webgl, "unmaskedRenderer")

	if audio, ok := data["audio"].(map[string]any); ok {
		fp.AudioFingerprint = getString(audio, "fingerprint")
	}

	network := getObject(data, "network")
	fp.NetworkDownlink = getFloat(network, "downlink")
	fp.NetworkEffectiveType = getString(network, "effectiveType")

	sets := &database.AttributeSets{
		Languages:       getStringSlice(data, "languages"),
		Fonts:           getStringSlice(data, "fonts"),
		Plugins:         getPlugins(data),
		WebGLExtensions: getStringSliceFrom(webgl, "extensions"),
		Storage:         getStorage(data),
		Protocols:       getStringSlice(data, "protocols"),
	}

	return fp, sets, nil
}

func decodePayload(payload []byte) (map[string]any, error) {
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	// Double-encoded payload: a JSON string containing another JSON document.
	if inner, ok := decoded.(string); ok {
		if err := json.Unmarshal([]byte(inner), &decoded); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
	}

	data, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: payload is %T, not an object", ErrMalformedPayload, decoded)
	}
	return data, nil
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getFloat(m map[string]any, key string) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}

func getInt(m map[string]any, key string) int {
	return int(getFloat(m, key))
}

func getBool(m map[string]any, key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}

func getObject(m map[string]any, key string) map[string]any {
	if v, ok := m[key].(map[string]any); ok {
		return v
	}
	return map[string]any{}
}

func getStringSlice(m map[string]any, key string) []string {
	return getStringSliceFrom(m, key)
}

// Duplicates are dropped: the child relations are sets, and repeated rows
// would inflate the join-based match counts.
func getStringSliceFrom(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok || s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func getPlugins(m map[string]any) []database.Plugin {
	raw, ok := m["plugins"].([]any)
	if !ok {
		return nil
	}
	seen := make(map[string]struct{}, len(raw))
	out := make([]database.Plugin, 0, len(raw))
	for _, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		plugin := database.Plugin{
			Name:        getString(obj, "name"),
			Filename:    getString(obj, "filename"),
			Description: getString(obj, "description"),
		}
		if plugin.Name == "" {
			continue
		}
		// Matching joins on the name, so the name is the set key.
		if _, dup := seen[plugin.Name]; dup {
			continue
		}
		seen[plugin.Name] = struct{}{}
		out = append(out, plugin)
	}
	return out
}

func getStorage(m map[string]any) []database.StorageCapability {
	raw, ok := m["storage"].(map[string]any)
	if !ok {
		return nil
	}
	out := make([]database.StorageCapability, 0, len(raw))
	for name, v := range raw {
		supported, _ := v.(bool)
		out = append(out, database.StorageCapability{Type: name, Supported: supported})
	}
	return out
}
