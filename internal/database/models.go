package database

import (
	"time"
)

// Fingerprint is the parent device-fingerprint record, one per account.
// A new capture fully replaces the previous one together with its child sets.
type Fingerprint struct {
	AccountID             string    `db:"account_id" json:"accountId"`
	UserAgent             string    `db:"user_agent" json:"userAgent"`
	Language              string    `db:"language" json:"language"`
	Platform              string    `db:"platform" json:"platform"`
	CookieEnabled         bool      `db:"cookie_enabled" json:"cookieEnabled"`
	HardwareConcurrency   int       `db:"hardware_concurrency" json:"hardwareConcurrency"`
	DeviceMemory          float64   `db:"device_memory" json:"deviceMemory"`
	MaxTouchPoints        int       `db:"max_touch_points" json:"maxTouchPoints"`
	ScreenWidth           int       `db:"screen_width" json:"screenWidth"`
	ScreenHeight          int       `db:"screen_height" json:"screenHeight"`
	ScreenColorDepth      int       `db:"screen_color_depth" json:"screenColorDepth"`
	TimezoneName          string    `db:"timezone_name" json:"timezoneName"`
	TimezoneOffset        int       `db:"timezone_offset" json:"timezoneOffset"`
	WebGLVendor           string    `db:"webgl_vendor" json:"webglVendor"`
	WebGLRenderer         string    `db:"webgl_renderer" json:"webglRenderer"`
	WebGLUnmaskedVendor   string    `db:"webgl_unmasked_vendor" json:"webglUnmaskedVendor"`
	WebGLUnmaskedRenderer string    `db:"webgl_unmasked_renderer" json:"webglUnmaskedRenderer"`
	AudioFingerprint      string    `db:"audio_fingerprint" json:"audioFingerprint"`
	NetworkDownlink       float64   `db:"network_downlink" json:"networkDownlink"`
	NetworkEffectiveType  string    `db:"network_effective_type" json:"networkEffectiveType"`
	PayloadHash           string    `db:"payload_hash" json:"payloadHash"`
	CapturedAt            int64     `db:"captured_at" json:"capturedAt"`
	CreatedAt             time.Time `db:"created_at" json:"createdAt"`
}

// Plugin is one browser plugin descriptor belonging to a fingerprint.
type Plugin struct {
	Name        string `db:"plugin_name" json:"name"`
	Filename    string `db:"plugin_filename" json:"filename"`
	Description string `db:"plugin_description" json:"description"`
}

// StorageCapability is one storage-backend support flag (localStorage,
// sessionStorage, indexedDB, ...) belonging to a fingerprint.
type StorageCapability struct {
	Type      string `db:"storage_type" json:"type"`
	Supported bool   `db:"supported" json:"supported"`
}

// AttributeSets holds the six multi-valued child relations of a fingerprint.
type AttributeSets struct {
	Languages       []string
	Fonts           []string
	Plugins         []Plugin
	WebGLExtensions []string
	Storage         []StorageCapability
	Protocols       []string
}

// ActionKind is the recorded response to a detection result.
type ActionKind string

const (
	ActionReject    ActionKind = "reject"
	ActionChallenge ActionKind = "challenge"
	ActionEscalate  ActionKind = "escalate"
	ActionApprove   ActionKind = "approve"
)

// VerificationAction is the persisted audit record for one policy decision.
// Challenge and escalate actions start unresolved and transition to resolved
// exactly once, via a completed challenge or an explicit staff action.
type VerificationAction struct {
	ID        int64      `db:"action_id" json:"actionId"`
	AccountID string     `db:"account_id" json:"accountId"`
	Kind      ActionKind `db:"kind" json:"kind"`
	Details   string     `db:"details" json:"details"`
	Resolved  bool       `db:"resolved" json:"resolved"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
}

// Challenge is an outstanding argon2 proof-of-work verification challenge
// bound to an unresolved challenge action.
type Challenge struct {
	ID         string     `db:"id" json:"id"`
	ActionID   int64      `db:"action_id" json:"actionId"`
	AccountID  string     `db:"account_id" json:"accountId"`
	Salt       string     `db:"salt" json:"salt"`
	Difficulty uint32     `db:"difficulty" json:"difficulty"`
	Memory     uint32     `db:"memory" json:"memory"`
	Threads    uint8      `db:"threads" json:"threads"`
	KeyLen     uint32     `db:"key_len" json:"keyLen"`
	Target     string     `db:"target" json:"target"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
	ExpiresAt  time.Time  `db:"expires_at" json:"expiresAt"`
	Solved     bool       `db:"solved" json:"solved"`
	SolvedAt   *time.Time `db:"solved_at" json:"solvedAt,omitempty"`
}

// Solution records one submitted answer to a challenge, valid or not.
type Solution struct {
	ID          string    `db:"id" json:"id"`
	ChallengeID string    `db:"challenge_id" json:"challengeId"`
	Nonce       string    `db:"nonce" json:"nonce"`
	Hash        string    `db:"hash" json:"hash"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	Valid       bool      `db:"valid" json:"valid"`
}

// FingerprintSummary is a display-oriented digest of a stored fingerprint.
type FingerprintSummary struct {
	AccountID        string    `json:"accountId"`
	Platform         string    `json:"platform"`
	Browser          string    `json:"browser"`
	ScreenResolution string    `json:"screenResolution"`
	HardwareCores    int       `json:"hardwareCores"`
	DeviceMemory     float64   `json:"deviceMemory"`
	Timezone         string    `json:"timezone"`
	LanguagesCount   int       `json:"languagesCount"`
	FontsCount       int       `json:"fontsCount"`
	PluginsCount     int       `json:"pluginsCount"`
	CreatedAt        time.Time `json:"createdAt"`
}
