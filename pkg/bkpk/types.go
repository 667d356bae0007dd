package bkpk

import (
	"time"
)

// ============================================================================
// Authorization Types
// ============================================================================

// ResponseType selects the authorization grant returned by Authorize.
type ResponseType string

const (
	// ResponseTypeToken returns an access token directly (implicit style).
	ResponseTypeToken ResponseType = "token"

	// ResponseTypeCode returns an authorization code bound to a CSRF state.
	ResponseTypeCode ResponseType = "code"
)

// Valid reports whether r is one of the supported response types.
func (r ResponseType) Valid() bool {
	return r == ResponseTypeToken || r == ResponseTypeCode
}

// Protocol selects how the popup reports completion.
type Protocol string

const (
	// ProtocolRedirect waits for the provider to redirect the popup back to
	// the host origin with OAuth query parameters.
	ProtocolRedirect Protocol = "redirect"

	// ProtocolMessage waits for the hosted authorization page to post a bus
	// message to the opener.
	ProtocolMessage Protocol = "message"
)

// AuthorizationResponse is the single result of a successful Authorize call.
// Exactly one of Token or Code is set, matching Type.
type AuthorizationResponse struct {
	Type  ResponseType   `json:"type"`
	Token *TokenResponse `json:"token,omitempty"`
	Code  *CodeResponse  `json:"code,omitempty"`
}

// TokenResponse is the result of the token flow.
type TokenResponse struct {
	// Token is the bearer access token for the Bkpk API
	Token string `json:"token"`

	// ExpiresAt is the absolute expiry of Token
	ExpiresAt time.Time `json:"expiresAt"`
}

// CodeResponse is the result of the code flow. State must be compared with
// the state the caller expects before exchanging Code.
type CodeResponse struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

// ============================================================================
// Avatar Types
// ============================================================================

// Avatar describes a 3D avatar asset.
type Avatar struct {
	// Source is the download URL of the asset
	Source string `json:"source"`

	// Type is one of humanoid, humanoid-male, humanoid-female
	Type string `json:"type"`

	// FileFormat is one of glb, fbx, vrm
	FileFormat string `json:"fileFormat"`

	Reference     string         `json:"reference,omitempty"`
	BodyType      string         `json:"bodyType,omitempty"` // full-body or half-body
	BoneStructure *BoneStructure `json:"boneStructure,omitempty"`
}

// BoneStructure names notable bones of an avatar rig.
type BoneStructure struct {
	Head string `json:"head,omitempty"`
}

// BackpackItem is a single item in a user's backpack.
type BackpackItem struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Source   string `json:"source"`
	Category string `json:"category"`
	Metadata Avatar `json:"metadata"`
}

// BackpackOwnerResponse is returned by GET /backpack/owner.
type BackpackOwnerResponse struct {
	ID            string         `json:"id"`
	Owner         string         `json:"owner"`
	BackpackItems []BackpackItem `json:"backpackItems"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}
