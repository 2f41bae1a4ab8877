package broker

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const stateAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// StateLength is the number of random characters in a state token. At 62
// symbols per position a 32-character token cannot be guessed within the
// 5-minute validity window.
const StateLength = 32

// stateSeparator joins optional caller redirect metadata to the random
// state inside the state query parameter.
const stateSeparator = "::"

// GenerateState returns a cryptographically-secure random alphanumeric
// state token of StateLength characters.
func GenerateState() (string, error) {
	buf := make([]byte, StateLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("state: failed to generate token: %w", err)
	}
	out := make([]byte, StateLength)
	for i, b := range buf {
		out[i] = stateAlphabet[int(b)%len(stateAlphabet)]
	}
	return string(out), nil
}

// RedirectMeta is caller-supplied metadata carried through the consent
// round trip inside the state parameter.
type RedirectMeta struct {
	RedirectTo string `json:"redirectTo,omitempty"`
}

func (m RedirectMeta) empty() bool { return m.RedirectTo == "" }

// WrapState encodes meta as base64(JSON) and prepends it to the random
// state with stateSeparator. Empty metadata leaves the state bare.
func WrapState(state string, meta RedirectMeta) string {
	if meta.empty() {
		return state
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return state
	}
	return base64.StdEncoding.EncodeToString(b) + stateSeparator + state
}

// SplitState separates the random state token from any wrapped metadata.
// Malformed metadata is ignored rather than failing the callback; the
// random token alone decides validity.
func SplitState(param string) (string, RedirectMeta) {
	idx := strings.LastIndex(param, stateSeparator)
	if idx < 0 {
		return param, RedirectMeta{}
	}
	state := param[idx+len(stateSeparator):]
	var meta RedirectMeta
	if b, err := base64.StdEncoding.DecodeString(param[:idx]); err == nil {
		_ = json.Unmarshal(b, &meta)
	}
	return state, meta
}
