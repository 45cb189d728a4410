package protocol

import (
	"crypto/rand"
	"encoding/json"
)

const alnum = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateID returns prefix followed by 12 random alphanumeric characters,
// the shape of the client-minted chart and quote session ids (cs_, qs_).
// Series ids (sds_<n>) come from seriesreg.NextSeriesID instead.
func GenerateID(prefix string) string {
	return prefix + randomAlnum(12)
}

func randomAlnum(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	out := make([]byte, n)
	for i, c := range b {
		out[i] = alnum[int(c)%len(alnum)]
	}
	return string(out)
}

// SymbolSpec builds the `={"symbol":...,"adjustment":...[,"session":...]}`
// literal TradingView expects as the symbolSpec parameter of resolve_symbol.
func SymbolSpec(symbol, adjustment, session string) string {
	spec := struct {
		Symbol     string `json:"symbol"`
		Adjustment string `json:"adjustment,omitempty"`
		Session    string `json:"session,omitempty"`
	}{Symbol: symbol, Adjustment: adjustment, Session: session}
	body, _ := json.Marshal(spec)
	return "=" + string(body)
}

// HandshakeSessionID extracts the server-assigned transport session id from
// the first non-heartbeat payload sent on connect, e.g. `{"session_id":"…"}`.
// Returns ok=false if the payload carries no session_id field.
func HandshakeSessionID(payload []byte) (id string, ok bool) {
	var handshake struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(payload, &handshake); err != nil {
		return "", false
	}
	if handshake.SessionID == "" {
		return "", false
	}
	return handshake.SessionID, true
}
