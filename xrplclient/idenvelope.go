package xrplclient

import (
	"encoding/json"
	"strings"
)

// idEnvelope is the structured id every outgoing request is rewritten to
// carry. The server reflects ids verbatim, so this is also the shape we
// look for on the way back in.
type idEnvelope struct {
	Internal uint64          `json:"internal"`
	User     json.RawMessage `json:"user,omitempty"`
}

// rewriteID extracts req["id"] (if any), replaces it with the internal
// envelope, and returns the original value (nil if the caller didn't set
// one) so it can be restored on the return path.
func rewriteID(req map[string]interface{}, internalID uint64) (userID json.RawMessage, err error) {
	if raw, ok := req["id"]; ok {
		userID, err = json.Marshal(raw)
		if err != nil {
			return nil, err
		}
	}
	env := idEnvelope{Internal: internalID, User: userID}
	envBytes, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	var envAny interface{}
	if err := json.Unmarshal(envBytes, &envAny); err != nil {
		return nil, err
	}
	req["id"] = envAny
	return userID, nil
}

// setEnvelopeID sets req["id"] directly to the envelope {internal, user},
// for callers (the supervisor's internal probes) that already know the
// user id they want to carry rather than rewriting an existing field.
func setEnvelopeID(req map[string]interface{}, internalID uint64, userID json.RawMessage) error {
	env := idEnvelope{Internal: internalID, User: userID}
	envBytes, err := json.Marshal(env)
	if err != nil {
		return err
	}
	var envAny interface{}
	if err := json.Unmarshal(envBytes, &envAny); err != nil {
		return err
	}
	req["id"] = envAny
	return nil
}

// parseEnvelope inspects a decoded inbound id value and reports whether it
// is one of our envelopes, along with the internal id and the original
// (possibly absent) user id it carries.
func parseEnvelope(idValue interface{}) (internalID uint64, userID json.RawMessage, ok bool) {
	m, isMap := idValue.(map[string]interface{})
	if !isMap {
		return 0, nil, false
	}
	iv, has := m["internal"]
	if !has {
		return 0, nil, false
	}
	f, isNum := iv.(float64)
	if !isNum {
		return 0, nil, false
	}
	if uv, has := m["user"]; has {
		userID, _ = json.Marshal(uv)
	}
	return uint64(f), userID, true
}

// restoreUserID mutates m["id"] in place: sets it to the decoded original
// user id, or removes the key entirely if the caller never supplied one.
func restoreUserID(m map[string]interface{}, userID json.RawMessage) {
	if len(userID) == 0 {
		delete(m, "id")
		return
	}
	var v interface{}
	if err := json.Unmarshal(userID, &v); err != nil {
		delete(m, "id")
		return
	}
	m["id"] = v
}

// probeKindOf reports whether a call's original (pre-rewrite) user id marks
// it as one of the client's own internal probes.
func probeKindOf(userID json.RawMessage) probeKind {
	if len(userID) == 0 {
		return probeNone
	}
	var s string
	if err := json.Unmarshal(userID, &s); err != nil {
		return probeNone
	}
	switch {
	case s == internalSubscriptionID:
		return probeLedgerSubscribe
	case strings.HasPrefix(s, internalServerInfoID+"@"):
		return probeServerInfo
	default:
		return probeNone
	}
}
