package exchange

// Envelope is the normalized response every adapter call returns.
type Envelope struct {
	OK      bool             `json:"ok"`
	Code    string           `json:"code,omitempty"`
	Msg     string           `json:"msg,omitempty"`
	Raw     any              `json:"raw,omitempty"`
	Records []map[string]any `json:"records"`
}

var successCodes = map[string]bool{"": true, "0": true, "00000": true}

// NewEnvelope normalizes a decoded JSON body. The response code is read from
// code, status or errorCode and success means an empty, "0" or "00000" code.
func NewEnvelope(raw any) Envelope {
	env := Envelope{Raw: raw}
	body, ok := ToMap(raw)
	if !ok {
		env.OK = true
		env.Records = Maps(raw)
		return env
	}
	env.Code = String(body, "code", "status", "errorCode")
	env.Msg = String(body, "msg", "message", "errorMsg", "detail")
	env.OK = successCodes[env.Code]
	if data, present := body["data"]; present {
		env.Records = records(data)
	} else {
		env.Records = records(body)
	}
	return env
}

// OKEnvelope wraps records produced locally, for example by a simulator.
func OKEnvelope(raw any, recs ...map[string]any) Envelope {
	if recs == nil {
		recs = []map[string]any{}
	}
	return Envelope{OK: true, Code: "00000", Msg: "success", Raw: raw, Records: recs}
}

func records(data any) []map[string]any {
	switch v := data.(type) {
	case []any:
		return Maps(v)
	case map[string]any:
		var out []map[string]any
		found := false
		for _, key := range []string{"entrustedList", "list", "orderList", "fillList", "assetPositions"} {
			if nested, ok := v[key]; ok {
				found = true
				out = append(out, Maps(nested)...)
			}
		}
		if found {
			return out
		}
		return []map[string]any{v}
	}
	return []map[string]any{}
}

// First returns the first record or an empty map.
func (e Envelope) First() map[string]any {
	if len(e.Records) == 0 {
		return map[string]any{}
	}
	return e.Records[0]
}

// RawMap returns the raw body when it is a JSON object.
func (e Envelope) RawMap() map[string]any {
	if m, ok := ToMap(e.Raw); ok {
		return m
	}
	return map[string]any{"data": e.Raw}
}
