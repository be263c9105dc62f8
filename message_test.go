package eventflit

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEnvelope(t *testing.T) {
	env, err := parseEnvelope([]byte(`{"event":"new-message","channel":"chat","data":"{\"text\":\"hi\"}"}`))
	require.NoError(t, err)
	require.Equal(t, "new-message", env.Event)
	require.Equal(t, "chat", env.Channel)
	require.Equal(t, `{"text":"hi"}`, env.payloadString())
}

func TestParseEnvelope_Errors(t *testing.T) {
	_, err := parseEnvelope([]byte(`not json`))
	require.Error(t, err)

	_, err = parseEnvelope([]byte(`{"channel":"a","data":"x"}`))
	require.Error(t, err)
}

func TestEnvelope_PayloadString(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  string
	}{
		{"string", `{"event":"e","data":"plain"}`, "plain"},
		{"inline object", `{"event":"e","data":{"a":1}}`, `{"a":1}`},
		{"missing", `{"event":"e"}`, ""},
		{"null", `{"event":"e","data":null}`, ""},
		{"number", `{"event":"e","data":42}`, "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := parseEnvelope([]byte(tt.frame))
			require.NoError(t, err)
			require.Equal(t, tt.want, env.payloadString())
		})
	}
}

func TestDecodeData(t *testing.T) {
	require.Equal(t, map[string]any{"a": float64(1)}, decodeData(`{"a":1}`, true))
	require.Equal(t, []any{"x"}, decodeData(`["x"]`, true))
	require.Equal(t, "plain text", decodeData("plain text", true))
	require.Equal(t, `{"broken"`, decodeData(`{"broken"`, true))
	require.Equal(t, `{"a":1}`, decodeData(`{"a":1}`, false))
	require.Equal(t, "42", decodeData("42", true))
}

func TestMarshalFrame(t *testing.T) {
	frame, err := marshalFrame(eventSubscribe, "", subscribeData{Channel: "private-a", Auth: "k:sig"})
	require.NoError(t, err)
	require.JSONEq(t, `{"event":"eventflit:subscribe","data":{"channel":"private-a","auth":"k:sig"}}`, string(frame))

	frame, err = marshalFrame("client-typing", "private-a", map[string]string{"user": "u1"})
	require.NoError(t, err)
	require.JSONEq(t, `{"event":"client-typing","channel":"private-a","data":{"user":"u1"}}`, string(frame))

	frame, err = marshalFrame(eventPing, "", nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"event":"eventflit:ping","data":{}}`, string(frame))
}

func TestMarshalFrame_Unencodable(t *testing.T) {
	_, err := marshalFrame("client-x", "private-a", make(chan int))
	require.Error(t, err)
	var syntaxErr *json.UnsupportedTypeError
	require.ErrorAs(t, err, &syntaxErr)
}
