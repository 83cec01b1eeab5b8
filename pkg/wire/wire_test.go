package wire

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabstir/llm-session-go/pkg/crypto"
	"github.com/fabstir/llm-session-go/pkg/errors"
)

func validEnvelope() SealedEnvelope {
	return SealedEnvelope{
		EphPubHex:     strings.Repeat("02", 1) + strings.Repeat("ab", 32),
		SaltHex:       strings.Repeat("01", crypto.SaltSize),
		NonceHex:      strings.Repeat("02", crypto.NonceSize),
		CiphertextHex: strings.Repeat("03", crypto.TagSize+4),
		SignatureHex:  strings.Repeat("04", crypto.SignatureSize),
		Recid:         1,
		Alg:           Alg,
		Info:          "",
		AADHex:        "",
	}
}

func TestSealedEnvelopeValidate(t *testing.T) {
	env := validEnvelope()
	require.NoError(t, env.Validate())
}

func TestSealedEnvelopeValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SealedEnvelope)
	}{
		{"short eph pub", func(e *SealedEnvelope) { e.EphPubHex = "abcd" }},
		{"short salt", func(e *SealedEnvelope) { e.SaltHex = "00" }},
		{"short nonce", func(e *SealedEnvelope) { e.NonceHex = "00" }},
		{"ciphertext under tag", func(e *SealedEnvelope) { e.CiphertextHex = "0000" }},
		{"short signature", func(e *SealedEnvelope) { e.SignatureHex = "00" }},
		{"recid out of range", func(e *SealedEnvelope) { e.Recid = 4 }},
		{"negative recid", func(e *SealedEnvelope) { e.Recid = -1 }},
		{"unknown alg", func(e *SealedEnvelope) { e.Alg = "aes-gcm" }},
		{"odd info", func(e *SealedEnvelope) { e.Info = "abc" }},
		{"odd aad", func(e *SealedEnvelope) { e.AADHex = "abc" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := validEnvelope()
			tt.mutate(&env)
			err := env.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidInput))
		})
	}
}

func TestValidateEnvelopeJSONRejectsLegacyNames(t *testing.T) {
	env := validEnvelope()
	raw, err := json.Marshal(&env)
	require.NoError(t, err)
	require.NoError(t, ValidateEnvelopeJSON(raw))

	// Replace signatureHex with the historical sigHex spelling.
	legacy := strings.Replace(string(raw), `"signatureHex"`, `"sigHex"`, 1)
	err = ValidateEnvelopeJSON([]byte(legacy))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signatureHex")
}

func TestBigIntSmallValuesAreNumbers(t *testing.T) {
	raw, err := json.Marshal(NewBigInt(2000))
	require.NoError(t, err)
	assert.Equal(t, "2000", string(raw))

	var back BigInt
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, int64(2000), back.Int64())
}

func TestBigIntLargeValuesCarrySentinel(t *testing.T) {
	big, err := NewBigIntFromString("999999999999999999")
	require.NoError(t, err)

	raw, err := json.Marshal(big)
	require.NoError(t, err)
	assert.Equal(t, `"999999999999999999n"`, string(raw))

	var back BigInt
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, "999999999999999999", back.String())
}

func TestBigIntUnmarshalForms(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`123`, "123"},
		{`"123"`, "123"},
		{`"123n"`, "123"},
		{`"999999999999999999n"`, "999999999999999999"},
		{`-7`, "-7"},
	}
	for _, tt := range tests {
		var b BigInt
		require.NoError(t, json.Unmarshal([]byte(tt.input), &b), tt.input)
		assert.Equal(t, tt.want, b.String(), tt.input)
	}

	var b BigInt
	assert.Error(t, json.Unmarshal([]byte(`"12.5"`), &b))
	assert.Error(t, json.Unmarshal([]byte(`null`), &b))
}

func TestIntStringMarshalsAsString(t *testing.T) {
	raw, err := json.Marshal(NewIntString(456))
	require.NoError(t, err)
	assert.Equal(t, `"456"`, string(raw))

	var back IntString
	require.NoError(t, json.Unmarshal([]byte(`"999999999999999999n"`), &back))
	assert.Equal(t, "999999999999999999", back.String())
}

func TestHandshakePayloadValidate(t *testing.T) {
	payload := HandshakePayload{
		JobID:         NewIntString(456),
		ModelName:     "m",
		SessionKey:    strings.Repeat("00", crypto.KeySize),
		PricePerToken: NewBigInt(2000),
	}
	require.NoError(t, payload.Validate())

	bad := payload
	bad.SessionKey = "abcd"
	assert.Error(t, bad.Validate())

	bad = payload
	bad.JobID = nil
	assert.Error(t, bad.Validate())

	bad = payload
	bad.RecoveryPublicKey = "00"
	assert.Error(t, bad.Validate())
}

func TestSessionInitMessageSchema(t *testing.T) {
	msg := SessionInitMessage{
		Type:      TypeEncryptedSessionInit,
		ChainID:   "1",
		SessionID: "77",
		JobID:     "456",
		Payload:   validEnvelope(),
	}
	require.NoError(t, msg.Validate())

	// All three identifiers are required stringified integers.
	for name, mutate := range map[string]func(*SessionInitMessage){
		"missing chain_id":   func(m *SessionInitMessage) { m.ChainID = "" },
		"missing session_id": func(m *SessionInitMessage) { m.SessionID = "" },
		"missing job_id":     func(m *SessionInitMessage) { m.JobID = "" },
		"non-numeric id":     func(m *SessionInitMessage) { m.SessionID = "abc" },
		"wrong type":         func(m *SessionInitMessage) { m.Type = "session_init" },
	} {
		t.Run(name, func(t *testing.T) {
			bad := msg
			mutate(&bad)
			assert.Error(t, bad.Validate())
		})
	}
}

func TestParseEnvelope(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"ack", `{"type":"ack","session_id":"7"}`, TypeAck},
		{"ok", `{"type":"ok","session_id":"7"}`, TypeOK},
		{"error", `{"type":"error","code":"EncryptionNotSupported","message":"no"}`, TypeError},
		{"chunk", `{"type":"stream_chunk","content":"A"}`, TypeStreamChunk},
		{"encrypted chunk", `{"type":"encrypted_chunk","ciphertextHex":"00","nonceHex":"00","aadHex":"00"}`, TypeEncryptedChunk},
		{"cancel", `{"type":"stream_cancel","reason":"user"}`, TypeStreamCancel},
		{"end", `{"type":"stream_end","token_count":12}`, TypeStreamEnd},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseEnvelope([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.MessageType())
		})
	}
}

func TestParseEnvelopeRejectsUnknownType(t *testing.T) {
	_, err := ParseEnvelope([]byte(`{"type":"mystery"}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	_, err = ParseEnvelope([]byte(`not json`))
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestErrorMessageErr(t *testing.T) {
	m := &ErrorMessage{Type: TypeError, Code: "DecryptionFailed", Message: "tag mismatch"}
	assert.True(t, errors.Is(m.Err(), errors.ErrDecryptionFailed))

	m = &ErrorMessage{Type: TypeError, Code: "EncryptionNotSupported", Message: "plaintext only"}
	assert.True(t, errors.Is(m.Err(), errors.ErrEncryptionNotSupported))
}

func FuzzParseEnvelope(f *testing.F) {
	f.Add([]byte(`{"type":"ack","session_id":"1"}`))
	f.Add([]byte(`{"type":"stream_chunk","content":"x"}`))
	f.Add([]byte(`{}`))
	f.Fuzz(func(t *testing.T, data []byte) {
		// Must never panic; errors are fine.
		msg, err := ParseEnvelope(data)
		if err == nil && msg == nil {
			t.Fatal("nil message without error")
		}
	})
}
