package crypto

import (
	"bytes"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabstir/llm-session-go/pkg/errors"
)

func TestHexRoundTrip(t *testing.T) {
	b := []byte{0x00, 0x01, 0xab, 0xff}
	s := BytesToHex(b)
	assert.Equal(t, "0001abff", s)

	decoded, err := HexToBytes(s)
	require.NoError(t, err)
	assert.Equal(t, b, decoded)
}

func TestHexToBytesPrefixTolerance(t *testing.T) {
	withPrefix, err := HexToBytes("0xdeadbeef")
	require.NoError(t, err)
	without, err := HexToBytes("deadbeef")
	require.NoError(t, err)
	assert.Equal(t, without, withPrefix)
}

func TestHexToBytesRejectsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"odd length", "abc"},
		{"non hex", "zzzz"},
		{"odd with prefix", "0xabc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := HexToBytes(tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidInput))
		})
	}
}

func TestHexToBytesExact(t *testing.T) {
	_, err := HexToBytesExact("abcd", 2)
	require.NoError(t, err)

	_, err = HexToBytesExact("abcd", 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestSharedSecretAgreement(t *testing.T) {
	a, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	b, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	ab := SharedSecret(a, b.PubKey())
	ba := SharedSecret(b, a.PubKey())
	assert.Equal(t, ab, ba)
	assert.Len(t, ab, SharedSecretSize)
}

func TestDeriveKeyDeterministic(t *testing.T) {
	salt := bytes.Repeat([]byte{0x01}, SaltSize)
	ikm := bytes.Repeat([]byte{0x02}, 32)

	k1, err := DeriveKey(salt, ikm, nil)
	require.NoError(t, err)
	k2, err := DeriveKey(salt, ikm, nil)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, KeySize)

	// A context label changes the derived key.
	k3, err := DeriveKey(salt, ikm, []byte("label"))
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)

	// Empty info is equivalent to nil info.
	k4, err := DeriveKey(salt, ikm, []byte{})
	require.NoError(t, err)
	assert.Equal(t, k1, k4)
}

func TestAEADRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x07}, KeySize)
	nonce := bytes.Repeat([]byte{0x08}, NonceSize)
	plaintext := []byte("the quick brown fox")
	aad := []byte(`{"message_index":0}`)

	ct, err := AEADSeal(key, nonce, plaintext, aad)
	require.NoError(t, err)
	assert.Len(t, ct, len(plaintext)+TagSize)

	pt, err := AEADOpen(key, nonce, ct, aad)
	require.NoError(t, err)
	assert.Equal(t, plaintext, pt)
}

func TestAEADOpenRejectsTampering(t *testing.T) {
	key := bytes.Repeat([]byte{0x07}, KeySize)
	nonce := bytes.Repeat([]byte{0x08}, NonceSize)
	ct, err := AEADSeal(key, nonce, []byte("payload"), []byte("aad"))
	require.NoError(t, err)

	t.Run("flipped ciphertext byte", func(t *testing.T) {
		tampered := append([]byte(nil), ct...)
		tampered[0] ^= 0x01
		_, err := AEADOpen(key, nonce, tampered, []byte("aad"))
		assert.True(t, errors.Is(err, errors.ErrDecryptionFailed))
	})

	t.Run("wrong aad", func(t *testing.T) {
		_, err := AEADOpen(key, nonce, ct, []byte("other"))
		assert.True(t, errors.Is(err, errors.ErrDecryptionFailed))
	})

	t.Run("wrong key", func(t *testing.T) {
		other := bytes.Repeat([]byte{0x09}, KeySize)
		_, err := AEADOpen(other, nonce, ct, []byte("aad"))
		assert.True(t, errors.Is(err, errors.ErrDecryptionFailed))
	})

	t.Run("truncated ciphertext", func(t *testing.T) {
		_, err := AEADOpen(key, nonce, ct[:TagSize-1], []byte("aad"))
		assert.True(t, errors.Is(err, errors.ErrDecryptionFailed))
	})
}

func TestTranscriptOrdering(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	eph := priv.PubKey().SerializeCompressed()
	recipient := eph
	salt := bytes.Repeat([]byte{0x01}, SaltSize)
	nonce := bytes.Repeat([]byte{0x02}, NonceSize)

	tr, err := Transcript(eph, recipient, salt, nonce, nil, nil)
	require.NoError(t, err)

	want := append(append(append(append([]byte{}, eph...), recipient...), salt...), nonce...)
	assert.Equal(t, want, tr)

	// Empty strings and nil slices produce the same transcript.
	tr2, err := Transcript(eph, recipient, salt, nonce, []byte{}, []byte{})
	require.NoError(t, err)
	assert.Equal(t, tr, tr2)

	// info and aad extend the transcript in order.
	tr3, err := Transcript(eph, recipient, salt, nonce, []byte("i"), []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, append(append(append([]byte{}, tr...), 'i'), 'a'), tr3)
}

func TestTranscriptRejectsBadLengths(t *testing.T) {
	ok := bytes.Repeat([]byte{0x01}, CompressedPubKeySize)
	salt := bytes.Repeat([]byte{0x02}, SaltSize)
	nonce := bytes.Repeat([]byte{0x03}, NonceSize)

	_, err := Transcript(ok[:32], ok, salt, nonce, nil, nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	_, err = Transcript(ok, ok, salt[:8], nonce, nil, nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	_, err = Transcript(ok, ok, salt, nonce[:12], nil, nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	big := make([]byte, MaxTranscriptVarField+1)
	_, err = Transcript(ok, ok, salt, nonce, big, nil)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestSignRecoverVerify(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	var digest [32]byte
	copy(digest[:], ethcrypto.Keccak256([]byte("transcript bytes")))

	sig, recid, err := SignDigestCompact(priv, digest)
	require.NoError(t, err)
	assert.LessOrEqual(t, recid, byte(3))

	recovered, err := RecoverPubKey(sig[:], recid, digest)
	require.NoError(t, err)
	assert.True(t, recovered.IsEqual(priv.PubKey()))

	assert.True(t, VerifyDigest(sig[:], digest, recovered))

	// A different digest must not verify.
	var other [32]byte
	copy(other[:], ethcrypto.Keccak256([]byte("other")))
	assert.False(t, VerifyDigest(sig[:], other, recovered))
}

func TestRecoverPubKeyRejectsBadInput(t *testing.T) {
	var digest [32]byte
	_, err := RecoverPubKey(make([]byte, 63), 0, digest)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	_, err = RecoverPubKey(make([]byte, 64), 4, digest)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestAddressFromPubKeyMatchesGeth(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	want := ethcrypto.PubkeyToAddress(*priv.PubKey().ToECDSA())
	got := AddressFromPubKey(priv.PubKey())
	assert.Equal(t, want, got)

	// EIP-55 mixed-case form round-trips through go-ethereum's parser.
	hex := ChecksumAddress(got)
	assert.Equal(t, got, commonFromHex(t, hex))
}

func TestRecoverSignerEndToEnd(t *testing.T) {
	signer, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	eph, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	recipient, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	ephPub := eph.PubKey().SerializeCompressed()
	recipientPub := recipient.PubKey().SerializeCompressed()
	salt := bytes.Repeat([]byte{0x05}, SaltSize)
	nonce := bytes.Repeat([]byte{0x06}, NonceSize)
	aad := []byte("aad")

	digest, err := TranscriptDigest(ephPub, recipientPub, salt, nonce, nil, aad)
	require.NoError(t, err)
	sig, recid, err := SignDigestCompact(signer, digest)
	require.NoError(t, err)

	addr, err := RecoverSigner(ephPub, recipientPub, salt, nonce, nil, aad, sig[:], recid)
	require.NoError(t, err)
	assert.Equal(t, AddressFromPubKey(signer.PubKey()), addr)

	// Flipping a signature byte fails recovery or verification.
	bad := append([]byte(nil), sig[:]...)
	bad[10] ^= 0xff
	_, err = RecoverSigner(ephPub, recipientPub, salt, nonce, nil, aad, bad, recid)
	require.Error(t, err)

	// A different transcript recovers a different signer address.
	otherAAD := []byte("tampered")
	addr2, err := RecoverSigner(ephPub, recipientPub, salt, nonce, nil, otherAAD, sig[:], recid)
	if err == nil {
		assert.NotEqual(t, addr, addr2)
	}
}

func commonFromHex(t *testing.T, s string) common.Address {
	t.Helper()
	require.True(t, common.IsHexAddress(s))
	return common.HexToAddress(s)
}

func FuzzHexRoundTrip(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{0x00})
	f.Add([]byte{0xde, 0xad, 0xbe, 0xef})
	f.Fuzz(func(t *testing.T, data []byte) {
		decoded, err := HexToBytes(BytesToHex(data))
		if err != nil {
			t.Fatalf("round trip failed: %v", err)
		}
		if !bytes.Equal(decoded, data) {
			t.Fatalf("round trip mismatch")
		}
	})
}
