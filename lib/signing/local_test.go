package signing

import (
	"context"
	"strings"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateLocalSigner(t *testing.T) {
	signer, err := GenerateLocalSigner()
	require.NoError(t, err)

	pubkey, err := signer.PublicKey(context.Background())
	require.NoError(t, err)
	assert.Len(t, pubkey, 64)

	npub, err := signer.Npub()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(npub, "npub1"))
}

func TestNewLocalSignerAcceptsNsec(t *testing.T) {
	generated, err := GenerateLocalSigner()
	require.NoError(t, err)

	nsec, err := nip19.EncodePrivateKey(generated.SecretKey())
	require.NoError(t, err)

	fromNsec, err := NewLocalSigner(nsec)
	require.NoError(t, err)

	hexPubkey, _ := generated.PublicKey(context.Background())
	nsecPubkey, _ := fromNsec.PublicKey(context.Background())
	assert.Equal(t, hexPubkey, nsecPubkey)
}

func TestNewLocalSignerRejectsGarbage(t *testing.T) {
	_, err := NewLocalSigner("nsec1notakey")
	assert.Error(t, err)

	_, err = NewLocalSigner("zz")
	assert.Error(t, err)
}

func TestSignEventProducesValidSignature(t *testing.T) {
	signer, err := GenerateLocalSigner()
	require.NoError(t, err)

	ev := &nostr.Event{
		Kind:      7,
		Content:   "+",
		CreatedAt: 1000,
		Tags:      nostr.Tags{{"e", "abc123"}},
	}
	require.NoError(t, signer.SignEvent(context.Background(), ev))

	pubkey, _ := signer.PublicKey(context.Background())
	assert.Equal(t, pubkey, ev.PubKey)
	assert.NotEmpty(t, ev.ID)

	ok, err := ev.CheckSignature()
	require.NoError(t, err)
	assert.True(t, ok)
}
