package keys

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func testProvider(t *testing.T, fill byte) *Ed25519Provider {
	t.Helper()
	p, err := Ed25519ProviderFromSeed(bytes.Repeat([]byte{fill}, ed25519.SeedSize))
	require.NoError(t, err)
	return p
}

func TestMultikeyRoundTrip(t *testing.T) {
	p := testProvider(t, 1)

	mk := p.VerificationKeyMultibase()
	require.True(t, strings.HasPrefix(mk, "z6Mk"), mk)

	pub, err := PublicFromMultikey(mk)
	require.NoError(t, err)
	require.Equal(t, p.PublicKey(), pub)

	_, err = PublicFromMultikey("zQ3shokFTS3brHcDQrn82RUDfCZESWL1ZdCEJwekUDPQiYBme")
	require.Error(t, err)

	_, err = PublicFromMultikey("not-multibase")
	require.Error(t, err)
}

func TestVerificationMethodID(t *testing.T) {
	p := testProvider(t, 2)
	mk := p.VerificationKeyMultibase()

	vm := VerificationMethodID(mk)
	require.Equal(t, "did:key:"+mk+"#"+mk, vm)

	got, err := MultikeyFromVerificationMethod(vm)
	require.NoError(t, err)
	require.Equal(t, mk, got)

	got, err = MultikeyFromVerificationMethod(DIDKey(mk))
	require.NoError(t, err)
	require.Equal(t, mk, got)

	_, err = MultikeyFromVerificationMethod("did:web:example.com#key-1")
	require.Error(t, err)

	_, err = MultikeyFromVerificationMethod(DIDKey(mk) + "#other")
	require.Error(t, err)
}

func TestProviderSignAndMembership(t *testing.T) {
	p := testProvider(t, 3)
	other := testProvider(t, 4)

	sig, err := p.Sign(context.Background(), []byte("msg"))
	require.NoError(t, err)
	require.True(t, ed25519.Verify(p.PublicKey(), []byte("msg"), sig))

	require.True(t, p.IsKeyInSet([]string{other.VerificationKeyMultibase(), p.VerificationKeyMultibase()}))
	require.False(t, p.IsKeyInSet([]string{other.VerificationKeyMultibase()}))
	require.False(t, p.IsKeyInSet(nil))
}

func TestWriteAndLoadSigningKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "signing.pem")
	p := testProvider(t, 5)

	require.NoError(t, WriteSigningKey(path, p, false))

	st, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), st.Mode().Perm())

	require.Error(t, WriteSigningKey(path, p, false))
	require.NoError(t, WriteSigningKey(path, p, true))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	blk, _ := pem.Decode(b)
	require.NotNil(t, blk)
	require.Equal(t, "PRIVATE KEY", blk.Type)
	raw, err := x509.ParsePKCS8PrivateKey(blk.Bytes)
	require.NoError(t, err)
	require.Equal(t, p.priv, raw)

	b, err = os.ReadFile(path + ".pub")
	require.NoError(t, err)
	blk, _ = pem.Decode(b)
	require.NotNil(t, blk)
	require.Equal(t, "PUBLIC KEY", blk.Type)
	rawPub, err := x509.ParsePKIXPublicKey(blk.Bytes)
	require.NoError(t, err)
	require.Equal(t, p.PublicKey(), rawPub)

	loaded, err := LoadSigningKey(path)
	require.NoError(t, err)
	require.Equal(t, p.VerificationKeyMultibase(), loaded.VerificationKeyMultibase())

	mk, err := LoadMultikey(path + ".pub")
	require.NoError(t, err)
	require.Equal(t, p.VerificationKeyMultibase(), mk)
}

func TestWriteAndLoadJWK(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "signing.jwk")
	p := testProvider(t, 6)

	require.NoError(t, WriteJWK(path, p, "kid-1", false))

	loaded, err := LoadSigningKey(path)
	require.NoError(t, err)
	require.Equal(t, p.VerificationKeyMultibase(), loaded.VerificationKeyMultibase())

	vk, err := LoadVerificationKey("A1", path)
	require.NoError(t, err)
	require.Equal(t, "A1", vk.Name)
	require.Equal(t, "OKP", vk.PublicKeyJWK["kty"])
	require.Equal(t, "Ed25519", vk.PublicKeyJWK["crv"])
	require.NotContains(t, vk.PublicKeyJWK, "d")
	require.NotContains(t, vk.PublicKeyJWK, "kid")

	vk2, err := ParseVerificationKeySpec("A2," + path)
	require.NoError(t, err)
	require.Equal(t, "A2", vk2.Name)

	_, err = ParseVerificationKeySpec(path)
	require.Error(t, err)
}

func TestLoadMultikeyPlainText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "next.txt")
	p := testProvider(t, 7)

	require.NoError(t, os.WriteFile(path, []byte(p.VerificationKeyMultibase()+"\n"), 0600))

	mk, err := LoadMultikey(path)
	require.NoError(t, err)
	require.Equal(t, p.VerificationKeyMultibase(), mk)
}

func TestLoadOpenSSHKeys(t *testing.T) {
	dir := t.TempDir()
	p := testProvider(t, 8)

	blk, err := ssh.MarshalPrivateKey(p.priv, "")
	require.NoError(t, err)
	privPath := filepath.Join(dir, "id_ed25519")
	require.NoError(t, os.WriteFile(privPath, pem.EncodeToMemory(blk), 0600))

	loaded, err := LoadSigningKey(privPath)
	require.NoError(t, err)
	require.Equal(t, p.VerificationKeyMultibase(), loaded.VerificationKeyMultibase())

	spk, err := ssh.NewPublicKey(p.PublicKey())
	require.NoError(t, err)
	pubPath := privPath + ".pub"
	require.NoError(t, os.WriteFile(pubPath, ssh.MarshalAuthorizedKey(spk), 0644))

	mk, err := LoadMultikey(pubPath)
	require.NoError(t, err)
	require.Equal(t, p.VerificationKeyMultibase(), mk)

	_, err = LoadSigningKey(pubPath)
	require.Error(t, err)
}
