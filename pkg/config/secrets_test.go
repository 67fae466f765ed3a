package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	dir := t.TempDir()
	secrets := map[string]string{
		"ANTHROPIC_API_KEY": "sk-ant-test",
		"OPENAI_API_KEY":    "sk-test",
	}
	require.NoError(t, EncryptSecretsFile(dir, "correct horse", secrets))
	assert.True(t, SecretsFileExists(dir))

	got, err := DecryptSecretsFile(dir, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, secrets, got)
}

func TestDecryptWrongPassword(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EncryptSecretsFile(dir, "right", map[string]string{"K": "v"}))

	_, err := DecryptSecretsFile(dir, "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decrypt")
}

func TestDecryptFixesPermissions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EncryptSecretsFile(dir, "pw", map[string]string{"K": "v"}))

	path := filepath.Join(dir, secretsDirName, secretsFileName)
	require.NoError(t, os.Chmod(path, 0o644))

	_, err := DecryptSecretsFile(dir, "pw")
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestGetSecretPrecedence(t *testing.T) {
	SetDecryptedSecrets(map[string]string{"NEGOTIATOR_TEST_SECRET": "from-file"})
	t.Setenv("NEGOTIATOR_TEST_SECRET", "from-env")

	value, err := GetSecret("NEGOTIATOR_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-file", value)

	SetDecryptedSecrets(nil)
	value, err = GetSecret("NEGOTIATOR_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-env", value)
}

func TestGetSecretMissing(t *testing.T) {
	SetDecryptedSecrets(nil)
	_, err := GetSecret("NEGOTIATOR_DEFINITELY_MISSING")
	assert.Error(t, err)
}

func TestGetAPIKey(t *testing.T) {
	SetDecryptedSecrets(map[string]string{"OPENAI_API_KEY": "sk-test"})
	defer SetDecryptedSecrets(nil)

	key, err := GetAPIKey("openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", key)

	key, err = GetAPIKey("ollama")
	require.NoError(t, err)
	assert.Empty(t, key)

	_, err = GetAPIKey("unknown-provider")
	assert.Error(t, err)
}
