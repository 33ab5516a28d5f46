package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutAndGetSecretsBlobRoundTrips(t *testing.T) {
	st := newTestStore(t, nil)
	_, err := st.UpsertDocument("doc-1", "Treasury Sheet")
	require.NoError(t, err)

	_, _, ok, err := st.GetSecretsBlob("doc-1")
	require.NoError(t, err)
	require.False(t, ok, "no blob has been stored yet")

	require.NoError(t, st.PutSecretsBlob("doc-1", []byte("ciphertext-v1"), []byte("nonce-v1")))
	ciphertext, nonce, ok, err := st.GetSecretsBlob("doc-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("ciphertext-v1"), ciphertext)
	require.Equal(t, []byte("nonce-v1"), nonce)

	require.NoError(t, st.PutSecretsBlob("doc-1", []byte("ciphertext-v2"), []byte("nonce-v2")))
	ciphertext, _, ok, err = st.GetSecretsBlob("doc-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("ciphertext-v2"), ciphertext, "a second seal overwrites, it doesn't append")
}

func TestListDocumentIDsReflectsTrackedDocuments(t *testing.T) {
	st := newTestStore(t, nil)
	_, err := st.UpsertDocument("doc-1", "Treasury Sheet")
	require.NoError(t, err)
	_, err = st.UpsertDocument("doc-2", "Payroll Sheet")
	require.NoError(t, err)

	ids, err := st.ListDocumentIDs()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"doc-1", "doc-2"}, ids)
}
