package pkgmanager_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/baca2/kolejka-broker/internal/broker/pkgmanager"
)

func TestRefresherDownloadsBothBinaries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("binary-content-" + r.URL.Path))
	}))
	defer srv.Close()

	dest := t.TempDir()
	r := &pkgmanager.Refresher{
		ClientBinaryURL: srv.URL + "/client",
		JudgeBinaryURL:  srv.URL + "/judge",
		DestDir:         dest,
	}

	require.NoError(t, r.Refresh(context.Background()))

	clientContent, err := os.ReadFile(filepath.Join(dest, "kolejka-client"))
	require.NoError(t, err)
	require.Contains(t, string(clientContent), "/client")

	judgeContent, err := os.ReadFile(filepath.Join(dest, "kolejka-judge"))
	require.NoError(t, err)
	require.Contains(t, string(judgeContent), "/judge")
}

func TestRefresherPropagatesNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	r := &pkgmanager.Refresher{
		ClientBinaryURL: srv.URL,
		JudgeBinaryURL:  srv.URL,
		DestDir:         t.TempDir(),
	}
	require.Error(t, r.Refresh(context.Background()))
}
