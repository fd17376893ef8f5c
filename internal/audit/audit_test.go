package audit_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/baca2/kolejka-broker/internal/audit"
)

func TestOpenRecordAndClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	log, err := audit.Open(path)
	require.NoError(t, err)
	defer log.Close()

	log.Record("sub-1", "/submit/1", "/pkg/1", "received")
	log.Record("sub-1", "/submit/1", "/pkg/1", "done")

	require.NoError(t, log.Close())
}

func TestNilLogIsANoOp(t *testing.T) {
	var log *audit.Log
	require.NotPanics(t, func() {
		log.Record("sub-1", "/submit/1", "/pkg/1", "received")
	})
	require.NoError(t, log.Close())
}
