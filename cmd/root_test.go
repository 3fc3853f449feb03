package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ortelius/errata-finder/database"
	"github.com/ortelius/errata-finder/model"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// seedSQLite writes a small package database with foo-1.0-1 and its fixed upgrade foo-2.0-1
func seedSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "errata.db")
	ctx := context.Background()

	store, err := database.OpenSQLite(ctx, path, 0, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	for _, stmt := range []string{
		`INSERT INTO rhnpackagename (id, name) VALUES (1, 'foo')`,
		`INSERT INTO rhnpackagearch (id, label) VALUES (1, 'x86_64')`,
		`INSERT INTO rhnpackageevr (id, epoch, version, "release") VALUES (1, NULL, '1.0', '1'), (2, NULL, '2.0', '1')`,
		`INSERT INTO rhnpackage (id, name_id, evr_id, package_arch_id) VALUES (1, 1, 1, 1), (2, 1, 2, 1)`,
		`INSERT INTO rhnchannel (id, label) VALUES (100, 'c1-label'), (200, 'c2-label')`,
		`INSERT INTO rhnchannelpackage (channel_id, package_id) VALUES (100, 1), (200, 2)`,
		`INSERT INTO rhnchannelfamily (id, label) VALUES (10, 'F')`,
		`INSERT INTO rhnchannelfamilymembers (channel_family_id, channel_id) VALUES (10, 100), (10, 200)`,
		`INSERT INTO rhnerrata (id, advisory_name, advisory_type) VALUES (1000, 'RHSA-2020:0001', 'Security Advisory')`,
		`INSERT INTO rhnerratapackage (errata_id, package_id) VALUES (1000, 2)`,
	} {
		require.NoError(t, store.Exec(ctx, stmt))
	}
	return path
}

func TestMissingPackagePrintsUsage(t *testing.T) {
	out, err := execute(t)
	assert.ErrorIs(t, err, errMissingPackage)
	assert.Contains(t, out, "Missing rpm_name. Exiting.")
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "--dbname")
}

func TestUnknownOutputFormat(t *testing.T) {
	_, err := execute(t, "--output", "yaml", "foo-1.0-1.x86_64.rpm")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestLocalLookup(t *testing.T) {
	path := seedSQLite(t)

	out, err := execute(t, "--driver", "sqlite", "--sqlite-path", path, "foo-1.0-1.x86_64.rpm")
	require.NoError(t, err)
	assert.Equal(t, "RHSA-2020:0001 2 2.0-1 c2-label\n", out)

	out, err = execute(t, "--driver", "sqlite", "--sqlite-path", path, "foo-2.0-1.x86_64.rpm")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestLocalLookupJSON(t *testing.T) {
	path := seedSQLite(t)

	out, err := execute(t, "--driver", "sqlite", "--sqlite-path", path, "-o", "json", "foo-1.0-1.x86_64.rpm")
	require.NoError(t, err)

	var records []model.AdvisoryRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "RHSA-2020:0001", records[0].AdvisoryName)
	assert.Equal(t, "c2-label", records[0].Channel())
}

func TestPackageFile(t *testing.T) {
	path := seedSQLite(t)
	list := filepath.Join(t.TempDir(), "packages.txt")
	require.NoError(t, os.WriteFile(list, []byte("foo-1.0-1.x86_64.rpm\n\nfoo-2.0-1.x86_64.rpm\n"), 0o600))

	out, err := execute(t, "--driver", "sqlite", "--sqlite-path", path, "--pkgfile", list, "-o", "json")
	require.NoError(t, err)

	var results []packageResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "foo-1.0-1.x86_64.rpm", results[0].Package)
	assert.Len(t, results[0].Advisories, 1)
	assert.Equal(t, "foo-2.0-1.x86_64.rpm", results[1].Package)
	assert.Empty(t, results[1].Advisories)
}

func TestWriteResultsTable(t *testing.T) {
	label := "c2-label"
	results := []packageResult{{
		Package: "foo-1.0-1.x86_64.rpm",
		Advisories: []model.AdvisoryRecord{
			{AdvisoryName: "RHSA-2020:0001", PackageID: 2, EVR: "2.0-1", ChannelLabel: &label},
			{AdvisoryName: "RHSA-2020:0002", PackageID: 3, EVR: "1:2.1-1"},
		},
	}}

	var out bytes.Buffer
	require.NoError(t, writeResults(&out, OutputTable, results))
	assert.Contains(t, out.String(), "ADVISORY")
	assert.Contains(t, out.String(), "RHSA-2020:0001")
	assert.Contains(t, out.String(), "c2-label")
	assert.Contains(t, out.String(), "1:2.1-1")

	out.Reset()
	require.NoError(t, writeResults(&out, OutputText, results))
	assert.Equal(t, "RHSA-2020:0001 2 2.0-1 c2-label\nRHSA-2020:0002 3 1:2.1-1 -\n", out.String())
}

func TestRemoteLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/errata" || r.URL.Query().Get("pkg") != "foo-1.0-1.x86_64.rpm" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("Package not specified.\n"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"advisory_name":"RHSA-2020:0001","package_id":2,"evr":"2.0-1","channel_label":null}]`))
	}))
	defer srv.Close()

	out, err := execute(t, "--server", srv.URL, "foo-1.0-1.x86_64.rpm")
	require.NoError(t, err)
	assert.Equal(t, "RHSA-2020:0001 2 2.0-1 -\n", out)

	_, err = execute(t, "--server", srv.URL, "bar-1.0-1.x86_64.rpm")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "status 400"), err.Error())
}
