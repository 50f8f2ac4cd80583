package report_test

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/algohub/algohub/internal/model"
	"github.com/algohub/algohub/internal/report"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestBuildEmpty(t *testing.T) {
	t.Parallel()
	doc, err := report.Build(t.Context(), filepath.Join(t.TempDir(), "missing"), "")
	require.NoError(t, err)

	b, err := json.Marshal(doc)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"nmap_subnets": [],
		"ad_enumeration": [],
		"file_analysis": {"manspider": []},
		"screenshots": []
	}`, string(b))
}

func TestBuild(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	write(t, filepath.Join(root, "10_0_0_0_24", model.FileNmapJSON),
		`[{"ip":"10.0.0.5","hostname":"","status":"up","ports":[{"port":445,"protocol":"tcp","state":"open","service":"microsoft-ds","product":"","version":"","extrainfo":"","banner":""}]}]`)
	write(t, filepath.Join(root, "10_0_1_0_24", model.FileNmapJSON), `[]`)
	write(t, filepath.Join(root, "10_0_2_0_24", model.FileNmapJSON), `{"hosts": []}`)

	dc := filepath.Join(root, "ldeep", "dc01.corp.local")
	write(t, filepath.Join(dc, "users.json"), `[{"sAMAccountName":"bob","distinguishedName":"CN=bob,CN=Users,DC=corp,DC=local"}]`)
	write(t, filepath.Join(dc, "trusts.json"), `[]`)
	write(t, filepath.Join(dc, "pkis.json"), `not json`)
	write(t, filepath.Join(dc, model.FileLdapResults), `{"metadata":{"scanner":"ldeep"}}`)
	write(t, filepath.Join(root, "certipy", "dc01.corp.local", "corp_local"+model.CertipyResultSuffix), `{"Certificate Authorities":{}}`)
	write(t, filepath.Join(root, "certipy", "dc01.corp.local", "notes.txt"), `x`)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "ldeep", "10.0.0.11"), 0o755))

	write(t, filepath.Join(root, "manspider", "10.0.0.0_24", model.FileManspiderFiles), `[{"ip":"10.0.0.5","files":[{"path":"C$\\a.kdbx","size":"1KB"}]}]`)
	write(t, filepath.Join(root, "manspider", "10.0.0.0_24", model.FileManspiderCreds), `[]`)
	write(t, filepath.Join(root, "manspider", "10.0.1.0_24", model.FileManspiderCreds), `[]`)

	doc, err := report.Build(t.Context(), root, filepath.Join(root, "missing.sqlite3"))
	require.NoError(t, err)

	require.Len(t, doc.NmapSubnets, 1)
	require.Equal(t, "10_0_0_0_24", doc.NmapSubnets[0].ID)
	require.Equal(t, "Subnet: 10.0.0.0/24", doc.NmapSubnets[0].Title)
	require.Equal(t, uint16(445), doc.NmapSubnets[0].Hosts[0].Ports[0].Port)

	require.Len(t, doc.ADEnumeration, 2)
	bare := doc.ADEnumeration[0]
	require.Equal(t, "10.0.0.11", bare.DCName)
	require.Equal(t, "Unknown", bare.Domain)
	require.Nil(t, bare.Certipy)
	require.Empty(t, bare.Ldeep)

	full := doc.ADEnumeration[1]
	require.Equal(t, "dc01.corp.local", full.DCName)
	require.Equal(t, "corp.local", full.Domain)
	files := make([]string, 0, len(full.Ldeep))
	for _, f := range full.Ldeep {
		files = append(files, f.File)
	}
	require.Equal(t, []string{"users.json", model.FileLdapResults}, files)
	require.NotNil(t, full.Certipy)
	require.Equal(t, "Certipy", full.Certipy.Title)
	require.Equal(t, "corp_local_Certipy.json", full.Certipy.File)

	require.Len(t, doc.FileAnalysis.Manspider, 1)
	b, err := json.Marshal(doc.FileAnalysis.Manspider[0])
	require.NoError(t, err)
	require.JSONEq(t, `{"subnet":"10.0.0.0/24","files":[{"ip":"10.0.0.5","files":[{"path":"C$\\a.kdbx","size":"1KB"}]}]}`, string(b))

	require.Empty(t, doc.Screenshots)
}

func TestScreenshots(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "gowitness.sqlite3")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.ExecContext(t.Context(), `CREATE TABLE results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL,
		response_code INTEGER,
		title TEXT,
		filename TEXT
	)`)
	require.NoError(t, err)
	_, err = db.ExecContext(t.Context(),
		`INSERT INTO results (url, response_code, title, filename) VALUES (?,?,?,?), (?,?,?,?)`,
		"http://10.0.0.5", 200, "IIS Windows Server", "http-10.0.0.5-80.jpeg",
		"https://10.0.0.7", nil, nil, nil,
	)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	shots, err := report.Screenshots(t.Context(), path)
	require.NoError(t, err)
	require.Equal(t, []report.Screenshot{
		{URL: "http://10.0.0.5", ResponseCode: 200, Title: "IIS Windows Server", Filename: "http-10.0.0.5-80.jpeg"},
		{URL: "https://10.0.0.7"},
	}, shots)

	doc, err := report.Build(t.Context(), t.TempDir(), path)
	require.NoError(t, err)
	require.Len(t, doc.Screenshots, 2)

	// not a gowitness database
	other := filepath.Join(t.TempDir(), "other.sqlite3")
	db, err = sql.Open("sqlite", other)
	require.NoError(t, err)
	_, err = db.ExecContext(t.Context(), `CREATE TABLE x (id INTEGER)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	_, err = report.Screenshots(t.Context(), other)
	require.Error(t, err)
	doc, err = report.Build(t.Context(), t.TempDir(), other)
	require.NoError(t, err)
	require.Empty(t, doc.Screenshots)
}
