package staging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aitoolsdir/harvester/internal/harvest"
)

func TestWriteThenRead(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out", "tools.csv")
	w, err := NewFileWriter(path)
	require.NoError(t, err)

	require.NoError(t, w.Write(harvest.StagedRecord{
		Domain:      "alpha.io",
		Name:        "Alpha Writer",
		Description: "Drafts articles, with commas.",
		Website:     "https://alpha.io/",
		Category:    "Writing",
		Pricing:     "Freemium",
		Logo:        "https://alpha.io/favicon.ico",
		Source:      "dir",
	}))
	require.NoError(t, w.Write(harvest.StagedRecord{Domain: "beta.dev", Name: "Beta", Website: "https://beta.dev/"}))
	require.Equal(t, 2, w.Count())
	require.NoError(t, w.Close())

	rows, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "alpha.io", rows[0].Domain)
	require.Equal(t, "Drafts articles, with commas.", rows[0].Description)
	require.Equal(t, "beta.dev", rows[1].Domain)
	require.Empty(t, rows[1].Category)
}

func TestEmptyRunStillWritesHeader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tools.csv")
	w, err := NewFileWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, strings.Join(Columns, ",")+"\n", string(data))

	rows, err := ReadFile(path)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestReadLegacyHeaderVariant(t *testing.T) {
	t.Parallel()

	csvData := "Tool_Name,Tool_Logo,Description,Tool_Link\n" +
		"Alpha,https://alpha.io/logo.png,Writes things,https://alpha.io\n"
	rows, err := Read(strings.NewReader(csvData))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "Alpha", rows[0].Name)
	require.Equal(t, "https://alpha.io/logo.png", rows[0].Logo)
	require.Equal(t, "https://alpha.io", rows[0].Website)
	require.Empty(t, rows[0].Domain)
}

func TestReadPrefersMachineNames(t *testing.T) {
	t.Parallel()

	csvData := "tool_name,name,website\n" +
		"Legacy Label,Machine Name,https://tool.io\n"
	rows, err := Read(strings.NewReader(csvData))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "Machine Name", rows[0].Name)
}

func TestReadRaggedAndUnknownColumns(t *testing.T) {
	t.Parallel()

	csvData := "domain,name,website,internal_score\n" +
		"alpha.io,Alpha,https://alpha.io,42\n" +
		"beta.dev,Beta\n"
	rows, err := Read(strings.NewReader(csvData))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "https://alpha.io", rows[0].Website)
	require.Equal(t, "beta.dev", rows[1].Domain)
	require.Empty(t, rows[1].Website)
}

func TestReadEmptyInput(t *testing.T) {
	t.Parallel()

	rows, err := Read(strings.NewReader(""))
	require.NoError(t, err)
	require.Nil(t, rows)
}
