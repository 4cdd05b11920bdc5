package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/parcel-sampler/internal/model"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	// Verify expected subcommands are registered.
	expected := []string{"extract", "analyze", "coords"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "parcel-sampler", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestExtractCommand_Flags(t *testing.T) {
	for _, name := range []string{"master", "sampled", "representative", "boundaries", "coord-cache", "plan", "seed", "target", "per-ri", "spatial", "output", "json"} {
		assert.NotNil(t, extractCmd.Flags().Lookup(name), "extract command should have --%s flag", name)
	}
}

func TestCoordsCommand_HasImport(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range coordsCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["import"])
}

func TestParseSampledFlags(t *testing.T) {
	got, err := parseSampledFlags([]string{"2023=a.xlsx", " 2024 = dir/b.xlsx "})
	require.NoError(t, err)
	assert.Equal(t, []sampledSource{{Year: 2023, Path: "a.xlsx"}, {Year: 2024, Path: "dir/b.xlsx"}}, got)

	_, err = parseSampledFlags([]string{"a.xlsx"})
	assert.Error(t, err)
	_, err = parseSampledFlags([]string{"twenty=a.xlsx"})
	assert.Error(t, err)
	_, err = parseSampledFlags([]string{"2024="})
	assert.Error(t, err)
}

func writeWorkbook(t *testing.T, dir, name string, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sh, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	for _, r := range rows {
		row := sh.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}
	path := filepath.Join(dir, name)
	require.NoError(t, f.Save(path))
	return path
}

func TestExtractCommand_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	header := []string{"경영체번호", "성명", "필지소재지", "본번", "면적"}
	master := [][]string{header}
	for _, ri := range []string{"신포리", "덕산리", "가운리"} {
		for i := 1; i <= 5; i++ {
			master = append(master, []string{
				fmt.Sprintf("F%s%d", ri, i), "농가",
				fmt.Sprintf("전라남도 나주시 왕곡면 %s %d", ri, i), fmt.Sprint(i), "500",
			})
		}
	}
	masterPath := writeWorkbook(t, dir, "master.xlsx", master)
	sampledPath := writeWorkbook(t, dir, "2024.xlsx", [][]string{
		header,
		{"F신포리1", "농가", "전라남도 나주시 왕곡면 신포리 1", "1", "500"},
	})
	jsonPath := filepath.Join(dir, "out.json")
	xlsxPath := filepath.Join(dir, "out.xlsx")

	rootCmd.SetArgs([]string{
		"extract",
		"--master", masterPath,
		"--sampled", "2024=" + sampledPath,
		"--target", "6", "--per-ri", "2", "--seed", "1",
		"--json", jsonPath, "--output", xlsxPath,
	})
	require.NoError(t, rootCmd.Execute())

	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var res model.ExtractionResult
	require.NoError(t, json.Unmarshal(data, &res))

	assert.Equal(t, uint32(1), res.Seed)
	assert.Len(t, res.SelectedParcels, 6)
	assert.Equal(t, 0, res.Shortfall)
	assert.True(t, res.Validation.Valid)
	perRi := map[string]int{}
	for _, p := range res.SelectedParcels {
		assert.NotEqual(t, "F신포리1|1", p.Key())
		perRi[p.Ri]++
	}
	assert.Equal(t, map[string]int{"신포리": 2, "덕산리": 2, "가운리": 2}, perRi)

	_, err = os.Stat(xlsxPath)
	assert.NoError(t, err)
}
