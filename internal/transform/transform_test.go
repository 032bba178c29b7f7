package transform

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/placesdata/pipeline"
)

func rawFixture() *pipeline.Table {
	return &pipeline.Table{
		Columns: []string{
			"Year", "LocationName", "Data Value", "TotalPopulation",
			"Geolocation", "Data_Value_Footnote_Symbol", "Data_Value_Footnote",
		},
		Rows: [][]string{
			{"2022", "Alamance", "23.1", "171415", "POINT (-79.399727 36.043819)", "", ""},
			{"2022", "", "19.4", "1648556", "POINT (-122.232427 37.767691)", "", ""},
			{"2022", "Albany", "", "314848", "POINT (-73.970579 42.588271)", "", ""},
			{"2022", "Alameda", "not_a_number", "1648556", "", "*", "missing"},
			{"2023", "Ada", "21.7", "501908", "POINT (-116.241105 43.451263)", "", ""},
			{"2023", "Ada", "21.7", "501908", "POINT (-116.241105 43.451263)", "", ""},
		},
	}
}

func TestClean(t *testing.T) {
	cleaned, err := Clean(rawFixture())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"year", "locationname", "data_value", "totalpopulation",
		"geolocation", "longitude", "latitude",
	}, cleaned.Columns)

	// Rows missing locationname or data_value are gone, the duplicate
	// Ada row collapses to one.
	require.Equal(t, 3, cleaned.NumRows())
	assert.Equal(t, "Alamance", cleaned.Rows[0][1])
	assert.Equal(t, "Alameda", cleaned.Rows[1][1])
	assert.Equal(t, "Ada", cleaned.Rows[2][1])

	// Unparseable numeric values are blanked, not dropped.
	assert.Equal(t, "", cleaned.Rows[1][2])
	// Empty geolocation becomes the Unknown placeholder.
	assert.Equal(t, "Unknown", cleaned.Rows[1][4])

	assert.Equal(t, "-79.399727", cleaned.Rows[0][5])
	assert.Equal(t, "36.043819", cleaned.Rows[0][6])
	assert.Equal(t, "", cleaned.Rows[1][5], "no coordinates in placeholder geolocation")
}

func TestCleanMissingCriticalColumns(t *testing.T) {
	_, err := Clean(&pipeline.Table{
		Columns: []string{"year", "category"},
		Rows:    [][]string{{"2022", "HEALTH"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locationname/data_value")
}

func TestAddDerived(t *testing.T) {
	table := &pipeline.Table{
		Columns: []string{"year", "category", "locationname", "data_value", "totalpopulation"},
		Rows: [][]string{
			{"2022", "HEALTH", "Alamance", "25", "1000"},
			{"2022", "HEALTH", "Alameda", "", "1000"},
			{"2023", "PREVENT", "Ada", "10", "0"},
		},
	}

	derived, err := AddDerived(table)
	require.NoError(t, err)

	assert.Equal(t, "percentage_of_population", derived.Columns[5])
	assert.Equal(t, "year_category", derived.Columns[6])

	assert.Equal(t, "2.5", derived.Rows[0][5])
	assert.Equal(t, "2022 - HEALTH", derived.Rows[0][6])
	// Missing value and zero population both yield no percentage.
	assert.Equal(t, "", derived.Rows[1][5])
	assert.Equal(t, "", derived.Rows[2][5])
	assert.Equal(t, "2023 - PREVENT", derived.Rows[2][6])
}

func TestLatestRawFile(t *testing.T) {
	dir := t.TempDir()
	older := filepath.Join(dir, "cdc_data_20260829_120000.csv")
	newer := filepath.Join(dir, "cdc_data_20260829_130000.csv")
	require.NoError(t, os.WriteFile(older, []byte("a\n1\n"), 0o600))
	require.NoError(t, os.WriteFile(newer, []byte("a\n2\n"), 0o600))
	require.NoError(t, os.Chtimes(older, time.Now().Add(-time.Hour), time.Now().Add(-time.Hour)))

	latest, err := LatestRawFile(dir, "cdc_data")
	require.NoError(t, err)
	assert.Equal(t, newer, latest)
}

func TestLatestRawFileMissing(t *testing.T) {
	_, err := LatestRawFile(t.TempDir(), "cdc_data")
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrConfiguration)
}

func TestSaveCleaned(t *testing.T) {
	dir := t.TempDir()
	table := &pipeline.Table{
		Columns: []string{"year", "data_value"},
		Rows:    [][]string{{"2022", "23.1"}},
	}
	now := func() time.Time {
		return time.Date(2026, 8, 29, 15, 0, 0, 0, time.UTC)
	}

	path, err := SaveCleaned(table, dir, now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cleaned_data_20260829_150000.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "year,data_value\n2022,23.1\n", string(data))
}
