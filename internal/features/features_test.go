package features

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/cardiorisk/internal/domain"
)

func sampleRecord() domain.RawRecord {
	return domain.RawRecord{
		Age:            50,
		Sex:            domain.SexMale,
		ChestPainType:  domain.ChestPainNonAnginal,
		RestingBP:      150,
		Cholesterol:    250,
		FastingBS:      1,
		RestingECG:     domain.RestingECGST,
		MaxHR:          125,
		ExerciseAngina: domain.ExerciseAnginaYes,
		Oldpeak:        1.5,
		STSlope:        domain.STSlopeFlat,
	}
}

func newTransformer(t *testing.T) *Transformer {
	t.Helper()
	enc, err := NewEncoder(DefaultEncodingTable())
	require.NoError(t, err)
	schema, err := NewSchema(DefaultSchemaNames())
	require.NoError(t, err)
	return NewTransformer(enc, schema)
}

func TestEngineer(t *testing.T) {
	row := domain.EncodedRow{}
	require.NoError(t, Engineer(sampleRecord(), row))

	assert.Equal(t, 50.0, row[domain.FieldAge])
	assert.Equal(t, 1.0, row[domain.FieldFastingBS])
	assert.InDelta(t, 2.25, row[ColOldpeakSquared], 1e-12)
	assert.InDelta(t, 2.5, row[ColMaxHRAgeRatio], 1e-12)
	assert.InDelta(t, 5.0, row[ColCholesterolAgeRatio], 1e-12)
	assert.InDelta(t, 3.0, row[ColRestingBPAgeRatio], 1e-12)
	assert.Len(t, row, len(EngineeredColumns()))
}

func TestEngineerRejectsNonPositiveAge(t *testing.T) {
	for _, age := range []float64{0, -3} {
		rec := sampleRecord()
		rec.Age = age

		err := Engineer(rec, domain.EncodedRow{})
		var ce *domain.ComputationError
		require.True(t, errors.As(err, &ce), "age %v", age)
		assert.Equal(t, ColMaxHRAgeRatio, ce.Feature)
	}
}

func TestEngineerRejectsOverflow(t *testing.T) {
	rec := sampleRecord()
	rec.Oldpeak = math.MaxFloat64

	err := Engineer(rec, domain.EncodedRow{})
	var ce *domain.ComputationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ColOldpeakSquared, ce.Feature)
}

func TestEncoder(t *testing.T) {
	enc, err := NewEncoder(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultEncodingVersion, enc.Version())

	t.Run("observed category set", func(t *testing.T) {
		row := domain.EncodedRow{}
		require.NoError(t, enc.Encode(sampleRecord(), row))

		assert.Equal(t, 1.0, row["Sex_M"])
		assert.Equal(t, 0.0, row["ChestPainType_ATA"])
		assert.Equal(t, 1.0, row["ChestPainType_NAP"])
		assert.Equal(t, 0.0, row["ChestPainType_TA"])
		assert.Equal(t, 1.0, row["RestingECG_ST"])
		assert.Equal(t, 1.0, row["ExerciseAngina_Y"])
		assert.Equal(t, 1.0, row["ST_Slope_Flat"])
		assert.Equal(t, 0.0, row["ST_Slope_Up"])
		assert.Len(t, row, len(enc.Columns()))
	})

	t.Run("reference categories encode to zeros", func(t *testing.T) {
		rec := domain.RawRecord{
			Sex:            domain.SexFemale,
			ChestPainType:  domain.ChestPainAsymptomatic,
			RestingECG:     domain.RestingECGLVH,
			ExerciseAngina: domain.ExerciseAnginaNo,
			STSlope:        domain.STSlopeDown,
		}
		row := domain.EncodedRow{}
		require.NoError(t, enc.Encode(rec, row))

		require.Len(t, row, 9)
		for col, v := range row {
			assert.Zero(t, v, col)
		}
	})

	t.Run("absent field emits no columns", func(t *testing.T) {
		rec := sampleRecord()
		rec.RestingECG = ""
		row := domain.EncodedRow{}
		require.NoError(t, enc.Encode(rec, row))

		_, ok := row["RestingECG_Normal"]
		assert.False(t, ok)
	})

	t.Run("unknown category", func(t *testing.T) {
		rec := sampleRecord()
		rec.ChestPainType = "XYZ"

		err := enc.Encode(rec, domain.EncodedRow{})
		var ve *domain.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, domain.FieldChestPainType, ve.Field)
		assert.Contains(t, ve.Message, "XYZ")
	})
}

func TestEncodingTableValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*EncodingTable)
	}{
		{"missing version", func(tb *EncodingTable) { tb.Version = "" }},
		{"unsorted categories", func(tb *EncodingTable) { tb.Fields[1].Categories = []string{"ATA", "ASY", "NAP", "TA"} }},
		{"wrong reference", func(tb *EncodingTable) { tb.Fields[0].Reference = "M" }},
		{"duplicate field", func(tb *EncodingTable) { tb.Fields[1] = tb.Fields[0] }},
		{"unknown field", func(tb *EncodingTable) { tb.Fields[0].Field = "BloodType" }},
		{"single category", func(tb *EncodingTable) { tb.Fields[0].Categories = []string{"F"} }},
	}

	require.NoError(t, DefaultEncodingTable().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := DefaultEncodingTable()
			tt.mutate(table)
			assert.Error(t, table.Validate())
		})
	}
}

func TestLoadEncodingTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "encoding.yaml")
	doc := `version: heart-v2
fields:
  - field: Sex
    categories: [F, M]
  - field: ST_Slope
    categories: [Down, Flat, Up]
    reference: Down
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	table, err := LoadEncodingTable(path)
	require.NoError(t, err)
	assert.Equal(t, "heart-v2", table.Version)
	assert.Equal(t, "F", table.Fields[0].Reference)
	assert.Equal(t, []string{"Sex_M", "ST_Slope_Flat", "ST_Slope_Up"}, table.Columns())

	_, err = LoadEncodingTable(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = ParseEncodingTable([]byte("version: x\nfields:\n  - field: Sex\n    categories: [M, F]\n"))
	assert.Error(t, err)
}

func TestSchema(t *testing.T) {
	_, err := NewSchema(nil)
	assert.Error(t, err)
	_, err = NewSchema([]string{"Age", "Age"})
	assert.Error(t, err)
	_, err = NewSchema([]string{"Age", ""})
	assert.Error(t, err)

	schema, err := NewSchema(DefaultSchemaNames())
	require.NoError(t, err)
	assert.Equal(t, 19, schema.Len())
	assert.True(t, schema.Contains("ST_Slope_Up"))
	assert.False(t, schema.Contains("ST_Slope_Down"))
}

func TestSchemaAlign(t *testing.T) {
	schema, err := NewSchema([]string{"b", "a", "c"})
	require.NoError(t, err)

	vec := schema.Align(domain.EncodedRow{"a": 1, "extra": 9, "b": 2})
	assert.Equal(t, []string{"b", "a", "c"}, vec.Names)
	assert.Equal(t, []float64{2, 1, 0}, vec.Values)

	empty := schema.Align(domain.EncodedRow{})
	assert.Equal(t, []float64{0, 0, 0}, empty.Values)
}

func TestSchemaCoverage(t *testing.T) {
	enc, _ := NewEncoder(nil)

	full, _ := NewSchema(DefaultSchemaNames())
	assert.Empty(t, full.Coverage(enc))

	withExtra, _ := NewSchema(append(DefaultSchemaNames(), "ChestPainType_XX"))
	assert.Equal(t, []string{"ChestPainType_XX"}, withExtra.Coverage(enc))
}

func TestTransformSchemaInvariance(t *testing.T) {
	tr := newTransformer(t)
	schemaNames := tr.Schema().Names()

	records := []domain.RawRecord{sampleRecord()}
	partial := sampleRecord()
	partial.Sex = ""
	partial.STSlope = ""
	records = append(records, partial)

	for _, rec := range records {
		vec, err := tr.Transform(rec)
		require.NoError(t, err)
		assert.Equal(t, schemaNames, vec.Names)
		assert.Len(t, vec.Values, len(schemaNames))
		for _, v := range vec.Values {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
		}
	}
}

func TestTransformReferenceRoundTrip(t *testing.T) {
	tr := newTransformer(t)
	rec := domain.RawRecord{
		Age:            40,
		Sex:            domain.SexFemale,
		ChestPainType:  domain.ChestPainAsymptomatic,
		RestingBP:      120,
		Cholesterol:    180,
		RestingECG:     domain.RestingECGLVH,
		MaxHR:          160,
		ExerciseAngina: domain.ExerciseAnginaNo,
		STSlope:        domain.STSlopeDown,
	}

	vec, err := tr.Transform(rec)
	require.NoError(t, err)

	indicators := map[string]bool{}
	for _, c := range tr.Encoder().Columns() {
		indicators[c] = true
	}
	for i, name := range vec.Names {
		if indicators[name] {
			assert.Zero(t, vec.Values[i], name)
		}
	}
}
