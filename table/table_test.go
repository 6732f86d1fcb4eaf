package table

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	input := "town,block,storey_range,floor_area_sqm,latitude\n" +
		"ANG MO KIO,406,10 TO 12,44,1.3624\n" +
		"BEDOK,123A,,67.5,\n"

	frame, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"town", "block", "storey_range", "floor_area_sqm", "latitude"}, frame.Columns)
	require.Len(t, frame.Rows, 2)

	first := frame.Rows[0]
	assert.Equal(t, "ANG MO KIO", first["town"])
	assert.Equal(t, 406.0, first["block"])
	assert.Equal(t, "10 TO 12", first["storey_range"])

	second := frame.Rows[1]
	assert.Equal(t, "123A", second["block"])
	assert.Nil(t, second["storey_range"])
	assert.Nil(t, second["latitude"])

	_, ok := second.Float("latitude")
	assert.False(t, ok)
}

func TestRecordAccessors(t *testing.T) {
	rec := Record{
		"a": 1.5,
		"b": " 2.25 ",
		"c": "abc",
		"d": math.NaN(),
		"e": 406.0,
	}

	v, ok := rec.Float("a")
	assert.True(t, ok)
	assert.Equal(t, 1.5, v)

	v, ok = rec.Float("b")
	assert.True(t, ok)
	assert.Equal(t, 2.25, v)

	_, ok = rec.Float("c")
	assert.False(t, ok)

	_, ok = rec.Float("d")
	assert.False(t, ok)

	s, ok := rec.String("e")
	assert.True(t, ok)
	assert.Equal(t, "406", s)

	_, ok = rec.String("missing")
	assert.False(t, ok)
}

func TestFloatRejectsInfinity(t *testing.T) {
	rec := Record{
		"a": "Inf",
		"b": "-Infinity",
		"c": math.Inf(1),
		"d": float32(math.Inf(-1)),
	}
	for _, key := range rec.Keys() {
		_, ok := rec.Float(key)
		assert.False(t, ok, key)
	}
}

func TestCoordinatesInRange(t *testing.T) {
	assert.True(t, Record{"latitude": 1.3, "longitude": "103.8"}.HasCoordinates("latitude", "longitude"))
	assert.True(t, Record{"latitude": -90.0, "longitude": 180.0}.HasCoordinates("latitude", "longitude"))
	assert.False(t, Record{"latitude": 90.5, "longitude": 103.8}.HasCoordinates("latitude", "longitude"))
	assert.False(t, Record{"latitude": 1.3, "longitude": -180.1}.HasCoordinates("latitude", "longitude"))
	assert.False(t, Record{"latitude": "Inf", "longitude": 103.8}.HasCoordinates("latitude", "longitude"))

	_, ok := Record{"lon": 200.0}.Longitude("lon")
	assert.False(t, ok)
}

func TestWriteCSVRoundTrip(t *testing.T) {
	frame := &Frame{
		Columns: []string{"id", "value", "label"},
		Rows: []Record{
			{"id": 1.0, "value": 0.5, "label": "x"},
			{"id": 2.0, "label": "y,z"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, frame))
	assert.Equal(t, "id,value,label\n1,0.5,x\n2,,\"y,z\"\n", buf.String())

	back, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, frame.Columns, back.Columns)
	assert.Equal(t, "y,z", back.Rows[1]["label"])
	assert.Nil(t, back.Rows[1]["value"])
}

func TestCloneIsIndependent(t *testing.T) {
	rec := Record{"a": 1.0}
	clone := rec.Clone()
	clone["b"] = 2.0

	_, ok := rec["b"]
	assert.False(t, ok)
}

func TestAddColumn(t *testing.T) {
	f := &Frame{Columns: []string{"a"}}
	f.AddColumn("b")
	f.AddColumn("a")
	assert.Equal(t, []string{"a", "b"}, f.Columns)
}
