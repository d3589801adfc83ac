package booking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHourlyMarks(t *testing.T) {
	tests := []struct {
		name  string
		dept  Department
		marks []string
	}{
		{"morning window", Department{StartTime: "09:00", EndTime: "12:00"}, []string{"09:00", "10:00", "11:00", "12:00"}},
		{"single mark", Department{StartTime: "14:00", EndTime: "14:00"}, []string{"14:00"}},
		{"malformed", Department{StartTime: "9am", EndTime: "12:00"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.marks, tt.dept.HourlyMarks())
		})
	}
}

func TestParseCatalogKeepsInsertionOrder(t *testing.T) {
	raw := `{
		"Neurology":  {"startTime": "10:00", "endTime": "11:00", "capacity": 2},
		"Cardiology": {"startTime": "09:00", "endTime": "12:00", "capacity": 10},
		"ENT":        {"startTime": "13:00", "endTime": "15:00", "capacity": 4}
	}`

	c, err := ParseCatalog(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, []string{"Neurology", "Cardiology", "ENT"}, c.Names())

	d, ok := c.Lookup("Cardiology")
	require.True(t, ok)
	assert.Equal(t, 10, d.Capacity)
	assert.True(t, d.HasMark("11:00"))
	assert.False(t, d.HasMark("13:00"))
}

func TestParseCatalogRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"not an object":    `["Cardiology"]`,
		"zero capacity":    `{"X": {"startTime": "09:00", "endTime": "10:00", "capacity": 0}}`,
		"bad start":        `{"X": {"startTime": "nine", "endTime": "10:00", "capacity": 1}}`,
		"end before start": `{"X": {"startTime": "11:00", "endTime": "10:00", "capacity": 1}}`,
		"duplicate":        `{"X": {"startTime": "09:00", "endTime": "10:00", "capacity": 1}, "X": {"startTime": "09:00", "endTime": "10:00", "capacity": 1}}`,
		"empty":            `{}`,
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog(strings.NewReader(raw))
			assert.Error(t, err)
		})
	}
}

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	names := c.Names()
	require.NotEmpty(t, names)
	assert.Equal(t, "Cardiology", names[0])

	names[0] = "mutated"
	assert.Equal(t, "Cardiology", c.Names()[0], "Names must return a copy")
}

func TestPatientIDRoundTrip(t *testing.T) {
	assert.Equal(t, "P1001", FormatPatientID(1001))

	n, err := ParsePatientID("P1042")
	require.NoError(t, err)
	assert.EqualValues(t, 1042, n)

	_, err = ParsePatientID("1042")
	assert.Error(t, err)
	_, err = ParsePatientID("Pxyz")
	assert.Error(t, err)
}
