package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointJSON(t *testing.T) {
	b, err := json.Marshal([]Point{{Z: 50, Y: 27, X: 15}})
	require.NoError(t, err)
	assert.JSONEq(t, `[[50,27,15]]`, string(b))

	var got []Point
	require.NoError(t, json.Unmarshal([]byte(`[[1,2,3],[4,5,6]]`), &got))
	assert.Equal(t, []Point{{1, 2, 3}, {4, 5, 6}}, got)

	var bad Point
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &bad))
}

func TestPlaneAxes(t *testing.T) {
	tests := []struct {
		axis       int
		rows, cols int
	}{
		{0, 1, 2},
		{1, 0, 2},
		{2, 0, 1},
	}
	for _, tt := range tests {
		r, c := PlaneAxes(tt.axis)
		assert.Equal(t, tt.rows, r, "rows for axis %d", tt.axis)
		assert.Equal(t, tt.cols, c, "cols for axis %d", tt.axis)
	}
}

func TestScrollName(t *testing.T) {
	assert.Equal(t, "s1_54kev_7.91um", ScrollName("1", "", 54, 7.91))
	assert.Equal(t, "s5B_53kev_3.24um", ScrollName("5", "B", 53, 3.24))
	assert.Equal(t, "s2_88kev_8.0um", ScrollName("2", "", 88, 8))
}
