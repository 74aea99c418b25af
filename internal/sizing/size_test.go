package sizing

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		remaining int64
		bufLen    int
		want      int
	}{
		{"fits", 10, 32, 10},
		{"exact", 32, 32, 32},
		{"larger", 1 << 40, 32, 32},
		{"none", 0, 32, 0},
		{"negative", -5, 32, 0},
		{"empty buffer", 10, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Clamp(tt.remaining, tt.bufLen))
		})
	}
}

func TestReadAllWithLimit(t *testing.T) {
	t.Parallel()

	errTooBig := errors.New("too big")

	data, err := ReadAllWithLimit(bytes.NewReader([]byte("hello")), 5, errTooBig)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	_, err = ReadAllWithLimit(bytes.NewReader([]byte("hello!")), 5, errTooBig)
	require.ErrorIs(t, err, errTooBig)
}
