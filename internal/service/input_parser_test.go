package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmds-ddi-server/internal/domain"
)

func TestInputParser_ParseArgs(t *testing.T) {
	parser := NewInputParser(0)

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"separate args", []string{"warfarin", "fluconazole"}, []string{"warfarin", "fluconazole"}},
		{"comma separated", []string{"warfarin, fluconazole,aspirin"}, []string{"warfarin", "fluconazole", "aspirin"}},
		{"semicolons and newlines", []string{"warfarin;fluconazole\naspirin"}, []string{"warfarin", "fluconazole", "aspirin"}},
		{"inner spaces kept", []string{"acetylsalicylic   acid, warfarin"}, []string{"acetylsalicylic acid", "warfarin"}},
		{"case-insensitive duplicates", []string{"Warfarin", "warfarin", " WARFARIN "}, []string{"Warfarin"}},
		{"comment stripped", []string{"warfarin # anticoagulant"}, []string{"warfarin"}},
		{"empty tokens ignored", []string{",, ,", ""}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parser.ParseArgs(tt.args...))
		})
	}
}

func TestInputParser_ParseReader(t *testing.T) {
	input := `# morning medications
quetiapine
clarithromycin, digoxin   # started last week

Digoxin
`
	// Act
	names, err := NewInputParser(0).ParseReader(strings.NewReader(input))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"quetiapine", "clarithromycin", "digoxin"}, names)
}

func TestInputParser_Validate(t *testing.T) {
	parser := NewInputParser(3)

	tests := []struct {
		name    string
		names   []string
		wantErr string
	}{
		{"two drugs", []string{"a", "b"}, ""},
		{"at the limit", []string{"a", "b", "c"}, ""},
		{"single drug", []string{"a"}, "at least two"},
		{"over the limit", []string{"a", "b", "c", "d"}, "at most 3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := parser.Validate(tt.names)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
