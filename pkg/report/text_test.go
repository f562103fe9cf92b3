package report

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmds-ddi-server/internal/domain"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		raw     string
		want    Format
		wantErr bool
	}{
		{raw: "", want: FormatPlain},
		{raw: "plain", want: FormatPlain},
		{raw: "RICH", want: FormatRich},
		{raw: " json ", want: FormatJSON},
		{raw: "xml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			// Act
			got, err := ParseFormat(tt.raw)

			// Assert
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, domain.ErrValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWritePlain(t *testing.T) {
	p := Build([]string{"Seroquel", "Biaxin"}, quetiapineResult(), nil)

	// Act
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, p, FormatPlain))

	// Assert
	out := buf.String()
	assert.Contains(t, out, "Drugs: Seroquel, Biaxin")
	assert.Contains(t, out, "Overall: severity=major | class=adjust_monitor | findings=2")
	assert.Contains(t, out, "clarithromycin + quetiapine")
	assert.Contains(t, out, "PK summary: exposure_increase")
	assert.Contains(t, out, "- [major | adjust_monitor] Strong CYP3A4 inhibition")
	assert.Contains(t, out, "Affected: quetiapine | Interacting: clarithromycin")
	assert.Contains(t, out, "PD section (shared effect):")
	assert.Contains(t, out, "- [major | adjust_monitor] COMP_PK_UP_CNS_DEPRESSION")
	assert.Contains(t, out, "   - Monitor sedation")
}

func TestWritePlain_NoInteractions(t *testing.T) {
	res := &domain.EvaluationResult{
		Domains:         domain.AllDomains(),
		OverallSeverity: domain.SeverityInfo,
		OverallClass:    domain.ClassInfo,
	}

	// Act
	var buf bytes.Buffer
	require.NoError(t, WritePlain(&buf, Build([]string{"a", "b"}, res, nil)))

	// Assert
	assert.Contains(t, buf.String(), "No documented interactions found.")
}

func TestWriteRich(t *testing.T) {
	p := Build([]string{"Seroquel", "Biaxin"}, quetiapineResult(), nil)

	// Act
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, p, FormatRich))

	// Assert
	out := buf.String()
	assert.Contains(t, out, "Interaction Summary (pairwise)")
	assert.Contains(t, out, "Pair")
	assert.Contains(t, out, "PK,PD")
	assert.Contains(t, out, "clarithromycin + quetiapine")
	assert.Contains(t, out, "Explanation: clarithromycin strongly inhibits CYP3A4")
	// A bytes.Buffer is not a terminal, so no escape sequences are emitted.
	assert.NotContains(t, out, "\x1b[")
}

func TestWrite_JSON(t *testing.T) {
	p := Build([]string{"Seroquel", "Biaxin"}, quetiapineResult(), nil)

	// Act
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, p, FormatJSON))

	// Assert
	assert.Contains(t, buf.String(), `"schema_version": "1.0"`)
	assert.Contains(t, buf.String(), `"A": {`)
}
