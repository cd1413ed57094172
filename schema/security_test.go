package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateResourceURIRejectsEmpty(t *testing.T) {
	err := ValidateResourceURI("")
	require.Error(t, err)
}

func TestValidateResourceURIAcceptsOrdinaryURI(t *testing.T) {
	err := ValidateResourceURI("file:///tmp/notes.txt")
	require.NoError(t, err)
}

func TestValidateResourceURIRejectsOversizedURI(t *testing.T) {
	huge := "file:///" + strings.Repeat("a", MaxURILength)
	err := ValidateResourceURI(huge)
	require.Error(t, err)
}

func TestValidateResourceURIRejectsDangerousSchemes(t *testing.T) {
	for _, uri := range []string{
		"javascript:alert(1)",
		"data:text/html,<script>alert(1)</script>",
		"vbscript:msgbox(1)",
		"file:///proc/self/environ",
		"file:///sys/kernel",
		"JAVASCRIPT:alert(1)",
	} {
		err := ValidateResourceURI(uri)
		require.Error(t, err, "expected %q to be rejected", uri)
	}
}

func TestValidateResourceURIRejectsPathTraversal(t *testing.T) {
	for _, uri := range []string{
		"file:///data/../../etc/passwd",
		"file:///data\\..\\..\\config",
	} {
		err := ValidateResourceURI(uri)
		require.Error(t, err, "expected %q to be rejected", uri)
	}
}

func TestValidateToolDescriptionWithinLimitProducesNoWarning(t *testing.T) {
	warning, tooLong := ValidateToolDescription("a short, useful description")
	require.False(t, tooLong)
	require.Empty(t, warning)
}

func TestValidateToolDescriptionOverLimitWarns(t *testing.T) {
	desc := strings.Repeat("a", MaxToolDescriptionLength+1)
	warning, tooLong := ValidateToolDescription(desc)
	require.True(t, tooLong)
	require.NotEmpty(t, warning)
}
