package license

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoOp_DeniesEveryFeature(t *testing.T) {
	require.False(t, NoOp.IsFeatureAllowed("quota_enforcement"))
	require.False(t, NoOp.IsFeatureAllowed(""))
}
