package testutils

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// CmdTestCase is a test case for testing cobra CMD flags.
type CmdTestCase struct {
	Name           string
	Short          string
	Default        string
	Filename       bool
	PersistentFlag bool
	BaseCmd        *cobra.Command
}

// FlagTestHelper is a helper function to test cobra CMD flags.
func FlagTestHelper(t *testing.T, tc CmdTestCase) {
	t.Helper()
	var flag *pflag.Flag

	if tc.PersistentFlag {
		flag = tc.BaseCmd.PersistentFlags().Lookup(tc.Name)
	} else {
		flag = tc.BaseCmd.Flags().Lookup(tc.Name)
	}
	require.NotNil(t, flag, "Flag %q should be installed", tc.Name)
	assert.Equal(t, tc.Short, flag.Shorthand, "Flag %q shorthand should match", tc.Name)
	if tc.Default != "" {
		assert.Equal(t, tc.Default, flag.DefValue, "Flag %q default should match", tc.Name)
	}

	_, filename := flag.Annotations[cobra.BashCompFilenameExt]
	assert.Equal(t, tc.Filename, filename, "Flag %q file name completion should match", tc.Name)
}
