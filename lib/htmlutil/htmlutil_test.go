package htmlutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func parse(t *testing.T, markup string) *html.Node {
	t.Helper()
	node, err := html.Parse(strings.NewReader(markup))
	require.NoError(t, err)
	return node
}

func TestGetText(t *testing.T) {
	node := parse(t, `<div>Case <b>Was</b> Received</div>`)
	require.Equal(t, "Case Was Received", strings.TrimSpace(GetText(node)))
}

func TestCleanText(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"  Pending   Review \n", "Pending Review"},
		{"Approved", "Approved"},
		{"\tCase\n\nWas\t\tReceived ", "Case Was Received"},
		{"", ""},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.expected, CleanText(tc.input), "input: %q", tc.input)
	}
}
