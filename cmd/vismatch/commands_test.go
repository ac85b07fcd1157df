package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lostboard/vismatch"
	"github.com/lostboard/vismatch/board"
	"github.com/lostboard/vismatch/item"
	"github.com/lostboard/vismatch/ranker"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return out.String()
}

func TestWeightsGenerateAndInspect(t *testing.T) {
	for _, comp := range []string{"none", "zstd", "lz4"} {
		t.Run(comp, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "w.vmnw")
			run(t, "weights", "generate", path, "--arch", "compact", "--input", "24", "--dim", "12", "--compression", comp)

			var info weightsInfo
			require.NoError(t, json.Unmarshal([]byte(run(t, "weights", "inspect", path, "--json")), &info))
			assert.Equal(t, "compact_24_12", info.Name)
			assert.Equal(t, 24, info.InputSize)
			assert.Equal(t, 12, info.Dim)
			assert.Equal(t, 4, info.Layers)
		})
	}
}

func TestWeightsGenerateRejectsUnknownArch(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"weights", "generate", filepath.Join(t.TempDir(), "w"), "--arch", "resnet"})
	root.SetOut(&bytes.Buffer{})
	assert.Error(t, root.Execute())
}

func TestFormatView(t *testing.T) {
	v := board.ViewResult{
		Item: item.Record{ID: "l1", Type: item.Lost, Title: "Umbrella", Station: "Central"},
		Outcome: vismatch.MatchOutcome{
			State: vismatch.MatchFound,
			Matches: []ranker.Match{
				{Record: item.Record{ID: "f1", Title: "Black umbrella", Station: "Harbor"}, Similarity: 93},
			},
		},
	}
	got := formatView(v)
	assert.Contains(t, got, "l1 [Lost] Umbrella at Central")
	assert.Contains(t, got, "matches: Found")
	assert.Contains(t, got, "93%")
	assert.Contains(t, got, "Black umbrella")
}
