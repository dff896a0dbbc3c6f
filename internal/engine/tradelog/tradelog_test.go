package tradelog_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arbplane/arbplane/internal/domain"
	"github.com/arbplane/arbplane/internal/engine/tradelog"
)

func TestLog_RecordAppendsOneJSONLinePerResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.log")
	log := tradelog.New(path, 1)
	defer log.Close()

	result := domain.ExecutionResult{
		OpportunityID: "opp-1",
		Success:       true,
		ActualProfit:  12.5,
		Timestamp:     time.Now(),
	}
	require.NoError(t, log.Record(context.Background(), result))
	require.NoError(t, log.Record(context.Background(), result))
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := splitLines(string(data))
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], `"OpportunityID":"opp-1"`)
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i, c := range s {
		if c == '\n' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
