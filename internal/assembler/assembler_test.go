package assembler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusengine/core/pkg/models"
)

func TestFeedAccumulatesAndFinalizesOnDone(t *testing.T) {
	a := New()

	require.Nil(t, a.Feed(models.RawToolDelta{CallIndex: 0, ID: "call_abc", NameDelta: "sea"}))
	require.Nil(t, a.Feed(models.RawToolDelta{CallIndex: 0, NameDelta: "rch", ArgsDelta: `{"q":`}))
	tc := a.Feed(models.RawToolDelta{CallIndex: 0, ArgsDelta: `"go"}`, Done: true})

	require.NotNil(t, tc)
	assert.Equal(t, "call_abc", tc.ID)
	assert.Equal(t, "search", tc.Name)
	assert.Equal(t, map[string]any{"q": "go"}, tc.Arguments)
	assert.Empty(t, a.Errors())
}

func TestFeedMalformedJSONRecordsErrorAndDropsBuffer(t *testing.T) {
	a := New()

	tc := a.Feed(models.RawToolDelta{CallIndex: 0, NameDelta: "x", ArgsDelta: `{"key": INVALID_JSON`, Done: true})

	assert.Nil(t, tc)
	require.Len(t, a.Errors(), 1)
	assert.Contains(t, a.Errors()[0], "tool_call_json_parse_failed idx=0")
}

func TestFeedEmptyArgsDeltaYieldsEmptyObject(t *testing.T) {
	a := New()
	tc := a.Feed(models.RawToolDelta{CallIndex: 0, NameDelta: "ping", Done: true})
	require.NotNil(t, tc)
	assert.Equal(t, map[string]any{}, tc.Arguments)
}

func TestFeedGeneratesIDWhenProviderOmitsIt(t *testing.T) {
	a := New()
	tc := a.Feed(models.RawToolDelta{CallIndex: 3, NameDelta: "echo", Done: true})
	require.NotNil(t, tc)
	assert.Equal(t, "call_3", tc.ID)
}

func TestFeedStripsWhitespaceOnlyNameDeltas(t *testing.T) {
	a := New()
	require.Nil(t, a.Feed(models.RawToolDelta{CallIndex: 0, NameDelta: "  "}))
	require.Nil(t, a.Feed(models.RawToolDelta{CallIndex: 0, NameDelta: "echo  "}))
	tc := a.Feed(models.RawToolDelta{CallIndex: 0, Done: true})
	require.NotNil(t, tc)
	assert.Equal(t, "echo", tc.Name)
}

func TestFlushFinalizesRemainingBuffersInIndexOrder(t *testing.T) {
	a := New()
	require.Nil(t, a.Feed(models.RawToolDelta{CallIndex: 2, NameDelta: "second", ArgsDelta: "{}"}))
	require.Nil(t, a.Feed(models.RawToolDelta{CallIndex: 0, NameDelta: "first", ArgsDelta: "{}"}))

	calls := a.Flush()
	require.Len(t, calls, 2)
	assert.Equal(t, "first", calls[0].Name)
	assert.Equal(t, "second", calls[1].Name)
}

func TestLateDeltaAfterFinalizedIndexIsNoOp(t *testing.T) {
	a := New()
	tc := a.Feed(models.RawToolDelta{CallIndex: 0, NameDelta: "echo", Done: true})
	require.NotNil(t, tc)

	// A further delta for the same, already-finalized index must not
	// reopen the buffer or appear in a later flush.
	assert.Nil(t, a.Feed(models.RawToolDelta{CallIndex: 0, NameDelta: "late"}))
	assert.Empty(t, a.Flush())
}

func TestResetClearsState(t *testing.T) {
	a := New()
	a.Feed(models.RawToolDelta{CallIndex: 0, ArgsDelta: "{bad", Done: true})
	require.NotEmpty(t, a.Errors())

	a.Reset()
	assert.Empty(t, a.Errors())
	assert.Empty(t, a.Flush())
}

func TestAtMostOneToolCallPerIndex(t *testing.T) {
	a := New()
	first := a.Feed(models.RawToolDelta{CallIndex: 0, NameDelta: "a", ArgsDelta: "{}", Done: true})
	require.NotNil(t, first)

	second := a.Feed(models.RawToolDelta{CallIndex: 0, NameDelta: "b", ArgsDelta: "{}", Done: true})
	assert.Nil(t, second)
}
