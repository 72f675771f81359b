package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		to      State
		allowed bool
	}{
		{"water freezes to ice", StateWater, StateIce, true},
		{"water evaporates to gas", StateWater, StateGas, true},
		{"ice evaporates to gas", StateIce, StateGas, true},
		{"ice cannot melt to water", StateIce, StateWater, false},
		{"gas is terminal (water)", StateGas, StateWater, false},
		{"gas is terminal (ice)", StateGas, StateIce, false},
		{"no-op water", StateWater, StateWater, true},
		{"no-op gas", StateGas, StateGas, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestStateValid(t *testing.T) {
	assert.True(t, StateIce.Valid())
	assert.True(t, StateWater.Valid())
	assert.True(t, StateGas.Valid())
	assert.False(t, State("plasma").Valid())
	assert.False(t, State("").Valid())
}

func TestContentValidateTaggedUnion(t *testing.T) {
	tests := []struct {
		name    string
		content Content
		wantErr bool
	}{
		{"empty content", Content{MediaType: "text/plain"}, false},
		{"inline json only", Content{InlineJSON: []byte(`{"a":1}`)}, false},
		{"inline bytes only", Content{InlineBytes: []byte("raw")}, false},
		{"external uri only", Content{ExternalURI: "https://example.com/x"}, false},
		{"json and bytes", Content{InlineJSON: []byte(`{}`), InlineBytes: []byte("x")}, true},
		{"bytes and uri", Content{InlineBytes: []byte("x"), ExternalURI: "https://e.com"}, true},
		{"all three", Content{InlineJSON: []byte(`{}`), InlineBytes: []byte("x"), ExternalURI: "u"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.content.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrValidation)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNodeValidate(t *testing.T) {
	valid := &Node{ID: "n1", TypeID: "concept", State: StateWater}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name string
		node *Node
	}{
		{"nil node", nil},
		{"empty id", &Node{TypeID: "concept", State: StateWater}},
		{"empty typeId", &Node{ID: "n1", State: StateWater}},
		{"bad state", &Node{ID: "n1", TypeID: "concept", State: State("steam")}},
		{"multi-variant content", &Node{
			ID: "n1", TypeID: "concept", State: StateWater,
			Content: &Content{InlineBytes: []byte("x"), ExternalURI: "u"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tt.node.Validate(), ErrValidation)
		})
	}
}

func TestNodeCloneIsDeep(t *testing.T) {
	node := &Node{
		ID:      "n1",
		TypeID:  "news.item",
		State:   StateWater,
		Content: &Content{MediaType: "text/plain", InlineBytes: []byte("hello")},
		Meta:    map[string]string{"source": "reuters"},
	}

	clone := node.Clone()
	clone.Meta["source"] = "changed"
	clone.Content.InlineBytes[0] = 'X'

	assert.Equal(t, "reuters", node.Meta["source"])
	assert.Equal(t, byte('h'), node.Content.InlineBytes[0])
}

func TestNodeExpiry(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	node := &Node{ID: "n1", TypeID: "news.item", State: StateWater}
	assert.False(t, node.Expired(now), "no hint means no expiry")

	node.SetMeta(MetaExpiresAt, now.Add(-time.Hour).Format(time.RFC3339))
	assert.True(t, node.Expired(now))

	node.SetMeta(MetaExpiresAt, now.Add(time.Hour).Format(time.RFC3339))
	assert.False(t, node.Expired(now))

	node.SetMeta(MetaExpiresAt, "not-a-timestamp")
	assert.False(t, node.Expired(now), "unparseable hint is ignored")
}

func TestEdgeValidateAndKey(t *testing.T) {
	edge := &Edge{FromID: "a", ToID: "b", Role: RoleHasContent}
	require.NoError(t, edge.Validate())
	assert.Equal(t, "a|has-content|b", edge.Key())

	require.ErrorIs(t, (&Edge{ToID: "b", Role: "r"}).Validate(), ErrValidation)
	require.ErrorIs(t, (&Edge{FromID: "a", Role: "r"}).Validate(), ErrValidation)
	require.ErrorIs(t, (&Edge{FromID: "a", ToID: "b"}).Validate(), ErrValidation)
	require.ErrorIs(t, (&Edge{FromID: "a", ToID: "b", Role: "r", Weight: -1}).Validate(), ErrValidation)
}
