package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/igwatch/internal/models"
)

func strPtr(s string) *string { return &s }

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"v1.0.0", "1.0.0"},
		{"1.0.0", "1.0.0"},
		{" v2.1 ", "2.1"},
		{"vv3", "v3"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestIsSentinel(t *testing.T) {
	for _, s := range []string{"current", "CURRENT", "vcurrent", "vCurrent", " Current "} {
		assert.True(t, IsSentinel(s), s)
	}
	for _, s := range []string{"v1.0.0", "current-1", "", "cur"} {
		assert.False(t, IsSentinel(s), s)
	}
}

func TestFromTags(t *testing.T) {
	got := FromTags([]string{"v1.0.0", "current", "", "vCurrent", "2.0.0"})
	assert.Equal(t, []string{"1.0.0", "2.0.0"}, got)
}

func TestReconcile_TagsAndManifest(t *testing.T) {
	tags := FromTags([]string{"v1.0.0", "v2.0.0"})
	published := []models.PublishedVersion{{Version: "1.0.0", URL: "/p/1.0.0"}}

	got := Reconcile(tags, published)

	assert.Equal(t, []models.ReconciledVersion{
		{Version: "1.0.0", HasTag: true, PublishedURL: strPtr("/p/1.0.0")},
		{Version: "2.0.0", HasTag: true, PublishedURL: nil},
	}, got)
}

func TestReconcile_NoManifest(t *testing.T) {
	got := Reconcile(FromTags([]string{"v1.0.0"}), nil)

	require.Len(t, got, 1)
	assert.Equal(t, "1.0.0", got[0].Version)
	assert.True(t, got[0].HasTag)
	assert.Nil(t, got[0].PublishedURL)
}

func TestReconcile_PublishedOnly(t *testing.T) {
	published := []models.PublishedVersion{{Version: "3.0.0", URL: "https://example.org/3.0.0"}}

	got := Reconcile(nil, published)

	require.Len(t, got, 1)
	assert.Equal(t, "3.0.0", got[0].Version)
	assert.False(t, got[0].HasTag)
	require.NotNil(t, got[0].PublishedURL)
	assert.Equal(t, "https://example.org/3.0.0", *got[0].PublishedURL)
}

func TestReconcile_OrderTagsBeforePublishedOnly(t *testing.T) {
	tags := []string{"2.0.0", "1.0.0"}
	published := []models.PublishedVersion{
		{Version: "0.9.0", URL: "/p/0.9.0"},
		{Version: "1.0.0", URL: "/p/1.0.0"},
		{Version: "0.8.0", URL: "/p/0.8.0"},
	}

	got := Reconcile(tags, published)

	var order []string
	for _, v := range got {
		order = append(order, v.Version)
	}
	assert.Equal(t, []string{"2.0.0", "1.0.0", "0.9.0", "0.8.0"}, order)
}

func TestReconcile_Dedup(t *testing.T) {
	tags := []string{"1.0.0", "1.0.0", "2.0.0"}
	published := []models.PublishedVersion{
		{Version: "2.0.0", URL: "/first"},
		{Version: "2.0.0", URL: "/second"},
		{Version: "3.0.0", URL: "/p/3"},
		{Version: "3.0.0", URL: "/p/3-again"},
	}

	got := Reconcile(tags, published)

	counts := map[string]int{}
	for _, v := range got {
		counts[v.Version]++
	}
	assert.Equal(t, map[string]int{"1.0.0": 1, "2.0.0": 1, "3.0.0": 1}, counts)

	require.Len(t, got, 3)
	require.NotNil(t, got[1].PublishedURL)
	assert.Equal(t, "/first", *got[1].PublishedURL, "first published entry wins")
	assert.True(t, got[1].HasTag)
}

func TestReconcile_SentinelsNeverSurface(t *testing.T) {
	tags := []string{"current", "1.0.0"}
	published := []models.PublishedVersion{
		{Version: "vcurrent", URL: "/p/current"},
		{Version: "Current", URL: "/p/current"},
	}

	got := Reconcile(tags, published)

	require.Len(t, got, 1)
	assert.Equal(t, "1.0.0", got[0].Version)
}

func TestReconcile_Empty(t *testing.T) {
	got := Reconcile(nil, nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
