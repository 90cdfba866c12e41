package social

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookupAndDescribe(t *testing.T) {
	registry := NewRegistry(&fakeProvider{
		name: "twitter",
		meta: Metadata{Name: "twitter", DisplayName: "Twitter / X"},
	})

	p, err := registry.Lookup("twitter")
	require.NoError(t, err)
	assert.Equal(t, "twitter", p.Name())

	meta, err := registry.Describe("twitter")
	require.NoError(t, err)
	assert.Equal(t, "Twitter / X", meta.DisplayName)

	_, err = registry.Lookup("myspace")
	require.ErrorIs(t, err, ErrUnknownProvider)
	assert.Contains(t, err.Error(), "myspace")
}

func TestRegistryNamesSorted(t *testing.T) {
	registry := NewRegistry(
		&fakeProvider{name: "twitter"},
		&fakeProvider{name: "facebook"},
		&fakeProvider{name: "instagram"},
	)

	assert.Equal(t, []string{"facebook", "instagram", "twitter"}, registry.Names())
	assert.True(t, registry.Has("facebook"))
	assert.False(t, registry.Has("linkedin"))
}

func TestRegistryRegisterReplaces(t *testing.T) {
	registry := NewRegistry(&fakeProvider{
		name: "google",
		meta: Metadata{Name: "google", DisplayName: "Old"},
	})
	registry.Register(&fakeProvider{
		name: "google",
		meta: Metadata{Name: "google", DisplayName: "New"},
	})
	registry.Register(nil)

	meta, err := registry.Describe("google")
	require.NoError(t, err)
	assert.Equal(t, "New", meta.DisplayName)
	assert.Len(t, registry.Names(), 1)
}
