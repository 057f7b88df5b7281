package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gate-monitor/internal/domain/monitor"
)

func TestResolveRoles_ExplicitTags(t *testing.T) {
	cameras := []monitor.Camera{
		{ID: 1, Name: "Cam 1", Tag: monitor.TagFront},
		{ID: 2, Name: "Cam 2", Tag: monitor.TagSide},
	}

	roles := ResolveRoles(cameras)

	require.NotNil(t, roles.Front)
	require.NotNil(t, roles.Side)
	assert.Equal(t, int64(1), roles.Front.ID)
	assert.Equal(t, int64(2), roles.Side.ID)
}

func TestResolveRoles_TagOutranksKeywords(t *testing.T) {
	// Camera 1 looks like a plate camera by type, but camera 2 carries
	// the explicit tag and must win.
	cameras := []monitor.Camera{
		{ID: 1, Name: "Cam 1", Type: "plate_recognition"},
		{ID: 2, Name: "Cam 2", Tag: monitor.TagFront},
	}

	roles := ResolveRoles(cameras)

	require.NotNil(t, roles.Front)
	assert.Equal(t, int64(2), roles.Front.ID)
}

func TestResolveRoles_TypeKeywords(t *testing.T) {
	cameras := []monitor.Camera{
		{ID: 1, Name: "Cam 1", Type: "LPR,overview"},
		{ID: 2, Name: "Cam 2", Type: "wheel_count"},
	}

	roles := ResolveRoles(cameras)

	require.NotNil(t, roles.Front)
	require.NotNil(t, roles.Side)
	assert.Equal(t, int64(1), roles.Front.ID)
	assert.Equal(t, int64(2), roles.Side.ID)
}

func TestResolveRoles_VietnameseKeywords(t *testing.T) {
	cameras := []monitor.Camera{
		{ID: 1, Name: "Camera phía trước", Brand: "hik"},
		{ID: 2, Name: "Camera hông xe", Brand: "hik"},
	}

	roles := ResolveRoles(cameras)

	require.NotNil(t, roles.Front)
	require.NotNil(t, roles.Side)
	assert.Equal(t, int64(1), roles.Front.ID)
	assert.Equal(t, int64(2), roles.Side.ID)
}

func TestResolveRoles_NameKeywordsCaseInsensitive(t *testing.T) {
	cameras := []monitor.Camera{
		{ID: 1, Name: "FRONT Gate"},
		{ID: 2, Name: "Side Gate"},
	}

	roles := ResolveRoles(cameras)

	require.NotNil(t, roles.Front)
	require.NotNil(t, roles.Side)
	assert.Equal(t, int64(1), roles.Front.ID)
	assert.Equal(t, int64(2), roles.Side.ID)
}

func TestResolveRoles_NoMatch(t *testing.T) {
	cameras := []monitor.Camera{
		{ID: 1, Name: "Overview", Type: "overview"},
	}

	roles := ResolveRoles(cameras)

	assert.Nil(t, roles.Front)
	assert.Nil(t, roles.Side)
}

func TestResolveRoles_Deterministic(t *testing.T) {
	cameras := []monitor.Camera{
		{ID: 1, Name: "front A"},
		{ID: 2, Name: "front B"},
		{ID: 3, Name: "side A"},
	}

	first := ResolveRoles(cameras)
	for i := 0; i < 10; i++ {
		again := ResolveRoles(cameras)
		require.NotNil(t, again.Front)
		require.NotNil(t, again.Side)
		assert.Equal(t, first.Front.ID, again.Front.ID)
		assert.Equal(t, first.Side.ID, again.Side.ID)
	}
	// First listed camera wins within a rule.
	assert.Equal(t, int64(1), first.Front.ID)
}
