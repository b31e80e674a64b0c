package auth_test

import (
	"testing"

	"github.com/goliatone/go-clinic-auth"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateHelpers(t *testing.T) {
	helpers := auth.TemplateHelpers()

	isAuthenticated, ok := helpers["is_authenticated"].(func(any) bool)
	require.True(t, ok)
	isAdmin, ok := helpers["is_admin"].(func(any) bool)
	require.True(t, ok)

	admin := auth.ViewModel{State: auth.StateAuthenticatedAdmin}
	member := auth.Session{UserID: "u1", IsAuthenticated: true}

	assert.True(t, isAuthenticated(admin))
	assert.True(t, isAdmin(&admin))
	assert.True(t, isAuthenticated(member))
	assert.False(t, isAdmin(member))
	assert.False(t, isAuthenticated(nil))
	assert.False(t, isAuthenticated(map[string]any{"state": "unauthenticated"}))

	modes, ok := helpers["gallery_modes"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "coming_soon", modes["coming_soon"])
	assert.Equal(t, "unavailable", modes["unavailable"])
}

func TestTemplateHelpersWithView(t *testing.T) {
	vm := auth.ViewModel{State: auth.StateAuthenticated}
	helpers := auth.TemplateHelpersWithView(vm)
	assert.Equal(t, vm, helpers[auth.TemplateViewKey])
}

func TestTemplateHelpersWithRouter(t *testing.T) {
	vm := &auth.ViewModel{State: auth.StateAuthenticatedAdmin}

	ctx := router.NewMockContext()
	ctx.LocalsMock[auth.TemplateViewKey] = vm

	helpers := auth.TemplateHelpersWithRouter(ctx, "")
	assert.Equal(t, *vm, helpers[auth.TemplateViewKey])

	got, ok := auth.GetTemplateView(ctx, "")
	require.True(t, ok)
	assert.Equal(t, auth.StateAuthenticatedAdmin, got.State)
}

func TestNoticeClass(t *testing.T) {
	helpers := auth.TemplateHelpers()
	noticeClass, ok := helpers["notice_class"].(func(any) string)
	require.True(t, ok)

	n := auth.Notice{Kind: auth.NoticeError}
	assert.Equal(t, "message error", noticeClass(n))
	assert.Equal(t, "message", noticeClass(nil))
}
