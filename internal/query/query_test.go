package query

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aldoetobex/assignment-portal/pkg/models"
)

func resolve(t *testing.T, remembered State, qs string) State {
	t.Helper()
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(FromRequest(c, remembered))
	})
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/"+qs, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var s State
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&s))
	return s
}

func TestFromRequest_Defaults(t *testing.T) {
	assert.Equal(t, Default(), resolve(t, Default(), ""))
}

func TestFromRequest_Limits(t *testing.T) {
	s := resolve(t, Default(), "?page=0&pageSize=500")
	assert.Equal(t, 1, s.Page)
	assert.Equal(t, DefaultPageSize, s.PageSize)

	s = resolve(t, Default(), "?page=abc&pageSize=50")
	assert.Equal(t, 1, s.Page)
	assert.Equal(t, 50, s.PageSize)
}

func TestFromRequest_MergesOverRemembered(t *testing.T) {
	remembered := State{Page: 3, PageSize: 20, Stage: models.StageInProgress, Search: "thesis"}

	assert.Equal(t, remembered, resolve(t, remembered, ""))

	s := resolve(t, remembered, "?page=4")
	assert.Equal(t, 4, s.Page)
	assert.Equal(t, models.StageInProgress, s.Stage)

	// changing a filter goes back to the first page
	s = resolve(t, remembered, "?search=essay")
	assert.Equal(t, 1, s.Page)
	assert.Equal(t, "essay", s.Search)
	assert.Equal(t, 20, s.PageSize)

	// an empty value clears the filter
	s = resolve(t, remembered, "?stage=")
	assert.Empty(t, s.Stage)
	assert.Equal(t, "thesis", s.Search)
}

func TestFromRequest_UnknownStageIgnored(t *testing.T) {
	s := resolve(t, Default(), "?stage=archived")
	assert.Empty(t, s.Stage)
}

func TestFromRequest_SavedStateOutlivesRequest(t *testing.T) {
	store := NewMemoryStore()
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		user := utils.CopyString(c.Query("user"))
		prev := store.Load(c.UserContext(), user, "assignments")
		return store.Save(c.UserContext(), user, "assignments", FromRequest(c, prev))
	})
	get := func(qs string) {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/"+qs, nil), -1)
		require.NoError(t, err)
		resp.Body.Close()
	}

	get("?user=u-1&stage=in_progress&search=alphabeta")
	for i := 0; i < 5; i++ {
		get("?user=u-2&xx=QQQQQQQQQQQQQQQQQQQQQQQQQQQQQQ")
	}

	got := store.Load(context.Background(), "u-1", "assignments")
	assert.Equal(t, "alphabeta", got.Search)
	assert.Equal(t, models.StageInProgress, got.Stage)
}

func TestMemoryStore(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	assert.Equal(t, Default(), st.Load(ctx, "u1", "assignments"))

	want := State{Page: 2, PageSize: 25, Stage: models.StageCompleted}
	require.NoError(t, st.Save(ctx, "u1", "assignments", want))
	assert.Equal(t, want, st.Load(ctx, "u1", "assignments"))

	assert.Equal(t, Default(), st.Load(ctx, "u2", "assignments"))
	assert.Equal(t, Default(), st.Load(ctx, "u1", "wallet"))
}

func TestRedisStore(t *testing.T) {
	_ = godotenv.Load()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR is empty")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()
	require.NoError(t, rdb.Ping(ctx).Err())

	st := NewRedisStore(rdb, nil)
	k := key("test-user", "assignments")
	t.Cleanup(func() { rdb.Del(ctx, k) })

	assert.Equal(t, Default(), st.Load(ctx, "test-user", "assignments"))

	want := State{Page: 2, PageSize: 20, Search: "law"}
	require.NoError(t, st.Save(ctx, "test-user", "assignments", want))
	assert.Equal(t, want, st.Load(ctx, "test-user", "assignments"))

	ttl, err := rdb.TTL(ctx, k).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, TTL-time.Minute)

	require.NoError(t, rdb.Set(ctx, k, "{not json", 0).Err())
	assert.Equal(t, Default(), st.Load(ctx, "test-user", "assignments"))
}
