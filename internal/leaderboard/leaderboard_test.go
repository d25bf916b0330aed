package leaderboard

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const key = "firescore:leaderboard"

func newMockBoard(t *testing.T) (*Board, redismock.ClientMock) {
	t.Helper()

	client, mock := redismock.NewClientMock()
	config := DefaultConfig()
	config.Key = key

	return New(client, config), mock
}

func keepLower(team string, score float64) redis.ZAddArgs {
	return redis.ZAddArgs{LT: true, Ch: true, Members: []redis.Z{{Score: score, Member: team}}}
}

func TestBoard_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("first score is stored", func(t *testing.T) {
		board, mock := newMockBoard(t)

		mock.ExpectZAddArgs(key, keepLower("hotshots", 1.5)).SetVal(1)

		improved, err := board.Submit(ctx, "hotshots", 1.5)
		require.NoError(t, err)
		assert.True(t, improved)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("better score replaces", func(t *testing.T) {
		board, mock := newMockBoard(t)

		// CH counts the updated member
		mock.ExpectZAddArgs(key, keepLower("hotshots", 0.5)).SetVal(1)

		improved, err := board.Submit(ctx, "hotshots", 0.5)
		require.NoError(t, err)
		assert.True(t, improved)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("worse or equal score is ignored", func(t *testing.T) {
		board, mock := newMockBoard(t)

		mock.ExpectZAddArgs(key, keepLower("hotshots", 3.0)).SetVal(0)
		mock.ExpectZAddArgs(key, keepLower("hotshots", 0.5)).SetVal(0)

		improved, err := board.Submit(ctx, "hotshots", 3.0)
		require.NoError(t, err)
		assert.False(t, improved)

		improved, err = board.Submit(ctx, "hotshots", 0.5)
		require.NoError(t, err)
		assert.False(t, improved)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("interleaved submissions are single writes", func(t *testing.T) {
		board, mock := newMockBoard(t)

		// no read-then-write: each submission is exactly one ZADD LT
		mock.ExpectZAddArgs(key, keepLower("hotshots", 3)).SetVal(1)
		mock.ExpectZAddArgs(key, keepLower("hotshots", 4)).SetVal(0)

		improved, err := board.Submit(ctx, "hotshots", 3)
		require.NoError(t, err)
		assert.True(t, improved)

		improved, err = board.Submit(ctx, "hotshots", 4)
		require.NoError(t, err)
		assert.False(t, improved)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis error", func(t *testing.T) {
		board, mock := newMockBoard(t)

		mock.ExpectZAddArgs(key, keepLower("hotshots", 1)).SetErr(errors.New("READONLY"))

		_, err := board.Submit(ctx, "hotshots", 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "submit score for hotshots")
	})

	t.Run("team required", func(t *testing.T) {
		board, _ := newMockBoard(t)

		_, err := board.Submit(ctx, "", 1)
		assert.Error(t, err)
	})
}

func TestBoard_Top(t *testing.T) {
	board, mock := newMockBoard(t)

	mock.ExpectZRangeWithScores(key, 0, 2).SetVal([]redis.Z{
		{Score: 0.4, Member: "hotshots"},
		{Score: 1.1, Member: "smokejumpers"},
	})

	entries, err := board.Top(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Rank: 1, Team: "hotshots", Score: 0.4},
		{Rank: 2, Team: "smokejumpers", Score: 1.1},
	}, entries)
	assert.NoError(t, mock.ExpectationsWereMet())

	none, err := board.Top(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestBoard_Rank(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		board, mock := newMockBoard(t)

		mock.ExpectTxPipeline()
		mock.ExpectZRank(key, "smokejumpers").SetVal(1)
		mock.ExpectZScore(key, "smokejumpers").SetVal(1.1)
		mock.ExpectTxPipelineExec()

		entry, err := board.Rank(context.Background(), "smokejumpers")
		require.NoError(t, err)
		assert.Equal(t, &Entry{Rank: 2, Team: "smokejumpers", Score: 1.1}, entry)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("absent", func(t *testing.T) {
		board, mock := newMockBoard(t)

		mock.ExpectTxPipeline()
		mock.ExpectZRank(key, "nobody").RedisNil()

		entry, err := board.Rank(context.Background(), "nobody")
		require.NoError(t, err)
		assert.Nil(t, entry)
	})
}

func TestBoard_BreakerOpens(t *testing.T) {
	board, mock := newMockBoard(t)
	ctx := context.Background()
	down := errors.New("connection refused")

	for i := 0; i < 3; i++ {
		mock.ExpectZRangeWithScores(key, 0, 9).SetErr(down)
		_, err := board.Top(ctx, 10)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}

	assert.Equal(t, "open", board.State())

	_, err := board.Top(ctx, 10)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBoard_RedisNilDoesNotTrip(t *testing.T) {
	board, mock := newMockBoard(t)

	for i := 0; i < 5; i++ {
		mock.ExpectTxPipeline()
		mock.ExpectZRank(key, "nobody").RedisNil()
		_, err := board.Rank(context.Background(), "nobody")
		require.NoError(t, err)
	}

	assert.Equal(t, "closed", board.State())
}
