package db

import (
	"context"
	"fmt"

	"duel/internal/types"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// RedisLeaderboard ranks players of each game kind by ranked wins.
type RedisLeaderboard struct {
	cli redis.UniversalClient
}

func NewRedisLeaderboard(cli redis.UniversalClient) *RedisLeaderboard {
	return &RedisLeaderboard{cli: cli}
}

func ConnectRedis(ctx context.Context, addr, password string) (*redis.Client, error) {
	cli := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if err := cli.Ping(ctx).Err(); err != nil {
		cli.Close()
		return nil, eris.Wrap(err, "redis ping")
	}
	return cli, nil
}

func leaderboardKey(kind string) string {
	return fmt.Sprintf("leaderboard:%s", kind)
}

// Record counts a win. Losers are added with zero so they still show up.
func (l *RedisLeaderboard) Record(ctx context.Context, result types.GameResult) error {
	key := leaderboardKey(result.GameKind)
	var err error
	if result.Outcome == types.OutcomeWin {
		err = l.cli.ZIncrBy(ctx, key, 1, result.UserID).Err()
	} else {
		err = l.cli.ZAddNX(ctx, key, redis.Z{Score: 0, Member: result.UserID}).Err()
	}
	return eris.Wrapf(err, "leaderboard update for %s", result.UserID)
}

func (l *RedisLeaderboard) Top(ctx context.Context, kind string, n int) ([]types.LeaderboardEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	zs, err := l.cli.ZRevRangeWithScores(ctx, leaderboardKey(kind), 0, int64(n-1)).Result()
	if err != nil {
		return nil, eris.Wrapf(err, "leaderboard read for %s", kind)
	}

	out := make([]types.LeaderboardEntry, 0, len(zs))
	for _, z := range zs {
		out = append(out, types.LeaderboardEntry{UserID: fmt.Sprint(z.Member), Wins: z.Score})
	}
	return out, nil
}

func (l *RedisLeaderboard) Close() error {
	return l.cli.Close()
}
