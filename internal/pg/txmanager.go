package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

type txKey struct{}

// TXManager runs a function inside a database transaction. A nested Begin
// joins the transaction already carried in the context, so service-level
// units of work compose with repository-level ones.
type TXManager interface {
	Begin(ctx context.Context, fn func(ctx context.Context) error) error
}

type txManager struct {
	pool Pool
}

func NewTXManager(pool Pool) TXManager {
	return &txManager{pool: pool}
}

const txMaxRetries = 3

func (m *txManager) Begin(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	backoff := retry.WithMaxRetries(txMaxRetries, retry.NewExponential(100*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := m.runTx(ctx, fn)
		if IsRetryable(err) {
			zap.L().Warn("retrying transaction after transient store error", zap.Error(err))
			return retry.RetryableError(err)
		}
		return err
	})
}

func (m *txManager) runTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func txFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}
