package app

import (
	"context"
	"errors"
	"testing"

	redismock "github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestBuildReadinessChecks_Redismock(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mock.ExpectPing().SetVal("PONG")

	db, red := BuildReadinessChecks(fakePinger{}, redisPing{rdb: client})
	require.NotNil(t, db)
	require.NotNil(t, red)
	require.NoError(t, red(context.Background()))
	require.NoError(t, db(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildReadinessChecks_RedisDown(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mock.ExpectPing().SetErr(errors.New("connection refused"))

	_, red := BuildReadinessChecks(nil, redisPing{rdb: client})
	err := red(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis:")
}

func TestBuildReadinessChecks_DBDown(t *testing.T) {
	db, _ := BuildReadinessChecks(fakePinger{err: errors.New("no route")}, nil)
	err := db(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db:")
}

func TestBuildReadinessChecks_NilDependencies(t *testing.T) {
	db, red := BuildReadinessChecks(nil, nil)
	assert.Nil(t, db)
	assert.Nil(t, red)
}
