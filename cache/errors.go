package cache

import "github.com/ceyewan/courier/xerrors"

var (
	// ErrMiss key 不存在或已过期
	ErrMiss              = xerrors.New("cache: miss")
	ErrConfig            = xerrors.New("cache: invalid config")
	ErrConnectorRequired = xerrors.New("cache: redis connector is required, use WithRedisConnector")
)
