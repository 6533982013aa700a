package ratelimit

import "github.com/ceyewan/courier/xerrors"

var (
	ErrConfig       = xerrors.New("ratelimit: invalid config")
	ErrKeyEmpty     = xerrors.New("ratelimit: key is empty")
	ErrInvalidLimit = xerrors.New("ratelimit: invalid limit")
)
