//go:build !sqlite

package storage

import (
	"errors"

	"taskctl/pkg/logx"
)

func init() {
	register(func(Config, logx.Logger) (Store, error) {
		return nil, errors.New("storage: sqlite driver not compiled in (build with -tags sqlite)")
	}, "sqlite", "sqlite3")
}
