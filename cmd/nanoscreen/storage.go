package main

import (
	"context"
	"fmt"

	"github.com/micromdm/nanoscreen/engine/storage"
	storagediskv "github.com/micromdm/nanoscreen/engine/storage/diskv"
	storageinmem "github.com/micromdm/nanoscreen/engine/storage/inmem"
	storagemysql "github.com/micromdm/nanoscreen/engine/storage/mysql"
	storagepgsql "github.com/micromdm/nanoscreen/engine/storage/pgsql"
	storageredis "github.com/micromdm/nanoscreen/engine/storage/redis"

	_ "github.com/go-sql-driver/mysql"
)

func parseStorage(ctx context.Context, name, dsn string) (storage.Storage, error) {
	switch name {
	case "inmem":
		return storageinmem.New(), nil
	case "file", "diskv":
		if dsn == "" {
			dsn = "db"
		}
		return storagediskv.New(dsn), nil
	case "redis":
		if dsn == "" {
			dsn = "redis://localhost:6379/0"
		}
		s, err := storageredis.New(ctx, storageredis.WithURL(dsn))
		if err != nil {
			return nil, fmt.Errorf("creating redis storage: %w", err)
		}
		return s, nil
	case "mysql":
		s, err := storagemysql.New(storagemysql.WithDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("creating mysql storage: %w", err)
		}
		return s, nil
	case "pgsql":
		s, err := storagepgsql.New(ctx, storagepgsql.WithDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("creating pgsql storage: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage: %s", name)
	}
}
