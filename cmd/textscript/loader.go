package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sambeau/textscript/config"
	"github.com/sambeau/textscript/pkg/log"
	"github.com/sambeau/textscript/pkg/textscript/evaluator"
	"github.com/sambeau/textscript/pkg/textscript/loader"
)

// watcher is implemented by loaders that can report changed templates.
type watcher interface {
	Watch(ctx context.Context, onChange func(path string)) error
}

// openLoader creates the include loader selected by cfg and a function
// that releases it.
func openLoader(ctx context.Context, cfg config.LoaderConfig, logger log.Logger) (evaluator.TemplateLoader, func() error, error) {
	noop := func() error { return nil }
	logger = logger.With(slog.String("loader", cfg.Kind))

	switch cfg.Kind {
	case "", "fs":
		l, err := loader.NewFileSystemLoader(cfg.Root,
			loader.WithExtensions(cfg.Extensions...),
			loader.WithCache(cfg.Cache.Size, cfg.Cache.TTL),
			loader.WithFSLogger(logger),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("opening template directory: %w", err)
		}
		return l, l.Close, nil

	case "memory":
		return loader.NewMapLoader(nil), noop, nil

	case "sql":
		l, err := loader.OpenSQLLoader(ctx, cfg.SQL.Driver, cfg.SQL.DSN.Value(),
			loader.WithTable(cfg.SQL.Table),
			loader.WithSQLCache(cfg.Cache.Size, cfg.Cache.TTL),
			loader.WithSQLLogger(logger),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("opening template database: %w", err)
		}
		return l, l.Close, nil

	case "sftp":
		s := cfg.SFTP
		client, conn, err := loader.DialSFTP(loader.SFTPConfig{
			Addr:           s.Addr,
			User:           s.User,
			Password:       s.Password.Value(),
			KeyFile:        s.KeyFile,
			Passphrase:     s.Passphrase.Value(),
			KnownHostsFile: s.KnownHosts,
			Timeout:        s.Timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		l := loader.NewSFTPLoader(client, cfg.Root,
			loader.WithSFTPCache(cfg.Cache.Size, cfg.Cache.TTL),
			loader.WithSFTPLogger(logger),
			loader.WithConnection(conn),
		)
		logger.Debug("connected", slog.String("addr", s.Addr))
		return l, l.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown loader kind %q", cfg.Kind)
}
