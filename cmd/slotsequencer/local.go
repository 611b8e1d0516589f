/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/gorm"

	"github.com/friendsincode/slotsequencer/internal/cache"
	"github.com/friendsincode/slotsequencer/internal/catalog"
	"github.com/friendsincode/slotsequencer/internal/db"
	"github.com/friendsincode/slotsequencer/internal/generation"
	"github.com/friendsincode/slotsequencer/internal/store"
	"github.com/friendsincode/slotsequencer/internal/strategydoc"
)

// local is the service graph commands run against when they talk to the
// database directly instead of a running server.
type local struct {
	db        *gorm.DB
	store     *store.Store
	catalog   *catalog.Repository
	generator *generation.Service
	cache     *cache.Cache
}

func openLocal() (*local, error) {
	if err := loadConfig(); err != nil {
		return nil, err
	}
	database, err := db.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(database); err != nil {
		_ = db.Close(database)
		return nil, err
	}

	l := &local{db: database}
	if cfg.CacheEnabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.RedisAddr = cfg.RedisAddr
		cacheCfg.RedisPassword = cfg.RedisPassword
		cacheCfg.RedisDB = cfg.RedisDB
		l.cache = cache.New(cacheCfg, logger)
	}
	// Nothing in a one-shot command listens for events, so writes only drop
	// the shared cache entries running servers read from.
	l.store = store.New(database, nil, l.cache, logger)
	l.catalog = catalog.NewRepository(database, l.cache, logger)
	// Generation reads straight from the database.
	l.generator = generation.NewService(l.store, l.catalog, nil, nil, generation.Options{
		MaxLength:    cfg.MaxSequenceLength,
		PreviewLimit: cfg.PreviewLimit,
		Timeout:      cfg.GenerateTimeout.Std(),
	}, logger)
	return l, nil
}

func (l *local) Close() {
	_ = l.cache.Close()
	_ = db.Close(l.db)
}

// readDocument parses a strategy file. The format comes from the flag, or
// from the file extension when the flag is empty.
func readDocument(path, format string) (strategydoc.Document, error) {
	f, err := documentFormat(path, format)
	if err != nil {
		return strategydoc.Document{}, err
	}
	var data []byte
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return strategydoc.Document{}, err
	}
	doc, err := strategydoc.Unmarshal(data, f)
	if err != nil {
		return strategydoc.Document{}, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func documentFormat(path, format string) (strategydoc.Format, error) {
	if format == "" && path != "-" {
		format = strings.TrimPrefix(filepath.Ext(path), ".")
	}
	return strategydoc.ParseFormat(format)
}
