package main

import (
	"errors"
	"fmt"
	"log"

	"hellblock.ai/internal/compress"
	"hellblock.ai/internal/config"
	"hellblock.ai/internal/host/localhost"
	persistlog "hellblock.ai/internal/persistence/log"
	"hellblock.ai/internal/storage/adapter"
	"hellblock.ai/internal/storage/adapter/fsadapter"
	"hellblock.ai/internal/storage/adapter/kvadapter"
	"hellblock.ai/internal/storage/codec"
	"hellblock.ai/internal/storage/events"
	"hellblock.ai/internal/storage/manager"
)

type runtime struct {
	host    *localhost.Host
	hub     *events.Hub
	journal *persistlog.EventJournal
	manager *manager.Manager
}

func openRuntime(cfg config.Config, logger *log.Logger) (*runtime, error) {
	comp, err := compress.Lookup(cfg.Storage.Compression)
	if err != nil {
		return nil, err
	}
	cc, err := codec.NewChunkCodec(comp, cfg.Storage.Namespace)
	if err != nil {
		return nil, err
	}
	host, err := localhost.Open(localhost.Options{
		Root:           cfg.Host.Root,
		BlobEngine:     cfg.Host.BlobEngine,
		PersistentData: cfg.Host.PersistentData,
		DBPath:         cfg.Host.DBPath,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}
	rt := &runtime{host: host, hub: events.NewHub()}
	if cfg.Journal.Enabled {
		rt.journal = persistlog.NewEventJournal(cfg.Journal.Dir, logger)
		rt.hub.AddSink(rt.journal)
	}

	opts := adapter.Options{
		Host:      host.API(),
		Codec:     cc,
		Namespace: cfg.Storage.Namespace,
		Generator: cfg.Storage.Generator,
		Logger:    logger,
		Events:    rt.hub,
	}
	fsa, err := fsadapter.New(cfg.Storage.RegionExt, opts)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	kva, err := kvadapter.New(opts)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	chosen, err := adapter.ByName(cfg.Storage.Backend, fsa, kva)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	logger.Printf("storage backend=%s compression=%s blob_engine=%s", chosen.Name(), comp.Name(), cfg.Host.BlobEngine)

	m, err := manager.New(manager.Options{
		Adapter:          chosen,
		AutosaveInterval: cfg.Storage.AutosaveInterval,
		Logger:           logger,
	})
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.manager = m
	rt.hub.AddSink(m)
	return rt, nil
}

// Close saves every world, then releases the journal and host stores.
func (rt *runtime) Close() error {
	var errs []error
	if rt.manager != nil {
		if err := rt.manager.Close(); err != nil {
			errs = append(errs, fmt.Errorf("final save: %w", err))
		}
	}
	if rt.journal != nil {
		if err := rt.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("journal: %w", err))
		}
	}
	if err := rt.host.Close(); err != nil {
		errs = append(errs, fmt.Errorf("host: %w", err))
	}
	return errors.Join(errs...)
}
