// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"sync"
	"time"

	"github.com/bdm-project/scentcf/base/log"
	"github.com/bdm-project/scentcf/config"
	"github.com/bdm-project/scentcf/master"
	"github.com/bdm-project/scentcf/model/itemcf"
	"github.com/bdm-project/scentcf/storage/blob"
	"github.com/emicklei/go-restful/v3"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Server serves recommendations from model snapshots kept in a blob store.
type Server struct {
	*RestServer
	store blob.Store

	mu      sync.Mutex
	modTime time.Time
}

func NewServer(cfg *config.Config, store blob.Store, holder *itemcf.Holder) *Server {
	return &Server{
		RestServer: NewRestServer(cfg, holder),
		store:      store,
	}
}

// Reload loads the snapshot if it was written after the one being served. It returns
// true if a new generation was published.
func (s *Server) Reload() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := s.Config.Model.SnapshotName
	modTime, err := s.store.ModTime(name)
	if err != nil {
		return false, errors.Trace(err)
	}
	if !modTime.After(s.modTime) {
		return false, nil
	}
	model, modTime, err := master.LoadSnapshot(s.store, name)
	if err != nil {
		return false, errors.Trace(err)
	}
	generation := s.Holder.Swap(model)
	s.modTime = modTime
	s.PurgeCache()
	SnapshotReloadsTotal.Inc()
	log.Logger().Info("loaded model snapshot",
		zap.String("snapshot", name),
		zap.Int64("generation", generation),
		zap.Int("n_actors", model.Meta().Actors),
		zap.Int("n_items", model.Meta().Items),
		zap.Time("created", model.Meta().Created))
	return true, nil
}

// RunReloadLoop checks for a newer snapshot every reload period until ctx is done.
func (s *Server) RunReloadLoop(ctx context.Context) {
	if s.Config.Server.ReloadPeriod <= 0 {
		return
	}
	ticker := time.NewTicker(s.Config.Server.ReloadPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := s.Reload(); err != nil && !errors.Is(err, errors.NotFound) {
			log.Logger().Error("failed to reload model snapshot", zap.Error(err))
		}
	}
}

// Serve loads the latest snapshot and serves HTTP until ctx is done. Without a snapshot,
// recommendation endpoints answer 503 until one is published.
func (s *Server) Serve(ctx context.Context) error {
	if _, err := s.Reload(); err != nil {
		if !errors.Is(err, errors.NotFound) {
			return errors.Trace(err)
		}
		log.Logger().Warn("model snapshot not found", zap.String("snapshot", s.Config.Model.SnapshotName))
	}
	go s.RunReloadLoop(ctx)
	go func() {
		<-ctx.Done()
		if err := s.Shutdown(context.Background()); err != nil {
			log.Logger().Error("failed to shutdown http server", zap.Error(err))
		}
	}()
	return s.StartHttpServer(restful.NewContainer())
}

func (s *Server) Shutdown(ctx context.Context) error {
	return errors.Trace(s.HttpServer.Shutdown(ctx))
}
