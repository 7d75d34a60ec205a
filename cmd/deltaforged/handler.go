// Copyright 2026 The Deltaforge Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/deltaforge/deltaforge/lib/clock"
	"github.com/deltaforge/deltaforge/lib/delta"
	"github.com/deltaforge/deltaforge/lib/snapshot"
	"github.com/deltaforge/deltaforge/lib/syncer"
	"github.com/deltaforge/deltaforge/lib/wire"
)

// Connection timeout constants.
const (
	// readTimeout is how long we wait for the client to send its
	// request envelope. A well-behaved client sends the request
	// immediately after connecting.
	readTimeout = 30 * time.Second

	// writeTimeout is how long we wait for a response envelope to be
	// written. Payload streaming extends the deadline per write.
	writeTimeout = 10 * time.Second

	// maxContentSize bounds the dataset content accepted by put.
	maxContentSize = 1 << 30
)

// Daemon holds the state shared by all connections.
type Daemon struct {
	store       *snapshot.Store
	coordinator *syncer.Coordinator
	clock       clock.Clock
	logger      *slog.Logger
}

// serve accepts connections on the Unix socket and dispatches
// requests. Blocks until ctx is cancelled, then stops accepting new
// connections and waits for active handlers to complete.
func (d *Daemon) serve(ctx context.Context, socketPath string) error {
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", socketPath, err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(socketPath)
	}()

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	d.logger.Info("socket listening", "path", socketPath)

	var activeConnections sync.WaitGroup

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			d.logger.Error("accept failed", "error", err)
			continue
		}

		activeConnections.Add(1)
		go func() {
			defer activeConnections.Done()
			d.handleConnection(ctx, conn)
		}()
	}

	activeConnections.Wait()
	return nil
}

// handleConnection processes one request per connection. The request
// envelope determines the action; put requests may be followed by a
// framed content stream, and large sync responses are followed by a
// framed payload stream.
func (d *Daemon) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	var request wire.Request
	if err := wire.ReadMessage(conn, &request); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return
		}
		d.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if err := request.Validate(); err != nil {
		d.writeError(conn, err.Error())
		return
	}

	switch request.Action {
	case wire.ActionSync:
		d.handleSync(ctx, conn, request)
	case wire.ActionPut:
		d.handlePut(ctx, conn, request)
	case wire.ActionStatus:
		d.handleStatus(ctx, conn)
	}
}

func (d *Daemon) handleSync(ctx context.Context, conn net.Conn, request wire.Request) {
	result, err := d.coordinator.Sync(ctx, request.BaseVersion)
	if err != nil {
		if errors.Is(err, snapshot.ErrEmptyStore) {
			d.writeError(conn, "no snapshots available; produce one with put first")
			return
		}
		d.logger.Error("sync failed", "base_version", request.BaseVersion, "error", err)
		d.writeError(conn, "internal error")
		return
	}

	response := wire.Response{
		Kind:             result.Kind.String(),
		ResultingVersion: result.ResultingVersion,
		Size:             int64(len(result.Payload)),
	}
	if len(result.Payload) <= wire.SmallPayloadThreshold {
		response.Payload = result.Payload
		d.writeResponse(conn, response)
		return
	}

	// Large payload: envelope first, then the framed stream.
	if !d.writeResponse(conn, response) {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout + time.Duration(len(result.Payload)/(1<<20))*time.Second))
	if err := wire.WritePayload(conn, result.Payload); err != nil {
		d.logger.Debug("payload stream aborted", "error", err)
	}
}

func (d *Daemon) handlePut(ctx context.Context, conn net.Conn, request wire.Request) {
	content := request.Data
	if content == nil {
		if request.Size > maxContentSize {
			d.writeError(conn, fmt.Sprintf("content exceeds %d byte limit", maxContentSize))
			return
		}
		// The content follows the envelope as a framed stream.
		conn.SetReadDeadline(time.Now().Add(readTimeout + time.Duration(request.Size/(1<<20))*time.Second))
		streamed, err := wire.ReadPayload(conn, request.Size)
		if err != nil {
			d.writeError(conn, fmt.Sprintf("reading content stream: %v", err))
			return
		}
		if int64(len(streamed)) != request.Size {
			d.writeError(conn, fmt.Sprintf("content stream delivered %d bytes, expected %d", len(streamed), request.Size))
			return
		}
		content = streamed
	}

	stored, err := d.store.Put(ctx, content)
	if err != nil {
		d.logger.Error("put failed", "size", len(content), "error", err)
		d.writeError(conn, "internal error")
		return
	}

	d.logger.Info("snapshot stored",
		"version", stored.Version,
		"size", len(stored.Content),
	)
	d.writeResponse(conn, wire.Response{
		Version:     stored.Version,
		ContentHash: delta.FormatHash(stored.ContentHash),
	})
}

func (d *Daemon) handleStatus(ctx context.Context, conn net.Conn) {
	status := &wire.Status{}

	latest, err := d.store.Latest(ctx)
	switch {
	case err == nil:
		status.LatestVersion = latest.Version
		oldest, err := d.store.OldestVersion(ctx)
		if err != nil {
			d.logger.Error("status query failed", "error", err)
			d.writeError(conn, "internal error")
			return
		}
		status.OldestVersion = oldest
	case errors.Is(err, snapshot.ErrEmptyStore):
		// Empty store reports zero versions rather than an error.
	default:
		d.logger.Error("status query failed", "error", err)
		d.writeError(conn, "internal error")
		return
	}

	stats := d.coordinator.CacheStats()
	status.CacheEntries = stats.Entries
	status.CacheBytes = stats.Bytes
	status.CacheHits = stats.Hits
	status.CacheMisses = stats.Misses
	status.CacheEvictions = stats.Evictions

	d.writeResponse(conn, wire.Response{Status: status})
}

// writeResponse writes a response envelope. Returns false when the
// write failed and the connection should be abandoned.
func (d *Daemon) writeResponse(conn net.Conn, response wire.Response) bool {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := wire.WriteMessage(conn, response); err != nil {
		d.logger.Debug("failed to write response", "error", err)
		return false
	}
	return true
}

func (d *Daemon) writeError(conn net.Conn, message string) {
	d.writeResponse(conn, wire.Response{Error: message})
}
