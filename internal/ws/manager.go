// Package ws pushes job-list and metrics snapshots to connected websocket
// clients whenever job state changes. It is a monitoring surface only; the
// result contract stays poll-based.
package ws

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/forgesyte/forgesyte/internal/model"
	"github.com/forgesyte/forgesyte/internal/store"
)

type Manager struct {
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	jobs      *store.SQLite
	log       *logrus.Logger
}

func New(jobs *store.SQLite, log *logrus.Logger) *Manager {
	return &Manager{
		clients: make(map[*websocket.Conn]bool),
		jobs:    jobs,
		log:     log,
	}
}

// AddClient registers a connection, sends it an initial snapshot and reads
// until the peer goes away.
func (m *Manager) AddClient(conn *websocket.Conn) {
	m.clientsMu.Lock()
	m.clients[conn] = true
	total := len(m.clients)
	m.clientsMu.Unlock()

	m.log.WithField("clients", total).Info("websocket client connected")
	m.sendSnapshot(conn)

	go func() {
		defer func() {
			m.clientsMu.Lock()
			delete(m.clients, conn)
			remaining := len(m.clients)
			m.clientsMu.Unlock()
			conn.Close()
			m.log.WithField("clients", remaining).Info("websocket client disconnected")
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends the current snapshot to every client.
func (m *Manager) Broadcast() {
	m.clientsMu.Lock()
	conns := make([]*websocket.Conn, 0, len(m.clients))
	for conn := range m.clients {
		conns = append(conns, conn)
	}
	m.clientsMu.Unlock()

	for _, conn := range conns {
		go m.sendSnapshot(conn)
	}
}

func (m *Manager) sendSnapshot(conn *websocket.Conn) {
	ctx := context.Background()
	jobs, err := m.jobs.ListJobs(ctx, nil, 100)
	if err != nil {
		m.log.WithError(err).Error("snapshot job list failed")
		return
	}
	metrics, err := m.jobs.Metrics(ctx)
	if err != nil {
		m.log.WithError(err).Error("snapshot metrics failed")
		return
	}
	if jobs == nil {
		jobs = []model.Job{}
	}

	update := map[string]any{
		"jobs":    jobs,
		"metrics": metrics,
	}
	if err := conn.WriteJSON(update); err != nil {
		m.log.WithError(err).Warn("websocket write failed")
	}
}

func (m *Manager) ClientCount() int {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()
	return len(m.clients)
}
