package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kebairia/dbsnap/internal/operations"
)

const playersOnlineQuery = "SELECT COUNT(*) AS count FROM `char` WHERE online = 1"

const (
	statusOnline  = "online"
	statusOffline = "offline"
)

type serviceStatus struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (s *Server) handleUptime(w http.ResponseWriter, _ *http.Request) {
	up := s.now().Sub(s.startedAt)
	if up < 0 {
		up = 0
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"uptime": map[string]any{
			"seconds":      int64(up / time.Second),
			"milliseconds": up.Milliseconds(),
			"formatted":    formatUptime(up),
		},
	})
}

// formatUptime renders d as "Xd Xh Xm Xs".
func formatUptime(d time.Duration) string {
	total := int64(d / time.Second)
	days := total / 86400
	hours := total % 86400 / 3600
	minutes := total % 3600 / 60
	seconds := total % 60
	return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var (
		mu      sync.Mutex
		results = make(map[string]serviceStatus, len(s.services))
	)
	g, ctx := errgroup.WithContext(r.Context())
	for name, port := range s.services {
		name, port := name, port
		g.Go(func() error {
			status := s.probe(ctx, port)
			mu.Lock()
			results[name] = serviceStatus{Status: status}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	writeJSON(w, http.StatusOK, map[string]any{
		"timestamp": s.now().UTC().Format(time.RFC3339Nano),
		"services":  results,
	})
}

// probe reports whether a TCP connection to the service port can be opened
// within the probe timeout.
func (s *Server) probe(ctx context.Context, port int) string {
	ctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(s.serviceHost, strconv.Itoa(port)))
	if err != nil {
		return statusOffline
	}
	_ = conn.Close()
	return statusOnline
}

func (s *Server) handlePlayers(w http.ResponseWriter, r *http.Request) {
	rs, err := s.querier.Query(r.Context(), playersOnlineQuery)
	if err != nil {
		s.writeError(w, "failed to fetch online players", err)
		return
	}
	online, err := scalarInt(rs, "count")
	if err != nil {
		s.writeError(w, "failed to fetch online players", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"online": online})
}

func (s *Server) handleBackups(w http.ResponseWriter, _ *http.Request) {
	archives, err := operations.ListArchives(s.fs, s.backupsDir)
	if err != nil {
		s.writeError(w, "failed to list backups", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"backups": archives})
}
