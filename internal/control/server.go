// Package control hosts the daemon's unix control socket and the
// request vocabulary shared with the stctl client.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/mecattaf/smart-tiling/internal/engine"
	"github.com/mecattaf/smart-tiling/internal/util"
)

// Server hosts the control socket and serves requests.
type Server struct {
	engine     *engine.Engine
	logger     *util.Logger
	reload     func(reason string) error
	socketPath string

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a control server on the default socket path.
func NewServer(eng *engine.Engine, logger *util.Logger, reload func(reason string) error) (*Server, error) {
	path, err := DefaultSocketPath()
	if err != nil {
		return nil, err
	}
	return &Server{
		engine:     eng,
		logger:     logger,
		reload:     reload,
		socketPath: path,
	}, nil
}

// Serve listens on the control socket until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.prepareSocket(); err != nil {
		return err
	}
	s.logger.Infof("control server listening on %s", s.socketPath)
	defer s.cleanup()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		if s.listener != nil {
			s.listener.Close()
		}
		s.mu.Unlock()
	}()

	for {
		conn, err := s.accept(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			s.logger.Errorf("control accept error: %v", err)
			continue
		}
		go s.handle(conn)
	}
}

func (s *Server) accept(ctx context.Context) (net.Conn, error) {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return nil, context.Canceled
	}
	conn, err := listener.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return conn, nil
}

func (s *Server) prepareSocket() error {
	dir := filepath.Dir(s.socketPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create control dir: %w", err)
	}
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on control socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("chmod control socket: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	return nil
}

func (s *Server) cleanup() {
	s.mu.Lock()
	listener := s.listener
	s.listener = nil
	s.mu.Unlock()
	if listener != nil {
		listener.Close()
	}
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warnf("remove control socket: %v", err)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	dec := json.NewDecoder(conn)
	var req Request
	if err := dec.Decode(&req); err != nil {
		s.writeError(conn, fmt.Errorf("decode request: %w", err))
		return
	}
	switch req.Action {
	case ActionStatus:
		s.handleStatus(conn)
	case ActionRules:
		s.handleRules(conn)
	case ActionRelationships:
		s.handleRelationships(conn)
	case ActionMetrics:
		s.writeOK(conn, s.engine.Metrics().Snapshot())
	case ActionReload:
		s.handleReload(conn)
	default:
		s.writeError(conn, fmt.Errorf("unknown action %q", req.Action))
	}
}

func (s *Server) handleStatus(conn net.Conn) {
	st := s.engine.Status()
	s.writeOK(conn, StatusInfo{
		Rules:              st.Rules,
		Pending:            st.Pending,
		Relationships:      st.Relationships,
		DryRun:             st.DryRun,
		Fallback:           st.Fallback,
		RuleTimeoutSeconds: st.RuleTimeout.Seconds(),
	})
}

func (s *Server) handleRules(conn net.Conn) {
	loaded := s.engine.Rules().Rules()
	info := RulesInfo{Rules: make([]RuleInfo, 0, len(loaded))}
	for _, r := range loaded {
		entry := RuleInfo{
			Name:          r.Name,
			ParentAppIDs:  append([]string(nil), r.Parent.AppIDs...),
			ParentClasses: append([]string(nil), r.Parent.Classes...),
			ChildAppIDs:   append([]string(nil), r.Child.AppIDs...),
			ChildClasses:  append([]string(nil), r.Child.Classes...),
			ChildAny:      r.Child.Empty(),
		}
		for _, p := range r.Parent.TitlePatterns {
			entry.ParentTitles = append(entry.ParentTitles, p.Raw)
		}
		for _, p := range r.Child.TitlePatterns {
			entry.ChildTitles = append(entry.ChildTitles, p.Raw)
		}
		for _, a := range r.Actions {
			entry.Actions = append(entry.Actions, fmt.Sprint(a))
		}
		info.Rules = append(info.Rules, entry)
	}
	s.writeOK(conn, info)
}

func (s *Server) handleRelationships(conn net.Conn) {
	live := s.engine.Rules().Relationships()
	info := RelationshipsInfo{Relationships: make([]RelationshipInfo, 0, len(live))}
	for _, rel := range live {
		info.Relationships = append(info.Relationships, RelationshipInfo{
			Rule:      rel.RuleName,
			Workspace: rel.Workspace,
			ParentID:  rel.ParentID,
			ChildID:   rel.ChildID,
			CreatedAt: rel.CreatedAt,
		})
	}
	sort.Slice(info.Relationships, func(i, j int) bool {
		return info.Relationships[i].ChildID < info.Relationships[j].ChildID
	})
	s.writeOK(conn, info)
}

func (s *Server) handleReload(conn net.Conn) {
	if s.reload == nil {
		s.writeError(conn, errors.New("reload not supported"))
		return
	}
	if err := s.reload("control request"); err != nil {
		s.writeError(conn, err)
		return
	}
	s.writeOK(conn, nil)
}

func (s *Server) writeOK(conn net.Conn, data any) {
	resp := Response{Status: StatusOK}
	if data != nil {
		resp.Data = data
	}
	_ = json.NewEncoder(conn).Encode(resp)
}

func (s *Server) writeError(conn net.Conn, err error) {
	resp := Response{Status: StatusError}
	if err != nil {
		resp.Error = err.Error()
	}
	_ = json.NewEncoder(conn).Encode(resp)
}
