// Package ipc implements the Control Plane Server: acquisition of a local
// Unix stream socket, one-request-at-a-time dispatch to the Transactional
// Controller, and graceful shutdown driven by context cancellation.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/mfcd/internal/logger"
	"github.com/marmos91/mfcd/pkg/controlplane"
	"github.com/marmos91/mfcd/pkg/controlplane/persist"
	"github.com/marmos91/mfcd/pkg/mfcerr"
	"github.com/marmos91/mfcd/pkg/rules"
)

// acceptWait bounds how long the accept loop blocks before re-checking for
// a shutdown signal, so shutdown stays responsive without spinning.
const acceptWait = 500 * time.Millisecond

const maxRequestBytes = 4096

// Server owns the control socket for the daemon's full lifetime.
type Server struct {
	socketPath  string
	socketGroup string
	statePath   string
	controller  *controlplane.Controller

	listener     *net.UnixListener
	shutdownOnce sync.Once
}

// New returns a Server bound to the given socket path and controller. Call
// Start to begin serving; Start blocks until ctx is cancelled.
func New(socketPath, socketGroup, statePath string, c *controlplane.Controller) *Server {
	return &Server{
		socketPath:  socketPath,
		socketGroup: socketGroup,
		statePath:   statePath,
		controller:  c,
	}
}

// Start removes any stale socket, binds and listens, then serves requests
// one connection at a time until ctx is cancelled. Once serving has begun,
// return unlinks the socket file, saves the rule set, and shuts the
// controller down; an error while removing the stale socket, binding, or
// setting ownership is returned without doing any of that.
func (s *Server) Start(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return mfcerr.Wrap(mfcerr.KindPersistence, "remove stale socket", err)
	}

	addr, err := net.ResolveUnixAddr("unix", s.socketPath)
	if err != nil {
		return mfcerr.Wrap(mfcerr.KindPersistence, "resolve socket address", err)
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return mfcerr.Wrap(mfcerr.KindPersistence, "bind control socket", err)
	}
	s.listener = ln

	if err := s.applyOwnership(); err != nil {
		_ = ln.Close()
		return err
	}

	logger.Info("control plane server listening", logger.SocketPath(s.socketPath))

	for {
		select {
		case <-ctx.Done():
			return s.stop()
		default:
		}

		_ = ln.SetDeadline(time.Now().Add(acceptWait))
		conn, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return s.stop()
			}
			logger.Warn("accept failed", logger.Err(err))
			continue
		}

		s.handleConnection(conn)
	}
}

func (s *Server) stop() error {
	var stopErr error
	s.shutdownOnce.Do(func() {
		if err := s.listener.Close(); err != nil {
			logger.Warn("control socket close failed", logger.Err(err))
		}
		if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to unlink control socket", logger.Err(err))
		}

		_, list := s.controller.Snapshot()
		persist.Save(s.statePath, list)
		s.controller.Shutdown()

		logger.Info("control plane server stopped")
	})
	return stopErr
}

func (s *Server) applyOwnership() error {
	if err := os.Chmod(s.socketPath, 0660); err != nil {
		return mfcerr.Wrap(mfcerr.KindPersistence, "chmod control socket", err)
	}
	if s.socketGroup == "" {
		return nil
	}
	grp, err := user.LookupGroup(s.socketGroup)
	if err != nil {
		return mfcerr.Wrap(mfcerr.KindPersistence, fmt.Sprintf("lookup group %q", s.socketGroup), err)
	}
	gid, err := strconv.Atoi(grp.Gid)
	if err != nil {
		return mfcerr.Wrap(mfcerr.KindPersistence, "parse group gid", err)
	}
	if err := os.Chown(s.socketPath, -1, gid); err != nil {
		return mfcerr.Wrap(mfcerr.KindPersistence, "chown control socket", err)
	}
	return nil
}

func (s *Server) handleConnection(conn *net.UnixConn) {
	defer conn.Close()

	requestID := uuid.New().String()
	lc := logger.NewLogContext(requestID)
	if pid := peerPID(conn); pid != 0 {
		lc = lc.WithClientPID(pid)
	}
	ctx := logger.WithContext(context.Background(), lc)

	buf := make([]byte, maxRequestBytes)
	n, err := conn.Read(buf)
	if err != nil {
		logger.WarnCtx(ctx, "failed to read request", logger.Err(err))
		return
	}

	resp := s.dispatch(ctx, buf[:n])

	data, err := json.Marshal(resp)
	if err != nil {
		logger.ErrorCtx(ctx, "failed to marshal response", logger.Err(err))
		return
	}
	if _, err := conn.Write(data); err != nil {
		logger.WarnCtx(ctx, "failed to write response", logger.Err(err))
	}
}

func (s *Server) dispatch(ctx context.Context, raw []byte) response {
	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		return statusError(fmt.Sprintf("malformed request: %v", err))
	}

	lc := logger.FromContext(ctx).WithAction(string(req.Action))
	ctx = logger.WithContext(ctx, lc)

	switch req.Action {
	case ActionAddMFC:
		return s.handleAddMFC(ctx, req.Payload)
	case ActionDelMFC:
		return s.handleDelMFC(ctx, req.Payload)
	case ActionShow:
		return s.handleShow(ctx)
	default:
		return statusError(fmt.Sprintf("unknown action %q", req.Action))
	}
}

func (s *Server) handleAddMFC(ctx context.Context, raw json.RawMessage) response {
	var p addMFCPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return statusError(fmt.Sprintf("malformed ADD_MFC payload: %v", err))
	}
	source := p.Source
	if source == "" {
		source = "0.0.0.0"
	}

	if p.DryRun {
		logger.InfoCtx(ctx, "ADD_MFC dry run", logger.Source(source), logger.Group(p.Group), logger.IIF(p.IIF), logger.OIFs(p.OIFs))
		return statusSuccess(nil)
	}

	rule := rules.Rule{Source: source, Group: p.Group, IIF: p.IIF, OIFs: p.OIFs}
	if err := s.controller.AddRule(rule); err != nil {
		logger.WarnCtx(ctx, "ADD_MFC failed", logger.Err(err))
		return statusError(err.Error())
	}
	return statusSuccess(nil)
}

func (s *Server) handleDelMFC(ctx context.Context, raw json.RawMessage) response {
	var p delMFCPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return statusError(fmt.Sprintf("malformed DEL_MFC payload: %v", err))
	}
	source := p.Source
	if source == "" {
		source = "0.0.0.0"
	}

	if p.DryRun {
		logger.InfoCtx(ctx, "DEL_MFC dry run", logger.Source(source), logger.Group(p.Group))
		return statusSuccess(nil)
	}

	if err := s.controller.DeleteRule(source, p.Group); err != nil {
		logger.WarnCtx(ctx, "DEL_MFC failed", logger.Err(err))
		return statusError(err.Error())
	}
	return statusSuccess(nil)
}

func (s *Server) handleShow(ctx context.Context) response {
	bindings, list := s.controller.Snapshot()

	vifMap := make(map[string]vifMapEntry, len(bindings))
	for name, b := range bindings {
		vifMap[name] = vifMapEntry{VIFIndex: b.VIFIndex, Ifindex: b.Ifindex, RefCount: b.RefCount}
	}

	ruleEntries := make([]ruleEntry, 0, len(list))
	for _, r := range list {
		ruleEntries = append(ruleEntries, ruleEntry{Source: r.Source, Group: r.Group, IIF: r.IIF, OIFs: r.OIFs})
	}

	logger.DebugCtx(ctx, "SHOW served", logger.RuleCount(len(ruleEntries)))
	return statusSuccess(&responsePayload{VIFMap: vifMap, MFCRules: ruleEntries})
}

// Bootstrap loads the persisted rule set and replays it through the
// controller, rebuilding kernel and VIF state before the server starts
// accepting connections.
func Bootstrap(statePath string, c *controlplane.Controller) {
	persisted := persist.Load(statePath)
	if len(persisted) == 0 {
		return
	}
	logger.Info("replaying persisted rules", logger.RuleCount(len(persisted)))
	c.Replay(persisted)
}
