// Package controlplane implements the Transactional Controller: the
// component that orchestrates the Kernel Engine Adapter, the VIF Registry,
// and the Rule Store with all-or-nothing semantics for every public
// operation.
package controlplane

import (
	"net"
	"strings"

	"github.com/marmos91/mfcd/internal/logger"
	"github.com/marmos91/mfcd/pkg/mfcerr"
	"github.com/marmos91/mfcd/pkg/mrt"
	"github.com/marmos91/mfcd/pkg/rules"
	"github.com/marmos91/mfcd/pkg/vif"
)

// Binding mirrors vif.Binding for callers that only need the controller's
// public surface.
type Binding = vif.Binding

// Controller is the single owner of the Engine handle, the VIF Registry,
// and the Rule Store for the process's full lifetime. Nothing else mutates
// them; the daemon is single-threaded, so Controller needs no locking.
type Controller struct {
	engine   mrt.KernelAPI
	registry *vif.Registry
	store    *rules.Store
}

// New wires a Controller around an already-open kernel engine. Callers
// (cmd/mfcd) are responsible for calling engine.Open before constructing a
// Controller, since MRT_INIT failure is a fatal startup condition the
// caller needs to observe directly, not wrapped in Controller state.
func New(engine mrt.KernelAPI) *Controller {
	return &Controller{
		engine:   engine,
		registry: vif.New(engine),
		store:    rules.New(),
	}
}

// NewWithResolver wires a Controller whose VIF Registry resolves ifindexes
// through resolveIfindex instead of the real OS interface table, letting
// tests stand in interface names that don't exist on the host running the
// test.
func NewWithResolver(engine mrt.KernelAPI, resolveIfindex func(string) (uint32, error)) *Controller {
	return &Controller{
		engine:   engine,
		registry: vif.NewWithResolver(engine, resolveIfindex),
		store:    rules.New(),
	}
}

// undoStep is one reversible side effect recorded during a transaction.
type undoStep func()

// AddRule validates req, then acquires VIFs for iif and every (deduplicated)
// oif, installs the kernel MFC entry, and finally records the rule in the
// Rule Store. Any failure unwinds every side effect performed so far in
// LIFO order before returning the error.
func (c *Controller) AddRule(req rules.Rule) error {
	if err := validateAddRule(req, c.store); err != nil {
		return err
	}

	source := req.Source
	if source == "" {
		source = "0.0.0.0"
	}
	oifs := dedupe(req.OIFs)

	var undo []undoStep
	unwind := func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}

	ifaceOrder := append([]string{req.IIF}, oifs...)
	vifis := make(map[string]uint16, len(ifaceOrder))

	for _, name := range ifaceOrder {
		vifi, err := c.registry.Acquire(name)
		if err != nil {
			unwind()
			return err
		}
		name := name
		undo = append(undo, func() {
			if relErr := c.registry.Release(name); relErr != nil {
				logger.Warn("VIF release failed during unwind", logger.Ifname(name), logger.Err(relErr))
			}
		})
		vifis[name] = vifi
	}

	outputs := make(map[uint16]struct{}, len(oifs))
	for _, name := range oifs {
		outputs[vifis[name]] = struct{}{}
	}

	if err := c.engine.AddMFC(source, req.Group, vifis[req.IIF], outputs); err != nil {
		unwind()
		return err
	}

	rule := rules.Rule{Source: source, Group: req.Group, IIF: req.IIF, OIFs: oifs}
	if err := c.store.Insert(rule); err != nil {
		// Can't happen: validateAddRule already checked for a duplicate
		// key, and nothing else inserts into the store between here and
		// there. Unwind anyway so the invariant (kernel state mirrors the
		// store) never breaks even if that assumption is ever violated.
		_ = c.engine.DelMFC(source, req.Group)
		unwind()
		return err
	}

	logger.Info("rule added", logger.Source(source), logger.Group(req.Group), logger.IIF(req.IIF), logger.OIFs(oifs))
	return nil
}

// DeleteRule removes the rule keyed by (source, group). Kernel and VIF
// cleanup is best-effort once the rule is confirmed to exist: an ENOENT
// from the kernel or a VIF-release failure is logged, not propagated, since
// the rule is considered deleted once the store agrees.
func (c *Controller) DeleteRule(source, group string) error {
	if source == "" {
		source = "0.0.0.0"
	}

	rule, ok := c.store.Get(source, group)
	if !ok {
		return mfcerr.Wrap(mfcerr.KindValidation, "rule not found", mfcerr.ErrNotFound)
	}

	if err := c.engine.DelMFC(source, group); err != nil {
		logger.Warn("MRT_DEL_MFC failed, proceeding with store removal", logger.Source(source), logger.Group(group), logger.Err(err))
	}

	if _, err := c.store.Remove(source, group); err != nil {
		return err
	}

	for _, name := range dedupe(append([]string{rule.IIF}, rule.OIFs...)) {
		if err := c.registry.Release(name); err != nil {
			logger.Warn("VIF release failed during rule deletion", logger.Ifname(name), logger.Err(err))
		}
	}

	logger.Info("rule deleted", logger.Source(source), logger.Group(group))
	return nil
}

// Snapshot returns the current bindings and rule list for the SHOW action.
// It is infallible.
func (c *Controller) Snapshot() (map[string]Binding, []rules.Rule) {
	return c.registry.Snapshot(), c.store.List()
}

// Replay treats every rule in persisted as a fresh AddRule call, used at
// startup to rebuild kernel and in-memory state from the state file. A
// failure on one rule is logged and replay continues with the next.
func (c *Controller) Replay(persisted []rules.Rule) {
	for _, rule := range persisted {
		if err := c.AddRule(rule); err != nil {
			logger.Warn("replay failed for rule", logger.Source(rule.Source), logger.Group(rule.Group), logger.Err(err))
		}
	}
}

// Shutdown releases the kernel engine. Persistence is the caller's
// responsibility (pkg/controlplane/persist.Save against c.Snapshot()) so
// that Shutdown itself never fails the way a file-system error could;
// engine-close errors are logged only.
func (c *Controller) Shutdown() {
	if err := c.engine.Close(); err != nil {
		logger.Warn("engine close failed during shutdown", logger.Err(err))
	}
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func validateAddRule(req rules.Rule, store *rules.Store) error {
	source := req.Source
	if source == "" {
		source = "0.0.0.0"
	}

	if !isIPv4Literal(source) {
		return mfcerr.New(mfcerr.KindValidation, "source is not a valid IPv4 literal")
	}
	if !isIPv4Literal(req.Group) {
		return mfcerr.New(mfcerr.KindValidation, "group is not a valid IPv4 literal")
	}
	if !isMulticast(req.Group) {
		return mfcerr.New(mfcerr.KindValidation, "group must be in the multicast range 224.0.0.0/4")
	}
	if req.IIF == "" {
		return mfcerr.New(mfcerr.KindValidation, "iif is required")
	}
	if len(req.OIFs) == 0 {
		return mfcerr.New(mfcerr.KindValidation, "oifs must be non-empty")
	}
	for _, oif := range req.OIFs {
		if oif == req.IIF {
			return mfcerr.New(mfcerr.KindValidation, "iif must not appear in oifs")
		}
	}
	if _, exists := store.Get(source, req.Group); exists {
		return mfcerr.Wrap(mfcerr.KindValidation, "rule already exists", mfcerr.ErrDuplicateRule)
	}
	return nil
}

func isIPv4Literal(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() != nil && strings.Count(s, ":") == 0
}

func isMulticast(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && ip.IsMulticast()
}
