package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/roach88/shellhist/internal/history"
	"github.com/roach88/shellhist/internal/store"
	"github.com/roach88/shellhist/internal/transport"
)

// Harness is the scenario execution engine.
type Harness struct {
	workDir string
	stores  map[string]*store.Store
	logger  *slog.Logger
}

// Run executes a scenario in workDir and returns the result.
//
// Execution flow:
// 1. Open a fresh store per machine under workDir
// 2. Execute setup steps (any failure aborts the run)
// 3. Execute flow steps, checking each expect clause
// 4. Capture every machine's natural keys
// 5. Evaluate assertions
func Run(ctx context.Context, scenario *Scenario, workDir string) (*Result, error) {
	h := &Harness{
		workDir: workDir,
		stores:  make(map[string]*store.Store, len(scenario.Machines)),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	defer h.close()

	for _, m := range scenario.Machines {
		st, err := store.Open(filepath.Join(workDir, "machines", m+".db"), store.WithHostname(m))
		if err != nil {
			return nil, fmt.Errorf("failed to open store for %s: %w", m, err)
		}
		h.stores[m] = st
	}

	result := NewResult()
	if err := h.executeSetup(ctx, scenario.Setup, result); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	h.executeFlow(ctx, scenario.Flow, result)

	for _, m := range scenario.Machines {
		keys, err := machineKeys(ctx, h.stores[m])
		if err != nil {
			return nil, fmt.Errorf("failed to read state of %s: %w", m, err)
		}
		result.State[m] = keys
	}

	actx := &AssertionContext{Stores: h.stores, Ctx: ctx}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

func (h *Harness) close() {
	for _, st := range h.stores {
		st.Close()
	}
}

// executeSetup runs all setup steps. Setup steps must succeed.
func (h *Harness) executeSetup(ctx context.Context, setup []ActionStep, result *Result) error {
	for i, step := range setup {
		var (
			ev  TraceEvent
			err error
		)
		if step.Insert != nil {
			ev, err = h.insert(ctx, step.Machine, step.Insert)
		} else {
			ev, err = h.seal(ctx, step.Machine, step.Seal)
		}
		if err != nil {
			return fmt.Errorf("setup step %d: %w", i, err)
		}
		result.AddEvent(ev)
	}
	return nil
}

// executeFlow runs the flow steps. A step that fails or misses its
// expectation is recorded in result and the flow continues.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) {
	for i, step := range flow {
		ev, err := h.executeStep(ctx, i, step)
		ev.Failed = err != nil
		result.AddEvent(ev)

		for _, msg := range checkExpect(step, ev, err) {
			result.AddError(fmt.Sprintf("flow[%d] %s on %s: %s", i, step.Action, step.Machine, msg))
		}
	}
}

func (h *Harness) executeStep(ctx context.Context, i int, step FlowStep) (TraceEvent, error) {
	switch step.Action {
	case ActionInsert:
		return h.insert(ctx, step.Machine, step.Insert)
	case ActionSeal:
		return h.seal(ctx, step.Machine, step.Seal)
	case ActionMergeSnapshot:
		return h.mergeSnapshot(ctx, i, step)
	case ActionMergeGarbage:
		return h.mergeGarbage(ctx, i, step)
	case ActionStdioSync:
		return h.stdioSync(ctx, step)
	case ActionDirectorySync:
		return h.directorySync(ctx, step)
	}
	return TraceEvent{Action: step.Action, Machine: step.Machine}, fmt.Errorf("unknown action %q", step.Action)
}

func checkExpect(step FlowStep, ev TraceEvent, err error) []string {
	var msgs []string
	wantErr := step.Expect != nil && step.Expect.Error
	switch {
	case err != nil && !wantErr:
		return []string{err.Error()}
	case err == nil && wantErr:
		return []string{"expected an error, step succeeded"}
	}
	if step.Expect == nil {
		return nil
	}
	if c := step.Expect.Considered; c != nil && *c != ev.Considered {
		msgs = append(msgs, fmt.Sprintf("considered = %d, expected %d", ev.Considered, *c))
	}
	if a := step.Expect.Added; a != nil && *a != ev.Added {
		msgs = append(msgs, fmt.Sprintf("added = %d, expected %d", ev.Added, *a))
	}
	return msgs
}

func (h *Harness) insert(ctx context.Context, machine string, args *InsertArgs) (TraceEvent, error) {
	ev := TraceEvent{Action: ActionInsert, Machine: machine, Considered: 1}
	inserted, err := h.stores[machine].Insert(ctx, args.record())
	if inserted {
		ev.Added = 1
	}
	return ev, err
}

func (h *Harness) seal(ctx context.Context, machine string, args *SealArgs) (TraceEvent, error) {
	ev := TraceEvent{Action: ActionSeal, Machine: machine, Considered: 1}
	sealed, err := h.stores[machine].Seal(ctx, args.Session, args.End, args.Status)
	if sealed {
		ev.Added = 1
	}
	return ev, err
}

func (h *Harness) mergeSnapshot(ctx context.Context, i int, step FlowStep) (TraceEvent, error) {
	ev := TraceEvent{Action: step.Action, Machine: step.Machine, Peer: step.Peer}

	path, err := h.scratchPath(fmt.Sprintf("step-%d-%s.db", i, step.Peer))
	if err != nil {
		return ev, err
	}
	if _, err := h.stores[step.Peer].Snapshot(ctx, path, store.SnapshotOptions{Since: step.Since}); err != nil {
		return ev, err
	}
	merged, err := h.stores[step.Machine].Merge(ctx, path)
	ev.Considered, ev.Added = merged.Considered, merged.Added
	return ev, err
}

func (h *Harness) mergeGarbage(ctx context.Context, i int, step FlowStep) (TraceEvent, error) {
	ev := TraceEvent{Action: step.Action, Machine: step.Machine}

	path, err := h.scratchPath(fmt.Sprintf("step-%d-garbage.db", i))
	if err != nil {
		return ev, err
	}
	if err := os.WriteFile(path, []byte("this is not a database file"), 0o644); err != nil {
		return ev, err
	}
	merged, err := h.stores[step.Machine].Merge(ctx, path)
	ev.Considered, ev.Added = merged.Considered, merged.Added
	return ev, err
}

// stdioSync runs Machine as initiator against Peer as responder over a pair
// of in-process pipes.
func (h *Harness) stdioSync(ctx context.Context, step FlowStep) (TraceEvent, error) {
	mode := transport.ModeBidirectional
	if step.Mode != "" {
		mode = transport.Mode(step.Mode)
	}
	ev := TraceEvent{Action: step.Action, Machine: step.Machine, Peer: step.Peer, Mode: string(mode)}

	tmp, err := h.scratchPath("tmp")
	if err != nil {
		return ev, err
	}
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return ev, err
	}
	initiator := &transport.Peer{Store: h.stores[step.Machine], Since: step.Since, TempDir: tmp, Name: step.Peer, Logger: h.logger}
	responder := &transport.Peer{Store: h.stores[step.Peer], Since: step.Since, TempDir: tmp, Name: step.Machine, Logger: h.logger}

	toResponder, fromInitiator := io.Pipe()
	toInitiator, fromResponder := io.Pipe()

	var (
		wg      sync.WaitGroup
		respRes transport.Result
		respErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		respRes, respErr = responder.Respond(ctx, toResponder, fromResponder)
		fromResponder.Close()
		toResponder.CloseWithError(errors.New("responder finished"))
	}()

	initRes, initErr := initiator.Initiate(ctx, toInitiator, fromInitiator, mode)
	fromInitiator.Close()
	toInitiator.CloseWithError(errors.New("initiator finished"))
	wg.Wait()

	ev.Considered, ev.Added = initRes.Merge.Considered, initRes.Merge.Added
	ev.PeerConsidered, ev.PeerAdded = respRes.Merge.Considered, respRes.Merge.Added
	if initErr != nil {
		return ev, initErr
	}
	return ev, respErr
}

func (h *Harness) directorySync(ctx context.Context, step FlowStep) (TraceEvent, error) {
	ev := TraceEvent{Action: step.Action, Machine: step.Machine}

	d := &transport.Directory{
		Store:    h.stores[step.Machine],
		Dir:      filepath.Join(h.workDir, "shared"),
		Hostname: step.Machine,
		Logger:   h.logger,
	}
	res, err := d.Sync(ctx)
	ev.Considered, ev.Added = res.Totals()
	if err != nil {
		return ev, err
	}
	if n := res.Failed(); n > 0 {
		return ev, fmt.Errorf("%d peer files failed", n)
	}
	return ev, nil
}

// scratchPath returns a path under the run's scratch directory.
func (h *Harness) scratchPath(name string) (string, error) {
	dir := filepath.Join(h.workDir, "scratch")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func (a *InsertArgs) record() history.Record {
	rec := history.Record{
		SessionID:          a.Session,
		FullCommand:        []byte(a.Command),
		Shellname:          a.Shell,
		StartUnixTimestamp: a.Start,
		EndUnixTimestamp:   a.End,
		ExitStatus:         a.Status,
		Hostname:           optionalBytes(a.Host),
		Username:           optionalBytes(a.User),
		WorkingDirectory:   optionalBytes(a.Dir),
	}
	if rec.Shellname == "" {
		rec.Shellname = "zsh"
	}
	return rec
}

func optionalBytes(s *string) []byte {
	if s == nil {
		return nil
	}
	return []byte(*s)
}

// machineKeys renders st's natural keys as sorted strings.
func machineKeys(ctx context.Context, st *store.Store) ([]string, error) {
	recs, err := st.Query(ctx, store.Filter{})
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(recs))
	for _, r := range recs {
		keys = append(keys, keyString(r.Key()))
	}
	sort.Strings(keys)
	return keys, nil
}

// keyString renders a natural key as start|shell|host|user|dir|command.
func keyString(k history.NaturalKey) string {
	start := "-"
	if k.HasStart {
		start = fmt.Sprint(k.StartUnixTimestamp)
	}
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s", start, k.Shellname, k.Hostname, k.Username, k.WorkingDirectory, k.FullCommand)
}
