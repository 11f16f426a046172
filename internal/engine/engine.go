// Package engine implements the execution engine (C7): topological
// scheduling, parallel fan-out/join over cloned context snapshots, timeouts,
// retries, circuit breakers, and cancellation.
//
// Grounded in mbflow's internal/application/executor/engine.go for the
// overall per-node protocol (resolve -> breaker permit -> timeout -> retry
// -> commit/observe) and executeWave's goroutine+WaitGroup fan-out, and in
// mbflow's planner.go for join-strategy handling (WaitAll/WaitAny). Departs
// from mbflow's generic wave scheduler (which treats the whole graph as one
// flat set of in-degree-ordered waves) in favor of a direct edge walk,
// since a Workflow here names an explicit outgoing edge per node rather
// than an arbitrary multi-predecessor DAG; parallel join
// points are instead detected as the nearest node reachable from every
// fan-out branch.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/flowcore/flowcore/internal/breaker"
	"github.com/flowcore/flowcore/internal/clock"
	"github.com/flowcore/flowcore/internal/errs"
	"github.com/flowcore/flowcore/internal/node"
	"github.com/flowcore/flowcore/internal/retry"
	"github.com/flowcore/flowcore/internal/taskctx"
	"github.com/flowcore/flowcore/pkg/workflow"
)

// Observer receives lifecycle notifications. Callbacks must be
// non-blocking; the engine invokes them synchronously on the calling
// goroutine.
type Observer interface {
	NodeStarted(workflowID, nodeName string)
	NodeSucceeded(workflowID, nodeName string, duration time.Duration)
	NodeFailed(workflowID, nodeName string, err error)
	WorkflowCompleted(workflowID string, status taskctx.Status)
}

// Options configures an Engine instance.
type Options struct {
	Registry   *node.Registry
	Breakers   *breaker.Registry
	Observers  []Observer
	Clock      clock.Clock
	WorkerPool int // bounded concurrency for node execution; default 16
}

func (o Options) withDefaults() Options {
	if o.Registry == nil {
		o.Registry = node.NewRegistry()
	}
	if o.Breakers == nil {
		o.Breakers = breaker.NewRegistry(breaker.Config{})
	}
	if o.Clock == nil {
		o.Clock = clock.System{}
	}
	if o.WorkerPool <= 0 {
		o.WorkerPool = 16
	}
	return o
}

// Engine executes compiled workflows.
type Engine struct {
	registry  *node.Registry
	breakers  *breaker.Registry
	observers []Observer
	clock     clock.Clock
	sem       chan struct{}
}

// New constructs an Engine.
func New(opts Options) *Engine {
	opts = opts.withDefaults()
	return &Engine{
		registry:  opts.Registry,
		breakers:  opts.Breakers,
		observers: opts.Observers,
		clock:     opts.Clock,
		sem:       make(chan struct{}, opts.WorkerPool),
	}
}

// RunOptions configures one execution.
type RunOptions struct {
	WorkflowID             string
	SessionID              string
	ContinueOnErrorDefault bool
	BudgetCheck            func(nodeName string) error // optional hook invoked before each node
}

// Run executes wf against input, producing a terminal TaskContext. A node's
// terminal failure is returned as an *errs.Error annotated with
// node_id/workflow_id context for observers and callers to key off of; an
// error from RunOptions.BudgetCheck is returned unchanged.
func (e *Engine) Run(ctx context.Context, wf *workflow.Workflow, input any, opts RunOptions) (*taskctx.TaskContext, error) {
	if !wf.Validated() {
		return nil, errs.Configuration("workflow was not built through Builder.Build")
	}
	wfID := opts.WorkflowID
	if wfID == "" {
		wfID = wf.Name()
	}
	tc := taskctx.New(wfID, input)

	last, err := e.execNode(ctx, wf, tc, opts, wf.Start(), nil)
	if err != nil {
		status := taskctx.Failed
		if kind, ok := errs.KindOf(err); ok && kind == errs.KindCancelled {
			status = taskctx.Cancelled
		}
		_ = tc.Finalize(status, err)
		e.notifyCompleted(wfID, status)
		return tc, err
	}
	_ = last
	_ = tc.Finalize(taskctx.Completed, nil)
	e.notifyCompleted(wfID, taskctx.Completed)
	return tc, nil
}

// execNode walks edges starting at current, executing each node in turn,
// until it reaches a terminal node (no outgoing edges) or a node present
// in stopAt (used by parallel branch execution to stop just before a
// shared join point). It returns the name of the last node reached.
func (e *Engine) execNode(ctx context.Context, wf *workflow.Workflow, tc *taskctx.TaskContext, opts RunOptions, current string, stopAt map[string]bool) (string, error) {
	for {
		if ctx.Err() != nil {
			return "", errs.Cancelled("execution cancelled").WithContext("node_id", current)
		}
		if stopAt != nil && stopAt[current] {
			return current, nil
		}
		if err := e.runOneNode(ctx, wf, tc, opts, current); err != nil {
			return "", err
		}

		edges := wf.OutgoingEdges(current)
		if len(edges) == 0 {
			return current, nil
		}
		edge := edges[0]
		switch edge.Kind {
		case workflow.Sequential:
			current = edge.To
		case workflow.Conditional:
			next, err := evaluateConditional(tc, edge)
			if err != nil {
				return "", err
			}
			current = next
		case workflow.Parallel:
			joinNode, err := e.execParallel(ctx, wf, tc, opts, edge)
			if err != nil {
				return "", err
			}
			if joinNode == "" {
				return current, nil
			}
			current = joinNode
		}
	}
}

// runOneNode implements the per-node protocol: resolve, breaker permit,
// timeout, retry loop, commit/observe, continue-on-error.
func (e *Engine) runOneNode(ctx context.Context, wf *workflow.Workflow, tc *taskctx.TaskContext, opts RunOptions, name string) error {
	impl, err := e.registry.MustGet(name)
	if err != nil {
		return err.(*errs.Error).WithContext("node_id", name).WithContext("workflow_id", tc.WorkflowID)
	}
	meta := wf.Metadata(name)

	if opts.BudgetCheck != nil {
		if err := opts.BudgetCheck(name); err != nil {
			return err
		}
	}

	e.notifyStarted(tc.WorkflowID, name)
	started := e.clock.Now()

	call := func(ctx context.Context) error {
		return e.invokeNode(ctx, impl, tc)
	}

	if meta.BreakerKey != "" {
		br := e.breakers.GetWithConfig(meta.BreakerKey, meta.BreakerConfig)
		inner := call
		call = func(ctx context.Context) error { return br.Execute(ctx, inner) }
	}

	timeout := meta.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timedCall := func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		errCh := make(chan error, 1)
		go func() { errCh <- call(tctx) }()
		select {
		case <-tctx.Done():
			if tctx.Err() == context.DeadlineExceeded {
				return errs.TimeoutErr("node:"+name, timeout)
			}
			return errs.Cancelled("node execution cancelled")
		case err := <-errCh:
			return err
		}
	}

	executor := retry.NewExecutor(meta.RetryPolicy)
	runErr := executor.Execute(ctx, timedCall)
	duration := e.clock.Now().Sub(started)

	if runErr != nil {
		fe, ok := runErr.(*errs.Error)
		if !ok {
			fe = errs.Internal(runErr)
		}
		fe = fe.WithContext("node_id", name).WithContext("workflow_id", tc.WorkflowID)
		e.notifyFailed(tc.WorkflowID, name, fe)
		if meta.ContinueOnError || (opts.ContinueOnErrorDefault && !metaHasExplicitContinue(meta)) {
			return nil
		}
		return fe
	}

	e.notifySucceeded(tc.WorkflowID, name, duration)
	return nil
}

// metaHasExplicitContinue is a placeholder hook: today NodeMetadata has a
// single ContinueOnError bool with no tri-state "unset" marker, so the
// workflow-level default only applies when the node left it at the zero
// value. A per-node override wins over the workflow default only when
// explicitly set to true.
func metaHasExplicitContinue(meta workflow.NodeMetadata) bool {
	return meta.ContinueOnError
}

// invokeNode runs impl, bounded by the engine's worker-pool semaphore so
// that no more than Options.WorkerPool node bodies execute at once across
// the whole Engine, including every branch of every parallel fan-out.
func (e *Engine) invokeNode(ctx context.Context, impl *node.Implementation, tc *taskctx.TaskContext) error {
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return errs.Cancelled("execution cancelled while waiting for a worker slot")
	}
	defer func() { <-e.sem }()

	switch {
	case impl.Async != nil:
		_, err := impl.Async.ProcessAsync(ctx, tc)
		return err
	case impl.Sync != nil:
		done := make(chan error, 1)
		go func() {
			_, err := impl.Sync.Process(tc)
			done <- err
		}()
		select {
		case <-ctx.Done():
			return errs.Cancelled("sync node execution cancelled")
		case err := <-done:
			return err
		}
	default:
		return errs.Configuration("node " + impl.Name() + " has no sync or async implementation")
	}
}

func (e *Engine) notifyStarted(wfID, name string) {
	for _, o := range e.observers {
		o.NodeStarted(wfID, name)
	}
}

func (e *Engine) notifySucceeded(wfID, name string, d time.Duration) {
	for _, o := range e.observers {
		o.NodeSucceeded(wfID, name, d)
	}
}

func (e *Engine) notifyFailed(wfID, name string, err error) {
	for _, o := range e.observers {
		o.NodeFailed(wfID, name, err)
	}
}

func (e *Engine) notifyCompleted(wfID string, status taskctx.Status) {
	for _, o := range e.observers {
		o.WorkflowCompleted(wfID, status)
	}
}

// execParallel fans out edge's targets onto cloned context snapshots,
// waits per edge.Join, merges branch writes into tc under the
// lexicographic-first-branch-wins rule, and returns the nearest shared
// join node (empty if branches never reconverge).
func (e *Engine) execParallel(ctx context.Context, wf *workflow.Workflow, tc *taskctx.TaskContext, opts RunOptions, edge workflow.Edge) (string, error) {
	targets := edge.Targets
	if len(targets) == 0 {
		return "", nil
	}
	joinNode := findJoinNode(wf, targets)
	stopAt := map[string]bool{}
	if joinNode != "" {
		stopAt[joinNode] = true
	}

	type branchResult struct {
		tc       *taskctx.TaskContext
		lastNode string
		err      error
	}
	results := make([]branchResult, len(targets))
	snapshots := make([]*taskctx.TaskContext, len(targets))
	for i := range targets {
		snap, err := tc.Snapshot()
		if err != nil {
			return "", err
		}
		snapshots[i] = snap
	}

	branchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var mu sync.Mutex
	anySucceeded := false
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()
			last, err := e.execNode(branchCtx, wf, snapshots[i], opts, target, stopAt)
			results[i] = branchResult{tc: snapshots[i], lastNode: last, err: err}
			if err == nil && edge.Join == workflow.WaitAny {
				mu.Lock()
				first := !anySucceeded
				anySucceeded = true
				mu.Unlock()
				if first {
					cancel()
				}
			}
		}(i, target)
	}
	wg.Wait()

	order := lexicographicOrder(targets)
	if edge.Join == workflow.WaitAny {
		winner := -1
		for _, idx := range order {
			if results[idx].err == nil {
				winner = idx
				break
			}
		}
		if winner == -1 {
			return "", results[0].err
		}
		tc.MergeFrom(results[winner].tc, winner)
		return joinNode, nil
	}

	for _, r := range results {
		if r.err != nil {
			return "", r.err
		}
	}
	for _, idx := range order {
		tc.MergeFrom(results[idx].tc, idx)
	}
	return joinNode, nil
}

func lexicographicOrder(targets []string) []int {
	idx := make([]int, len(targets))
	for i := range idx {
		idx[i] = i
	}
	for i := 1; i < len(idx); i++ {
		for j := i; j > 0 && targets[idx[j-1]] > targets[idx[j]]; j-- {
			idx[j-1], idx[j] = idx[j], idx[j-1]
		}
	}
	return idx
}

// findJoinNode returns the nearest node reachable from every branch start
// in targets (the candidate whose largest BFS depth from any branch start is
// smallest), or "" if no common descendant exists.
func findJoinNode(wf *workflow.Workflow, targets []string) string {
	if len(targets) < 2 {
		return ""
	}
	depthSets := make([]map[string]int, len(targets))
	for i, t := range targets {
		depthSets[i] = bfsDepths(wf, t)
	}
	best := ""
	bestScore := -1
	for candidate, d0 := range depthSets[0] {
		maxDepth := d0
		ok := true
		for i := 1; i < len(depthSets); i++ {
			d, present := depthSets[i][candidate]
			if !present {
				ok = false
				break
			}
			if d > maxDepth {
				maxDepth = d
			}
		}
		if !ok {
			continue
		}
		if bestScore == -1 || maxDepth < bestScore {
			best = candidate
			bestScore = maxDepth
		}
	}
	return best
}

func bfsDepths(wf *workflow.Workflow, start string) map[string]int {
	depths := map[string]int{start: 0}
	queue := []string{start}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, e := range wf.OutgoingEdges(n) {
			for _, t := range outgoingTargets(e) {
				if _, seen := depths[t]; !seen {
					depths[t] = depths[n] + 1
					queue = append(queue, t)
				}
			}
		}
	}
	return depths
}

func outgoingTargets(e workflow.Edge) []string {
	switch e.Kind {
	case workflow.Sequential:
		return []string{e.To}
	case workflow.Conditional:
		out := make([]string, 0, len(e.Branches)+1)
		for _, b := range e.Branches {
			out = append(out, b.To)
		}
		if e.Default != "" {
			out = append(out, e.Default)
		}
		return out
	case workflow.Parallel:
		return append([]string{}, e.Targets...)
	default:
		return nil
	}
}
