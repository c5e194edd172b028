package setup

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/bulkflow/internal/metrics"
	"github.com/BaSui01/bulkflow/transport"
)

// Result is the outcome of one step.
type Result int

const (
	// Success means the step did its work, or the next step should.
	Success Result = iota
	// Skip means the resource already exists.
	Skip
	// Failure halts the chain.
	Failure
)

// String implements fmt.Stringer.
func (r Result) String() string {
	switch r {
	case Success:
		return "SUCCESS"
	case Skip:
		return "SKIP"
	case Failure:
		return "FAILURE"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// Step is one idempotent provisioning operation.
type Step interface {
	// Name identifies the step in logs and metrics.
	Name() string
	// CreateRequest builds the request to send.
	CreateRequest() transport.Request
	// ShouldProcess may veto the step based on the previous result.
	ShouldProcess(prior Result) bool
	// OnResponse interprets the response.
	OnResponse(resp transport.Response) Result
}

// BaseStep provides the default ShouldProcess, which always processes.
type BaseStep struct{}

// ShouldProcess implements Step.
func (BaseStep) ShouldProcess(Result) bool { return true }

// StepProcessor sends a step's request and returns its result.
type StepProcessor interface {
	Process(ctx context.Context, step Step) Result
}

// Executor is the blocking part of transport.Client.
type Executor interface {
	Execute(ctx context.Context, req transport.Request, decoder transport.ResponseDecoder, handler *transport.BlockingHandler) (transport.Response, error)
}

// SyncStepProcessor executes steps one at a time, parking on a blocking
// handler. Transport failures become status-0 responses.
type SyncStepProcessor struct {
	executor Executor
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewSyncStepProcessor creates a processor. m may be nil.
func NewSyncStepProcessor(executor Executor, m *metrics.Collector, logger *zap.Logger) *SyncStepProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncStepProcessor{
		executor: executor,
		metrics:  m,
		logger:   logger.With(zap.String("component", "setup")),
	}
}

// Process implements StepProcessor.
func (p *SyncStepProcessor) Process(ctx context.Context, step Step) Result {
	req := step.CreateRequest()
	handler := transport.NewBlockingHandler(transport.FailedResponse)

	resp, err := p.executor.Execute(ctx, req, transport.BasicDecoder{}, handler)
	if err != nil {
		p.logger.Warn("setup step interrupted", zap.String("step", step.Name()), zap.Error(err))
		p.metrics.RecordSetupStep(step.Name(), Failure.String())
		return Failure
	}

	result := step.OnResponse(resp)
	p.metrics.RecordSetupStep(step.Name(), result.String())

	fields := []zap.Field{
		zap.String("step", step.Name()),
		zap.String("method", req.HTTPMethod()),
		zap.String("uri", req.URI()),
		zap.Int("status", resp.ResponseCode()),
		zap.Stringer("result", result),
	}
	if result == Failure {
		p.logger.Error("setup step failed", append(fields, zap.String("message", resp.ErrorMessage()))...)
	} else {
		p.logger.Info("setup step processed", fields...)
	}
	return result
}

// Chain is an ordered, short-circuiting sequence of steps.
type Chain struct {
	name      string
	steps     []Step
	processor StepProcessor
	logger    *zap.Logger
}

// NewChain creates a chain.
func NewChain(name string, processor StepProcessor, logger *zap.Logger, steps ...Step) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{
		name:      name,
		steps:     steps,
		processor: processor,
		logger:    logger.With(zap.String("component", "setup"), zap.String("chain", name)),
	}
}

// Name returns the chain name.
func (c *Chain) Name() string { return c.name }

// Execute runs the steps in order. A vetoed step passes the previous result
// through; Failure stops the chain. The last produced result is returned.
func (c *Chain) Execute(ctx context.Context) Result {
	result := Success
	for _, step := range c.steps {
		if ctx.Err() != nil {
			c.logger.Warn("setup chain cancelled", zap.Error(ctx.Err()))
			return Failure
		}
		if !step.ShouldProcess(result) {
			c.logger.Debug("setup step not processed", zap.String("step", step.Name()), zap.Stringer("prior", result))
			continue
		}

		result = c.processor.Process(ctx, step)
		if result == Failure {
			return Failure
		}
	}
	return result
}
