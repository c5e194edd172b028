package setup

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/bulkflow/types"
)

// Resource is a named server-side object with an inline JSON body.
type Resource struct {
	Name string `yaml:"name"`
	Body string `yaml:"body"`
}

// Config 描述启动前需要准备的服务端资源
type Config struct {
	// Enabled 为 false 时跳过全部初始化
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	ILMPolicies        []Resource `yaml:"ilm_policies"`
	ComponentTemplates []Resource `yaml:"component_templates"`
	IndexTemplates     []Resource `yaml:"index_templates"`
	BootstrapAliases   []string   `yaml:"bootstrap_aliases" env:"BOOTSTRAP_ALIASES"`
	DataStreams        []string   `yaml:"data_streams" env:"DATA_STREAMS"`

	// Concurrency 同一阶段内并发执行的链数
	Concurrency int `yaml:"concurrency" env:"CONCURRENCY"`

	// ReusePolicies 决定初始化使用的传输配置如何复用主目标配置
	ReusePolicies []string `yaml:"reuse_policies" env:"REUSE_POLICIES"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Concurrency:   4,
		ReusePolicies: []string{"server-list", "security"},
	}
}

// Validate 校验资源定义
func (c Config) Validate() error {
	for _, group := range [][]Resource{c.ILMPolicies, c.ComponentTemplates, c.IndexTemplates} {
		for _, r := range group {
			if r.Name == "" {
				return types.NewConfigurationError("setup resource without name")
			}
			if !json.Valid([]byte(r.Body)) {
				return types.NewConfigurationError("setup resource %q has an invalid JSON body", r.Name)
			}
		}
	}
	return nil
}

// IsEmpty reports whether nothing needs to be provisioned.
func (c Config) IsEmpty() bool {
	return len(c.ILMPolicies) == 0 && len(c.ComponentTemplates) == 0 && len(c.IndexTemplates) == 0 &&
		len(c.BootstrapAliases) == 0 && len(c.DataStreams) == 0
}

// Provisioner runs the configured chains in dependency order: policies and
// component templates, then index templates, then aliases and data streams.
// Chains within one stage run concurrently.
type Provisioner struct {
	config    Config
	processor StepProcessor
	logger    *zap.Logger
}

// NewProvisioner creates a provisioner.
func NewProvisioner(config Config, processor StepProcessor, logger *zap.Logger) (*Provisioner, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if processor == nil {
		return nil, types.NewConfigurationError("setup provisioner requires a step processor")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &Provisioner{
		config:    config,
		processor: processor,
		logger:    logger.With(zap.String("component", "provisioner")),
	}, nil
}

// Stages returns the chains grouped by stage.
func (p *Provisioner) Stages() [][]*Chain {
	var first, second, third []*Chain
	for _, r := range p.config.ILMPolicies {
		first = append(first, ILMPolicyChain(p.processor, r.Name, []byte(r.Body), p.logger))
	}
	for _, r := range p.config.ComponentTemplates {
		first = append(first, ComponentTemplateChain(p.processor, r.Name, []byte(r.Body), p.logger))
	}
	for _, r := range p.config.IndexTemplates {
		second = append(second, IndexTemplateChain(p.processor, r.Name, []byte(r.Body), p.logger))
	}
	for _, alias := range p.config.BootstrapAliases {
		third = append(third, BootstrapIndexChain(p.processor, alias, p.logger))
	}
	for _, ds := range p.config.DataStreams {
		third = append(third, DataStreamChain(p.processor, ds, p.logger))
	}

	var stages [][]*Chain
	for _, s := range [][]*Chain{first, second, third} {
		if len(s) > 0 {
			stages = append(stages, s)
		}
	}
	return stages
}

// Run executes every stage. The first failed chain cancels its stage and
// is reported as a SETUP_STEP error.
func (p *Provisioner) Run(ctx context.Context) error {
	for i, stage := range p.Stages() {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.config.Concurrency)

		for _, chain := range stage {
			g.Go(func() error {
				result := chain.Execute(gctx)
				if result == Failure {
					return types.NewError(types.ErrSetupStep, fmt.Sprintf("setup chain %s failed", chain.Name()))
				}
				p.logger.Debug("setup chain finished", zap.String("chain", chain.Name()), zap.Stringer("result", result))
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			p.logger.Error("provisioning failed", zap.Int("stage", i), zap.Error(err))
			return err
		}
	}

	p.logger.Info("provisioning finished")
	return nil
}
