package setup

import (
	"encoding/json"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/BaSui01/bulkflow/transport"
)

// existence maps 404 to Success, 200 to Skip and anything else to Failure.
func existence(resp transport.Response) Result {
	switch resp.ResponseCode() {
	case http.StatusNotFound:
		return Success
	case http.StatusOK:
		return Skip
	default:
		return Failure
	}
}

func okOnly(resp transport.Response) Result {
	if resp.ResponseCode() == http.StatusOK {
		return Success
	}
	return Failure
}

// CheckResourceExists probes a resource with HEAD.
type CheckResourceExists struct {
	BaseStep
	Resource string
}

// Name implements Step.
func (s CheckResourceExists) Name() string { return "check-resource-exists" }

// CreateRequest implements Step.
func (s CheckResourceExists) CreateRequest() transport.Request {
	return transport.NewRequest(http.MethodHead, url.PathEscape(s.Resource), nil)
}

// OnResponse implements Step.
func (s CheckResourceExists) OnResponse(resp transport.Response) Result { return existence(resp) }

// CreateBootstrapIndex creates "<alias>-000001" as the write index of alias.
// It only runs when the previous step reported Success.
type CreateBootstrapIndex struct {
	Alias string
}

// Name implements Step.
func (s CreateBootstrapIndex) Name() string { return "create-bootstrap-index" }

// ShouldProcess implements Step.
func (s CreateBootstrapIndex) ShouldProcess(prior Result) bool { return prior == Success }

// CreateRequest implements Step.
func (s CreateBootstrapIndex) CreateRequest() transport.Request {
	body, _ := json.Marshal(map[string]any{
		"aliases": map[string]any{
			s.Alias: map[string]bool{"is_write_index": true},
		},
	})
	return transport.NewRequest(http.MethodPut, url.PathEscape(s.Alias+"-000001"), body)
}

// OnResponse implements Step.
func (s CreateBootstrapIndex) OnResponse(resp transport.Response) Result { return okOnly(resp) }

// PutILMPolicy stores a lifecycle policy unconditionally.
type PutILMPolicy struct {
	BaseStep
	PolicyName string
	Body       []byte
}

// Name implements Step.
func (s PutILMPolicy) Name() string { return "put-ilm-policy" }

// CreateRequest implements Step.
func (s PutILMPolicy) CreateRequest() transport.Request {
	return transport.NewRequest(http.MethodPut, "_ilm/policy/"+url.PathEscape(s.PolicyName), s.Body)
}

// OnResponse implements Step.
func (s PutILMPolicy) OnResponse(resp transport.Response) Result { return okOnly(resp) }

// PutComponentTemplate stores a component template unconditionally.
type PutComponentTemplate struct {
	BaseStep
	TemplateName string
	Body         []byte
}

// Name implements Step.
func (s PutComponentTemplate) Name() string { return "put-component-template" }

// CreateRequest implements Step.
func (s PutComponentTemplate) CreateRequest() transport.Request {
	return transport.NewRequest(http.MethodPut, "_component_template/"+url.PathEscape(s.TemplateName), s.Body)
}

// OnResponse implements Step.
func (s PutComponentTemplate) OnResponse(resp transport.Response) Result { return okOnly(resp) }

// PutIndexTemplate stores a composable index template unconditionally.
type PutIndexTemplate struct {
	BaseStep
	TemplateName string
	Body         []byte
}

// Name implements Step.
func (s PutIndexTemplate) Name() string { return "put-index-template" }

// CreateRequest implements Step.
func (s PutIndexTemplate) CreateRequest() transport.Request {
	return transport.NewRequest(http.MethodPut, "_index_template/"+url.PathEscape(s.TemplateName), s.Body)
}

// OnResponse implements Step.
func (s PutIndexTemplate) OnResponse(resp transport.Response) Result { return okOnly(resp) }

// CheckDataStream probes a data stream with GET.
type CheckDataStream struct {
	BaseStep
	DataStream string
}

// Name implements Step.
func (s CheckDataStream) Name() string { return "check-data-stream" }

// CreateRequest implements Step.
func (s CheckDataStream) CreateRequest() transport.Request {
	return transport.NewRequest(http.MethodGet, "_data_stream/"+url.PathEscape(s.DataStream), nil)
}

// OnResponse implements Step.
func (s CheckDataStream) OnResponse(resp transport.Response) Result { return existence(resp) }

// CreateDataStream creates a data stream after a Success probe.
type CreateDataStream struct {
	DataStream string
}

// Name implements Step.
func (s CreateDataStream) Name() string { return "create-data-stream" }

// ShouldProcess implements Step.
func (s CreateDataStream) ShouldProcess(prior Result) bool { return prior == Success }

// CreateRequest implements Step.
func (s CreateDataStream) CreateRequest() transport.Request {
	return transport.NewRequest(http.MethodPut, "_data_stream/"+url.PathEscape(s.DataStream), nil)
}

// OnResponse implements Step.
func (s CreateDataStream) OnResponse(resp transport.Response) Result { return okOnly(resp) }

// =============================================================================
// 🔗 链工厂
// =============================================================================

// BootstrapIndexChain creates the first rollover index of alias when the
// alias does not exist yet.
func BootstrapIndexChain(processor StepProcessor, alias string, logger *zap.Logger) *Chain {
	return NewChain("bootstrap-index:"+alias, processor, logger,
		CheckResourceExists{Resource: alias},
		CreateBootstrapIndex{Alias: alias},
	)
}

// DataStreamChain creates a data stream when it does not exist yet.
func DataStreamChain(processor StepProcessor, name string, logger *zap.Logger) *Chain {
	return NewChain("data-stream:"+name, processor, logger,
		CheckDataStream{DataStream: name},
		CreateDataStream{DataStream: name},
	)
}

// ILMPolicyChain stores a lifecycle policy.
func ILMPolicyChain(processor StepProcessor, name string, body []byte, logger *zap.Logger) *Chain {
	return NewChain("ilm-policy:"+name, processor, logger, PutILMPolicy{PolicyName: name, Body: body})
}

// ComponentTemplateChain stores a component template.
func ComponentTemplateChain(processor StepProcessor, name string, body []byte, logger *zap.Logger) *Chain {
	return NewChain("component-template:"+name, processor, logger, PutComponentTemplate{TemplateName: name, Body: body})
}

// IndexTemplateChain stores an index template.
func IndexTemplateChain(processor StepProcessor, name string, body []byte, logger *zap.Logger) *Chain {
	return NewChain("index-template:"+name, processor, logger, PutIndexTemplate{TemplateName: name, Body: body})
}
