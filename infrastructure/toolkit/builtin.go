// Package toolkit provides the builtin tools every runtime deployment
// gets: echo, time, calc, and http_fetch.
package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/felixgeelhaar/agent-runtime/domain/tool"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/clock"
)

// maxFetchBody caps the response size http_fetch will buffer.
const maxFetchBody = 1 << 20

// Echo returns a tool that replies with its input unchanged.
func Echo() tool.Capability {
	return tool.NewBuilder("echo").
		WithDescription("Returns the input unchanged.").
		WithHandler(func(ctx context.Context, input json.RawMessage) (tool.Result, error) {
			return tool.Result{Output: input}, nil
		}).
		MustBuild()
}

// Time returns a tool that reports the current time in RFC 3339.
func Time(clk clock.Clock) tool.Capability {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return tool.NewBuilder("time").
		WithDescription("Returns the current UTC time in RFC 3339 format.").
		WithHandler(func(ctx context.Context, input json.RawMessage) (tool.Result, error) {
			out, err := json.Marshal(clk.Now().Format(time.RFC3339))
			if err != nil {
				return tool.Result{}, err
			}
			return tool.Result{Output: out}, nil
		}).
		MustBuild()
}

type calcInput struct {
	Op string  `json:"op"`
	A  float64 `json:"a"`
	B  float64 `json:"b"`
}

var calcSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"op": {"type": "string", "enum": ["add", "sub", "mul", "div"]},
		"a": {"type": "number"},
		"b": {"type": "number"}
	},
	"required": ["op", "a", "b"]
}`)

// Calc returns a tool that performs one arithmetic operation.
func Calc() tool.Capability {
	return tool.NewBuilder("calc").
		WithDescription("Performs one arithmetic operation on two numbers.").
		WithInputSchema(calcSchema).
		WithHandler(func(ctx context.Context, input json.RawMessage) (tool.Result, error) {
			var in calcInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tool.Result{}, fmt.Errorf("%w: %v", tool.ErrInvalidInput, err)
			}
			var value float64
			switch in.Op {
			case "add":
				value = in.A + in.B
			case "sub":
				value = in.A - in.B
			case "mul":
				value = in.A * in.B
			case "div":
				if in.B == 0 {
					return tool.Result{}, fmt.Errorf("%w: division by zero", tool.ErrInvalidInput)
				}
				value = in.A / in.B
			default:
				return tool.Result{}, fmt.Errorf("%w: unknown op %q", tool.ErrInvalidInput, in.Op)
			}
			out, err := json.Marshal(map[string]float64{"result": value})
			if err != nil {
				return tool.Result{}, err
			}
			return tool.Result{Output: out}, nil
		}).
		MustBuild()
}

type fetchInput struct {
	URL string `json:"url"`
}

type fetchOutput struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

var fetchSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"url": {"type": "string"}
	},
	"required": ["url"]
}`)

// HTTPFetch returns a tool that performs an HTTP GET and reports the
// status and body. It is guarded behind the "net" access tag.
func HTTPFetch(client *http.Client) tool.Capability {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return tool.NewBuilder("http_fetch").
		WithDescription("Fetches a URL over HTTP GET and returns the status and body.").
		WithInputSchema(fetchSchema).
		WithAccessTags("net").
		WithHandler(func(ctx context.Context, input json.RawMessage) (tool.Result, error) {
			var in fetchInput
			if err := json.Unmarshal(input, &in); err != nil {
				return tool.Result{}, fmt.Errorf("%w: %v", tool.ErrInvalidInput, err)
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, in.URL, nil)
			if err != nil {
				return tool.Result{}, fmt.Errorf("%w: %v", tool.ErrInvalidInput, err)
			}
			resp, err := client.Do(req)
			if err != nil {
				return tool.Result{}, err
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
			if err != nil {
				return tool.Result{}, err
			}
			out, err := json.Marshal(fetchOutput{Status: resp.StatusCode, Body: string(body)})
			if err != nil {
				return tool.Result{}, err
			}
			return tool.Result{Output: out}, nil
		}).
		MustBuild()
}

// RegisterBuiltins registers the builtin tools on the given registry.
func RegisterBuiltins(r tool.Registry, clk clock.Clock) error {
	for _, c := range []tool.Capability{Echo(), Time(clk), Calc(), HTTPFetch(nil)} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}
