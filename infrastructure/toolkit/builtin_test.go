package toolkit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/felixgeelhaar/agent-runtime/domain/tool"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/clock"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/registry"
)

func TestEcho(t *testing.T) {
	res, err := Echo().Execute(context.Background(), json.RawMessage(`"hi"`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if string(res.Output) != `"hi"` {
		t.Errorf("output = %s, want \"hi\"", res.Output)
	}
}

func TestTime(t *testing.T) {
	at := time.Date(2025, 6, 1, 15, 4, 5, 0, time.UTC)
	res, err := Time(clock.NewFake(at)).Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var got string
	if err := json.Unmarshal(res.Output, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != "2025-06-01T15:04:05Z" {
		t.Errorf("time = %q", got)
	}
}

func TestCalc(t *testing.T) {
	calc := Calc()
	ctx := context.Background()

	cases := []struct {
		name  string
		input string
		want  float64
	}{
		{"add", `{"op":"add","a":2,"b":3}`, 5},
		{"sub", `{"op":"sub","a":2,"b":3}`, -1},
		{"mul", `{"op":"mul","a":4,"b":2.5}`, 10},
		{"div", `{"op":"div","a":9,"b":3}`, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := calc.Execute(ctx, json.RawMessage(tc.input))
			if err != nil {
				t.Fatalf("execute: %v", err)
			}
			var out map[string]float64
			if err := json.Unmarshal(res.Output, &out); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if out["result"] != tc.want {
				t.Errorf("result = %v, want %v", out["result"], tc.want)
			}
		})
	}

	t.Run("division by zero", func(t *testing.T) {
		_, err := calc.Execute(ctx, json.RawMessage(`{"op":"div","a":1,"b":0}`))
		if !errors.Is(err, tool.ErrInvalidInput) {
			t.Fatalf("err = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("unknown op", func(t *testing.T) {
		_, err := calc.Execute(ctx, json.RawMessage(`{"op":"pow","a":2,"b":3}`))
		if !errors.Is(err, tool.ErrInvalidInput) {
			t.Fatalf("err = %v, want ErrInvalidInput", err)
		}
	})
}

func TestHTTPFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))
	defer srv.Close()

	fetch := HTTPFetch(srv.Client())
	input, _ := json.Marshal(map[string]string{"url": srv.URL})
	res, err := fetch.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	var out struct {
		Status int    `json:"status"`
		Body   string `json:"body"`
	}
	if err := json.Unmarshal(res.Output, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Status != http.StatusTeapot {
		t.Errorf("status = %d, want %d", out.Status, http.StatusTeapot)
	}
	if out.Body != "short and stout" {
		t.Errorf("body = %q", out.Body)
	}

	if !fetch.Descriptor().Restricted() {
		t.Error("http_fetch should carry access tags")
	}
}

func TestRegisterBuiltins(t *testing.T) {
	r := registry.NewInMemory()
	if err := RegisterBuiltins(r, nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	want := []string{"echo", "time", "calc", "http_fetch"}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}

	if err := RegisterBuiltins(r, nil); !errors.Is(err, tool.ErrDuplicateTool) {
		t.Errorf("second register err = %v, want ErrDuplicateTool", err)
	}
}
