// Package testutil provides test doubles and builders for testing.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/ifured/pkg/artifact"
	"github.com/dukex/ifured/pkg/engine"
)

var ErrInjected = errors.New("injected engine failure")

// FakeEngine records engine calls and writes the files the real task would
// produce, with content derived only from the call so reruns are
// byte-identical.
type FakeEngine struct {
	mu       sync.Mutex
	store    *artifact.Store
	calls    []engine.Call
	failures map[string]error
	headers  map[string]string
}

func NewFakeEngine(store *artifact.Store) *FakeEngine {
	return &FakeEngine{
		store:    store,
		failures: make(map[string]error),
		headers:  make(map[string]string),
	}
}

// FailOn makes task fail for subject. An empty subject fails every call of task.
func (f *FakeEngine) FailOn(task, subject string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[task+"|"+subject] = fmt.Errorf("%w: %s %s", ErrInjected, task, subject)
}

func (f *FakeEngine) SetHeader(image, keyword, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headers[image+"|"+keyword] = value
}

func (f *FakeEngine) Invoke(_ context.Context, call engine.Call) error {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	err, ok := f.failures[call.Task+"|"+call.Subject]
	if !ok {
		err = f.failures[call.Task+"|"]
	}
	f.mu.Unlock()

	if err != nil {
		return &engine.InvocationError{Task: call.Task, Subject: call.Subject, Err: err}
	}

	return f.produce(call)
}

func (f *FakeEngine) Header(_ context.Context, image, keyword string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, engine.Call{Task: "hselect", Args: []string{image, keyword}, Subject: image})

	value, ok := f.headers[image+"|"+keyword]
	if !ok {
		return "", &engine.InvocationError{Task: "hselect", Subject: image, Err: fmt.Errorf("keyword %s not found", keyword)}
	}
	return value, nil
}

// Calls returns a copy of every recorded call.
func (f *FakeEngine) Calls() []engine.Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.Call{}, f.calls...)
}

func (f *FakeEngine) CallsFor(task string) []engine.Call {
	var out []engine.Call
	for _, call := range f.Calls() {
		if call.Task == task {
			out = append(out, call)
		}
	}
	return out
}

// Tasks returns the task names in invocation order.
func (f *FakeEngine) Tasks() []string {
	var out []string
	for _, call := range f.Calls() {
		out = append(out, call.Task)
	}
	return out
}

func (f *FakeEngine) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *FakeEngine) produce(call engine.Call) error {
	if call.Task == "gsstandard" {
		// the flux table is a plain text file
		if err := os.WriteFile(f.store.Resolve(arg(call, 1)), []byte(call.String()), 0o644); err != nil {
			return err
		}
	}
	for _, name := range outputsOf(call) {
		if err := f.write(name, call.String()); err != nil {
			return err
		}
	}
	return nil
}

func (f *FakeEngine) write(name, content string) error {
	if strings.Contains(name, "[") {
		return nil
	}
	path := f.store.Resolve(name)
	if filepath.Ext(path) == "" {
		path += artifact.Extension
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func arg(call engine.Call, i int) string {
	if i < len(call.Args) {
		return call.Args[i]
	}
	return ""
}

func split(list string) []string {
	if list == "" {
		return nil
	}
	return strings.Split(list, ",")
}

func prefixed(prefix string, names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, prefix+name)
	}
	return out
}

// outputsOf mirrors which files each engine task writes.
func outputsOf(call engine.Call) []string {
	extract := call.Params.Extract == engine.Yes

	switch call.Task {
	case "gbias":
		return []string{arg(call, 1)}
	case "gfreduce":
		inputs := split(arg(call, 0))
		if call.Params.QECorr == engine.Yes {
			out := prefixed("q", inputs)
			if extract {
				out = append(out, prefixed("eq", inputs)...)
			}
			return out
		}
		out := append(prefixed("g", inputs), prefixed("rg", inputs)...)
		if extract {
			out = append(out, prefixed("erg", inputs)...)
		}
		return out
	case "gffindblocks":
		return []string{arg(call, 2)}
	case "gfscatsub":
		return []string{call.Params.Prefix + arg(call, 0)}
	case "gfresponse", "gfcube":
		return []string{call.Params.OutImage}
	case "gemcrspec":
		return []string{arg(call, 1)}
	case "gqecorr":
		return []string{"q" + arg(call, 0)}
	case "gfextract":
		return []string{"e" + arg(call, 0)}
	case "gftransform":
		return []string{"t" + arg(call, 0)}
	case "gfskysub":
		return []string{"s" + arg(call, 0)}
	case "gfapsum":
		return prefixed("a", split(arg(call, 0)))
	case "gsstandard":
		return []string{arg(call, 2)}
	case "gscalibrate":
		return []string{"c" + arg(call, 0)}
	case "copy":
		if dst := arg(call, 1); dst != "." && dst != "" {
			return []string{dst}
		}
		return []string{filepath.Base(arg(call, 0))}
	case "text2mask":
		return []string{arg(call, 1)}
	case "imarith":
		return []string{arg(call, 3)}
	default:
		return nil
	}
}
