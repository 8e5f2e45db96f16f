//go:build js && wasm

// Command quill-wasm compiles the change-set algebra (pkg/changeset) to
// WebAssembly and exposes it to JavaScript as a global ChangeSet
// constructor, so a browser client can build, compose, transform, apply
// and invert change sets without a parallel JS re-implementation of C1
// drifting out of sync with the server's.
package main

import (
	"encoding/json"
	"fmt"
	"sync"
	"syscall/js"

	"github.com/quillsync/quill/pkg/changeset"
)

// builderRegistry maps opaque IDs handed to JavaScript to the live
// Builder accumulating that change set: js.Value cannot hold a Go
// pointer directly, so the wrapper object carries an ID instead and
// every method looks the Builder back up before mutating or reading it.
var (
	builderRegistry = make(map[int]*changeset.Builder)
	builderCounter  = 0
	builderMutex    sync.Mutex
)

// wrapBuilder registers b and returns a JS object exposing the mutation
// methods (retain/insert/delete) plus every read/algebra method
// (compose/transform/apply/invert/...), all operating on b's current
// Build() snapshot.
func wrapBuilder(b *changeset.Builder) js.Value {
	builderMutex.Lock()
	builderCounter++
	id := builderCounter
	builderRegistry[id] = b
	builderMutex.Unlock()

	obj := make(map[string]interface{})
	obj["__builder_id"] = id

	obj["retain"] = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) > 0 {
			b.Retain(args[0].Int())
		}
		return nil
	})

	obj["delete"] = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) > 0 {
			b.Delete(args[0].Int())
		}
		return nil
	})

	obj["insert"] = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) > 0 {
			b.InsertStr(args[0].String())
		}
		return nil
	})

	obj["compose"] = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) == 0 {
			fmt.Println("compose error: no arguments provided")
			return nil
		}
		other := unwrapChangeSet(args[0])
		if other == nil {
			fmt.Println("compose error: failed to unwrap other change set")
			return nil
		}
		result, err := changeset.Compose(b.Build(), other)
		if err != nil {
			fmt.Printf("compose error: %v\n", err)
			return nil
		}
		return wrapBuilder(builderFromChangeSet(result))
	})

	obj["transform"] = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) == 0 {
			fmt.Println("transform error: no arguments provided")
			return nil
		}
		other := unwrapChangeSet(args[0])
		if other == nil {
			fmt.Println("transform error: failed to unwrap other change set")
			return nil
		}
		aPrime, bPrime, err := changeset.Transform(b.Build(), other)
		if err != nil {
			fmt.Printf("transform error: %v\n", err)
			return nil
		}
		pair := make(map[string]interface{})
		pair["first"] = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
			return wrapBuilder(builderFromChangeSet(aPrime))
		})
		pair["second"] = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
			return wrapBuilder(builderFromChangeSet(bPrime))
		})
		return js.ValueOf(pair)
	})

	obj["apply"] = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) == 0 {
			return nil
		}
		result, err := changeset.ApplyString(b.Build(), args[0].String())
		if err != nil {
			fmt.Printf("apply error: %v\n", err)
			return nil
		}
		return result
	})

	obj["invert"] = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) == 0 {
			return nil
		}
		inverted, err := changeset.Invert(b.Build(), changeset.EncodeUTF16(args[0].String()))
		if err != nil {
			fmt.Printf("invert error: %v\n", err)
			return nil
		}
		return wrapBuilder(builderFromChangeSet(inverted))
	})

	obj["is_noop"] = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		return b.Build().IsNoop()
	})

	obj["base_len"] = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		return b.Build().InputLen()
	})

	obj["target_len"] = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		return b.Build().OutputLen()
	})

	obj["transform_index"] = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) == 0 {
			return 0
		}
		return transformIndex(b.Build(), args[0].Int())
	})

	obj["to_string"] = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		data, err := json.Marshal(b.Build())
		if err != nil {
			return "{}"
		}
		return string(data)
	})

	return js.ValueOf(obj)
}

// unwrapChangeSet extracts the built ChangeSet out of a wrapper produced
// by wrapBuilder.
func unwrapChangeSet(jsVal js.Value) *changeset.ChangeSet {
	if jsVal.Type() == js.TypeObject {
		idVal := jsVal.Get("__builder_id")
		if idVal.Type() == js.TypeNumber {
			id := idVal.Int()
			builderMutex.Lock()
			b := builderRegistry[id]
			builderMutex.Unlock()
			if b != nil {
				return b.Build()
			}
		}
	}
	fmt.Println("unwrapChangeSet failed: could not find __builder_id or builder not in registry")
	return nil
}

// builderFromChangeSet seeds a fresh Builder with cs's ops, so a
// compose/transform/invert result can still be mutated further (another
// retain/insert/delete call) through the same wrapper shape as a
// freshly-constructed one.
func builderFromChangeSet(cs *changeset.ChangeSet) *changeset.Builder {
	b := changeset.NewBuilder()
	for _, op := range cs.Ops() {
		switch v := op.(type) {
		case changeset.Retain:
			b.Retain(int(v))
		case changeset.Delete:
			b.Delete(int(v))
		case changeset.Insert:
			b.Insert(v)
		}
	}
	return b
}

// transformIndex maps a cursor position in the pre-image through cs to
// its corresponding position in the post-image, so a client's own
// cursor tracks text it just inserted or deleted around.
func transformIndex(cs *changeset.ChangeSet, position int) int {
	index := position
	newIndex := index

	for _, op := range cs.Ops() {
		switch v := op.(type) {
		case changeset.Retain:
			index -= int(v)
		case changeset.Insert:
			newIndex += len(v)
		case changeset.Delete:
			n := int(v)
			if index >= n {
				newIndex -= n
			} else if index > 0 {
				newIndex -= index
			}
			index -= n
		}

		if index < 0 {
			break
		}
	}

	if newIndex < 0 {
		return 0
	}
	return newIndex
}

func main() {
	constructor := make(map[string]interface{})

	constructor["new"] = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		return wrapBuilder(changeset.NewBuilder())
	})

	constructor["from_str"] = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) == 0 {
			return nil
		}
		var cs changeset.ChangeSet
		if err := json.Unmarshal([]byte(args[0].String()), &cs); err != nil {
			fmt.Printf("from_str error: %v\n", err)
			return nil
		}
		return wrapBuilder(builderFromChangeSet(&cs))
	})

	js.Global().Set("ChangeSet", js.ValueOf(constructor))

	<-make(chan bool)
}
