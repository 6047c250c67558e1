// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package compute

import (
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// FunctionRegistry is a mapping of function names to function
// implementations, optionally chained to a parent registry. Lookups
// fall through to the parent; additions stay local, so a child can
// extend the default registry without mutating it. A name visible
// anywhere in the parent chain cannot be re-registered in a child
// unless overwriting is allowed.
type FunctionRegistry interface {
	CanAddFunction(fn Function, allowOverwrite bool) bool
	AddFunction(fn Function, allowOverwrite bool) bool
	CanAddAlias(target, source string) bool
	AddAlias(target, source string) bool
	GetFunction(name string) (Function, bool)
	GetFunctionNames() []string
	NumFunctions() int

	canAddFuncName(string, bool) bool
}

var (
	registry     FunctionRegistry
	registryOnce sync.Once
)

// GetFunctionRegistry returns the process-wide default registry,
// populating it with the built-in functions on first use.
func GetFunctionRegistry() FunctionRegistry {
	registryOnce.Do(func() {
		registry = NewRegistry()
		RegisterScalarCast(registry)
		RegisterScalarComparisons(registry)
		RegisterScalarBoolean(registry)
		RegisterScalarMinMax(registry)
		RegisterScalarBetween(registry)
	})
	return registry
}

// NewRegistry creates a new, empty registry with no parent.
func NewRegistry() FunctionRegistry {
	return &funcRegistry{nameToFunction: make(map[string]Function)}
}

// NewChildRegistry creates a registry whose lookups fall through to
// parent for any name not registered locally.
func NewChildRegistry(parent FunctionRegistry) FunctionRegistry {
	return &funcRegistry{parent: parent, nameToFunction: make(map[string]Function)}
}

type funcRegistry struct {
	mx             sync.RWMutex
	parent         FunctionRegistry
	nameToFunction map[string]Function
}

func (reg *funcRegistry) CanAddFunction(fn Function, allowOverwrite bool) bool {
	return reg.canAddFuncName(fn.Name(), allowOverwrite)
}

func (reg *funcRegistry) AddFunction(fn Function, allowOverwrite bool) bool {
	if err := fn.Validate(); err != nil {
		return false
	}

	name := fn.Name()
	if reg.parent != nil && !reg.parent.canAddFuncName(name, allowOverwrite) {
		return false
	}

	reg.mx.Lock()
	defer reg.mx.Unlock()

	if !reg.doCanAddName(name, allowOverwrite) {
		return false
	}

	reg.nameToFunction[name] = fn
	return true
}

func (reg *funcRegistry) CanAddAlias(target, source string) bool {
	if _, ok := reg.GetFunction(source); !ok {
		return false
	}
	return reg.canAddFuncName(target, false)
}

func (reg *funcRegistry) AddAlias(target, source string) bool {
	fn, ok := reg.GetFunction(source)
	if !ok {
		return false
	}

	if reg.parent != nil && !reg.parent.canAddFuncName(target, false) {
		return false
	}

	reg.mx.Lock()
	defer reg.mx.Unlock()

	if !reg.doCanAddName(target, false) {
		return false
	}

	reg.nameToFunction[target] = fn
	return true
}

func (reg *funcRegistry) GetFunction(name string) (Function, bool) {
	reg.mx.RLock()
	fn, ok := reg.nameToFunction[name]
	reg.mx.RUnlock()
	if ok {
		return fn, true
	}

	if reg.parent != nil {
		return reg.parent.GetFunction(name)
	}
	return nil, false
}

func (reg *funcRegistry) GetFunctionNames() (out []string) {
	if reg.parent != nil {
		out = reg.parent.GetFunctionNames()
	} else {
		out = make([]string, 0, len(reg.nameToFunction))
	}

	reg.mx.RLock()
	defer reg.mx.RUnlock()

	out = append(out, maps.Keys(reg.nameToFunction)...)
	slices.Sort(out)
	return slices.Compact(out)
}

func (reg *funcRegistry) NumFunctions() int {
	return len(reg.GetFunctionNames())
}

// canAddFuncName checks the full parent chain: a name is addable only
// if it is free at every level, unless overwriting is allowed.
func (reg *funcRegistry) canAddFuncName(name string, allowOverwrite bool) bool {
	if reg.parent != nil && !reg.parent.canAddFuncName(name, allowOverwrite) {
		return false
	}

	reg.mx.RLock()
	defer reg.mx.RUnlock()

	return reg.doCanAddName(name, allowOverwrite)
}

// doCanAddName must be called with the lock held.
func (reg *funcRegistry) doCanAddName(name string, allowOverwrite bool) bool {
	if allowOverwrite {
		return true
	}
	_, exists := reg.nameToFunction[name]
	return !exists
}
