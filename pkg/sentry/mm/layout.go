// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mm

import (
	"fmt"

	"github.com/kestrelsentry/sentry/pkg/hostarch"
)

// MmapLayout describes the address space an MM may place mappings in,
// per spec.md §4.2: a one-time per-MM random draw picks where bottom-up
// and top-down allocation begin.
type MmapLayout struct {
	MinAddr       hostarch.Addr
	MaxAddr       hostarch.Addr
	BottomUpBase  hostarch.Addr
	TopDownBase   hostarch.Addr
	MaxStackRand  uint64
}

// Entropy is the minimal randomness source the layout draw needs
// (spec.md §6's "Entropy interface").
type Entropy interface {
	Fill(b []byte) error
}

func randUint64(e Entropy, max uint64) uint64 {
	if max == 0 {
		return 0
	}
	var buf [8]byte
	if err := e.Fill(buf[:]); err != nil {
		return 0
	}
	var v uint64
	for _, b := range buf {
		v = v<<8 | uint64(b)
	}
	return v % max
}

// NewMmapLayout computes a layout within [min, max], randomizing the
// bottom-up and top-down bases by at most maxRand bytes (page-aligned),
// satisfying the testable property "min <= bottom_up_base <= max and
// min <= top_down_base <= max" (spec.md §8).
func NewMmapLayout(min, max hostarch.Addr, maxRand uint64, e Entropy) (MmapLayout, error) {
	if min > max {
		return MmapLayout{}, fmt.Errorf("mm: invalid layout bounds [%#x, %#x)", min, max)
	}
	span := uint64(max) - uint64(min)
	rand := maxRand
	if rand > span {
		rand = span
	}

	bottomOffset := hostarch.Addr(randUint64(e, rand+1)).RoundDown()
	bottomUpBase := min + bottomOffset
	if bottomUpBase > max {
		bottomUpBase = max
	}

	topOffset := hostarch.Addr(randUint64(e, rand+1)).RoundDown()
	topDownBase := max - topOffset
	if topDownBase < min {
		topDownBase = min
	}

	return MmapLayout{
		MinAddr:      min,
		MaxAddr:      max,
		BottomUpBase: bottomUpBase,
		TopDownBase:  topDownBase,
		MaxStackRand: maxRand,
	}, nil
}
