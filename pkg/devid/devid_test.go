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

package devid

import "testing"

func TestDeviceIDRoundTrip(t *testing.T) {
	cases := []struct{ major, minor uint32 }{
		{0, 0},
		{0, 1},
		{0, 255},
		{0, 4096},
		{7, 3},
	}
	for _, c := range cases {
		dev := DeviceID(c.major, c.minor)
		gotMajor, gotMinor := SplitDeviceID(dev)
		if gotMajor != c.major || gotMinor != c.minor {
			t.Errorf("DeviceID(%d,%d)=%#x SplitDeviceID=(%d,%d), want (%d,%d)", c.major, c.minor, dev, gotMajor, gotMinor, c.major, c.minor)
		}
	}
}

func TestRegistryAllocFreeReuse(t *testing.T) {
	r := NewRegistry()
	a := r.Alloc()
	b := r.Alloc()
	if a == b {
		t.Fatalf("Alloc returned duplicate ids: %#x", a)
	}
	r.Free(a)
	c := r.Alloc()
	if c != a {
		t.Fatalf("expected freed id %#x to be reused, got %#x", a, c)
	}
}
