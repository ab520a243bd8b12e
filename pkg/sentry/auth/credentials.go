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

package auth

import "github.com/mohae/deepcopy"

// Credentials holds the UID/GID triples and capability sets of spec.md
// §3: real/effective/saved UID+GID, extra GIDs, four capability sets,
// and the owning user namespace.
type Credentials struct {
	RealKUID      KUID
	EffectiveKUID KUID
	SavedKUID     KUID

	RealKGID      KGID
	EffectiveKGID KGID
	SavedKGID     KGID

	ExtraKGIDs []KGID

	PermittedCaps   CapabilitySet
	EffectiveCaps   CapabilitySet
	InheritableCaps CapabilitySet
	BoundingCaps    CapabilitySet

	UserNamespace *UserNamespace
}

// NewRootCredentials returns the credentials of the privileged init task
// in the given root namespace: UID/GID 0, every capability, real and
// owning root itself.
func NewRootCredentials(ns *UserNamespace) *Credentials {
	all := AllCapabilities()
	return &Credentials{
		UserNamespace:   ns,
		PermittedCaps:   all,
		EffectiveCaps:   all,
		InheritableCaps: 0,
		BoundingCaps:    all,
	}
}

// Fork returns an independent copy of c. The UserNamespace pointer is
// shared (namespace identity is intentional), but ExtraKGIDs is deep
// copied via deepcopy so that mutating the fork's extra-GID list (e.g.
// via setgroups(2)) never aliases the parent's.
func (c *Credentials) Fork() *Credentials {
	clone := *c
	if c.ExtraKGIDs != nil {
		clone.ExtraKGIDs = deepcopy.Copy(c.ExtraKGIDs).([]KGID)
	}
	return &clone
}

// HasCapability returns true iff c has cap within its own user namespace.
func (c *Credentials) HasCapability(cap CapabilitySet) bool {
	return c.HasCapabilityIn(cap, c.UserNamespace)
}

// HasCapabilityIn reports whether c effectively holds cap within ns, per
// spec.md §3/§4.7: walking from ns up toward c's own namespace, either we
// reach c.UserNamespace (check the effective bit directly), or we cross
// the edge where c.UserNamespace is ns's direct parent — in which case c
// is effectively root in ns iff its effective kuid created ns (i.e.
// equals ns.owner).
func (c *Credentials) HasCapabilityIn(cap CapabilitySet, ns *UserNamespace) bool {
	cur := ns
	for {
		if cur == c.UserNamespace {
			return c.EffectiveCaps.Contains(cap)
		}
		if cur.parent == nil {
			return false
		}
		if cur.parent == c.UserNamespace && c.EffectiveKUID == cur.owner {
			return true
		}
		cur = cur.parent
	}
}

// InGroup returns true iff gid matches c's effective or any extra GID.
func (c *Credentials) InGroup(gid KGID) bool {
	if c.EffectiveKGID == gid {
		return true
	}
	for _, g := range c.ExtraKGIDs {
		if g == gid {
			return true
		}
	}
	return false
}
