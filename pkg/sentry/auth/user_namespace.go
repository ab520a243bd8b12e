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

// UserNamespace is a node in the hierarchical UID/GID translation tree
// described by spec.md §3. Parent edges are conceptually weak (a child
// namespace does not keep its parent alive on its own), but since Go is
// garbage collected this is enforced by never letting a UserNamespace
// reach back into a child: the tree is only ever walked root-ward.
type UserNamespace struct {
	parent *UserNamespace

	// owner is the kuid of the user that created this namespace. It is
	// used by Credentials.HasCapabilityIn's "effectively root by
	// ownership" rule (spec.md §3, §8 scenario 6).
	owner KUID

	uidMapFromParent *IDMap
	uidMapToParent   *IDMap
	gidMapFromParent *IDMap
	gidMapToParent   *IDMap
}

// NewRootUserNamespace returns the namespace at the root of the tree. Per
// spec.md's invariant, its maps are the identity over [0, 2^32-1).
func NewRootUserNamespace() *UserNamespace {
	return &UserNamespace{
		uidMapFromParent: identityIDMap(),
		uidMapToParent:   identityIDMap(),
		gidMapFromParent: identityIDMap(),
		gidMapToParent:   identityIDMap(),
	}
}

// NewUserNamespace creates a child of parent, owned by owner, with empty
// ID maps (the caller populates them, mirroring unshare(CLONE_NEWUSER)
// followed by writes to /proc/[pid]/{uid,gid}_map).
func NewUserNamespace(parent *UserNamespace, owner KUID) *UserNamespace {
	return &UserNamespace{
		parent:           parent,
		owner:            owner,
		uidMapFromParent: NewIDMap(),
		uidMapToParent:   NewIDMap(),
		gidMapFromParent: NewIDMap(),
		gidMapToParent:   NewIDMap(),
	}
}

// Parent returns ns's parent, or nil if ns is the root.
func (ns *UserNamespace) Parent() *UserNamespace {
	return ns.parent
}

// IsRoot returns true iff ns has no parent.
func (ns *UserNamespace) IsRoot() bool {
	return ns.parent == nil
}

// Owner returns the kuid that owns ns.
func (ns *UserNamespace) Owner() KUID {
	return ns.owner
}

// SetUIDMap installs the uid_map entry [nsStart, nsStart+length) ->
// [parentStart, parentStart+length) on ns, populating both the
// from-parent and to-parent maps.
func (ns *UserNamespace) SetUIDMap(nsStart, parentStart, length uint32) bool {
	return ns.uidMapFromParent.AddRange(parentStart, nsStart, length) &&
		ns.uidMapToParent.AddRange(nsStart, parentStart, length)
}

// SetGIDMap is SetUIDMap for the gid maps.
func (ns *UserNamespace) SetGIDMap(nsStart, parentStart, length uint32) bool {
	return ns.gidMapFromParent.AddRange(parentStart, nsStart, length) &&
		ns.gidMapToParent.AddRange(nsStart, parentStart, length)
}

// MapFromKUID converts a root-namespace kuid into the uid as seen within
// ns: at the root, identity; otherwise recurse to the parent first, then
// apply ns's own from-parent map (spec.md §3).
func (ns *UserNamespace) MapFromKUID(kuid KUID) (uint32, bool) {
	if ns.IsRoot() {
		return uint32(kuid), true
	}
	parentUID, ok := ns.parent.MapFromKUID(kuid)
	if !ok {
		return NoID, false
	}
	local := ns.uidMapFromParent.Lookup(parentUID)
	return local, local != NoID
}

// MapToKUID is the inverse of MapFromKUID: translate a namespace-local
// uid through ns's to-parent map, then recurse up to the root.
func (ns *UserNamespace) MapToKUID(uid uint32) (KUID, bool) {
	if ns.IsRoot() {
		return KUID(uid), true
	}
	parentUID := ns.uidMapToParent.Lookup(uid)
	if parentUID == NoID {
		return 0, false
	}
	return ns.parent.MapToKUID(parentUID)
}

// MapFromKGID and MapToKGID are the gid analogues of MapFromKUID/MapToKUID.
func (ns *UserNamespace) MapFromKGID(kgid KGID) (uint32, bool) {
	if ns.IsRoot() {
		return uint32(kgid), true
	}
	parentGID, ok := ns.parent.MapFromKGID(kgid)
	if !ok {
		return NoID, false
	}
	local := ns.gidMapFromParent.Lookup(parentGID)
	return local, local != NoID
}

func (ns *UserNamespace) MapToKGID(gid uint32) (KGID, bool) {
	if ns.IsRoot() {
		return KGID(gid), true
	}
	parentGID := ns.gidMapToParent.Lookup(gid)
	if parentGID == NoID {
		return 0, false
	}
	return ns.parent.MapToKGID(parentGID)
}
