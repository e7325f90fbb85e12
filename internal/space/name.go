package space

import (
	"strings"

	"github.com/lk2023060901/space-gateway-go/pkg/util/merr"
)

// Name is a world-qualified space name.
//
// Clients address spaces by a local name only; the gateway qualifies it with
// the session's world so that identically named spaces in different worlds
// never collide. The canonical form is "world.local".
type Name struct {
	world string
	local string
}

// NewName qualifies a local space name with a world.
// The world must not contain "." so the qualified form stays parseable.
func NewName(world, local string) (Name, error) {
	if world == "" {
		return Name{}, merr.WrapErrSpaceNameInvalid(local, "empty world")
	}
	if strings.Contains(world, ".") {
		return Name{}, merr.WrapErrSpaceNameInvalid(world, "world contains a dot")
	}
	if local == "" {
		return Name{}, merr.WrapErrSpaceNameInvalid(local, "empty local name")
	}
	return Name{world: world, local: local}, nil
}

// ParseName parses a canonical "world.local" name.
func ParseName(qualified string) (Name, error) {
	world, local, found := strings.Cut(qualified, ".")
	if !found {
		return Name{}, merr.WrapErrSpaceNameInvalid(qualified, "missing world qualifier")
	}
	return NewName(world, local)
}

// World returns the world part of the name.
func (n Name) World() string { return n.world }

// Local returns the local part of the name.
func (n Name) Local() string { return n.local }

// String returns the canonical "world.local" form.
func (n Name) String() string { return n.world + "." + n.local }

// IsZero reports whether the name is uninitialized.
func (n Name) IsZero() bool { return n.world == "" && n.local == "" }
